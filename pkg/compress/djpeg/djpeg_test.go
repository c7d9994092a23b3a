package djpeg

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyMatchesDecode(t *testing.T) {
	for _, fs := range []frameSpec{grayFrame(35, 29), yccFrame(41, 30), yccFrame(1, 1)} {
		data := newTestFrame(fs).baseline()
		w, h, err := Identify(data)
		require.NoError(t, err)
		px := decodeBytes(t, data, nil)
		assert.Equal(t, px.Width, w)
		assert.Equal(t, px.Height, h)
	}
}

func TestIdentifyRejects(t *testing.T) {
	_, _, err := Identify([]byte("GIF89a, not a jpeg"))
	assert.ErrorIs(t, err, ErrNotJPEG)

	_, _, err = Identify([]byte{0xFF})
	assert.ErrorIs(t, err, ErrNotJPEG)

	_, _, err = Identify(newTestFrame(grayFrame(8, 8)).tablesOnly())
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestCanonicalVectors(t *testing.T) {
	t.Run("DC only", func(t *testing.T) {
		for _, tt := range []struct {
			dc   int16
			want byte
		}{{5, 138}, {-3, 122}, {200, 255}, {-200, 0}} {
			fs := frameSpec{
				width: 1, height: 1,
				quant: [][64]uint16{flatQuant(16)},
				comps: []compSpec{{id: 1, h: 1, v: 1, blocks: [][]block{{{tt.dc}}}}},
			}
			px := decodeBytes(t, newTestFrame(fs).baseline(), nil)
			assert.Equal(t, []byte{tt.want}, px.Pix, "DC %d", tt.dc)
		}
	})

	t.Run("K.1 luminance block", func(t *testing.T) {
		var b block
		for k, v := range map[int]int16{
			0: -26, 1: -3, 2: -6, 9: 2, 16: -4, 3: 1, 10: -4, 17: 1,
			24: 1, 18: 5, 11: 1, 4: 2,
		} {
			b[k] = v
		}
		fs := frameSpec{
			width: 8, height: 8,
			quant: [][64]uint16{stdLuminanceQuant},
			comps: []compSpec{{id: 1, h: 1, v: 1, blocks: [][]block{{b}}}},
		}
		want := []byte{
			79, 62, 60, 77, 84, 71, 60, 60,
			70, 59, 65, 88, 95, 78, 61, 58,
			60, 57, 74, 104, 111, 89, 66, 58,
			56, 59, 82, 116, 123, 98, 73, 65,
			60, 62, 83, 114, 120, 98, 79, 76,
			68, 64, 74, 96, 100, 86, 81, 89,
			76, 62, 59, 69, 72, 68, 78, 97,
			81, 60, 47, 50, 52, 54, 74, 101,
		}
		f := newTestFrame(fs)
		assert.Equal(t, want, decodeBytes(t, f.baseline(), nil).Pix)
		assert.Equal(t, want, decodeBytes(t, f.progressive(fullProgression(1)), nil).Pix)
	})
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestMatchesStandardLibraryGray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 53, 37))
	for y := 0; y < 37; y++ {
		for x := 0; x < 53; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8(40 + x*2 + y*3)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}))

	ref, err := jpeg.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := Decode(bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	gray, ok := got.(*image.Gray)
	require.True(t, ok, "got %T", got)
	require.Equal(t, ref.Bounds(), gray.Bounds())

	worst := 0
	for y := 0; y < 37; y++ {
		for x := 0; x < 53; x++ {
			worst = max(worst, absDiff(gray.GrayAt(x, y).Y, ref.(*image.Gray).GrayAt(x, y).Y))
		}
	}
	assert.LessOrEqual(t, worst, 3)
}

func TestMatchesStandardLibraryColor(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 45, 31))
	for y := 0; y < 31; y++ {
		for x := 0; x < 45; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(60 + x*3), G: uint8(50 + y*4), B: uint8(120 + x - y), A: 0xFF})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 95}))

	ref, err := jpeg.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := Decode(bytes.NewReader(buf.Bytes()), &Options{DisableFancyUpsampling: true})
	require.NoError(t, err)
	rgba, ok := got.(*image.RGBA)
	require.True(t, ok, "got %T", got)

	worst := 0
	for y := 0; y < 31; y++ {
		for x := 0; x < 45; x++ {
			r, g, b, _ := ref.At(x, y).RGBA()
			c := rgba.RGBAAt(x, y)
			worst = max(worst, absDiff(c.R, uint8(r>>8)), absDiff(c.G, uint8(g>>8)), absDiff(c.B, uint8(b>>8)))
			assert.Equal(t, uint8(0xFF), c.A)
		}
	}
	assert.LessOrEqual(t, worst, 8)
}

func TestDecodeImageTypes(t *testing.T) {
	gray := newTestFrame(grayFrame(20, 12)).baseline()
	ycc := newTestFrame(yccFrame(20, 12)).baseline()

	img, err := Decode(bytes.NewReader(gray), nil)
	require.NoError(t, err)
	assert.IsType(t, &image.Gray{}, img)

	img, err = Decode(bytes.NewReader(ycc), nil)
	require.NoError(t, err)
	assert.IsType(t, &image.RGBA{}, img)
	assert.Equal(t, image.Rect(0, 0, 20, 12), img.Bounds())

	img, err = Decode(bytes.NewReader(ycc), &Options{QuantizeColors: true, Colors: 16})
	require.NoError(t, err)
	pal, ok := img.(*image.Paletted)
	require.True(t, ok, "got %T", img)
	assert.LessOrEqual(t, len(pal.Palette), 16)
	for _, i := range pal.Pix {
		require.Less(t, int(i), len(pal.Palette))
	}

	px := decodeBytes(t, ycc, &Options{OutColorSpace: ColorYCbCr})
	_, err = px.Image()
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(bytes.NewReader(newTestFrame(grayFrame(21, 13)).baseline()))
	require.NoError(t, err)
	assert.Equal(t, 21, cfg.Width)
	assert.Equal(t, 13, cfg.Height)
	assert.Equal(t, color.GrayModel, cfg.ColorModel)

	cfg, err = DecodeConfig(bytes.NewReader(newTestFrame(yccFrame(9, 30)).progressive(fullProgression(3))))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Width)
	assert.Equal(t, color.RGBAModel, cfg.ColorModel)

	_, err = DecodeConfig(strings.NewReader("plain text"))
	assert.ErrorIs(t, err, ErrNotJPEG)
}

func TestRejectedFrameTypes(t *testing.T) {
	data := newTestFrame(grayFrame(16, 16)).baseline()
	sof := bytes.Index(data, []byte{0xFF, byte(MarkerSOF0)})
	require.Positive(t, sof)
	withSOF := func(m Marker) []byte {
		out := bytes.Clone(data)
		out[sof+1] = byte(m)
		return out
	}

	t.Run("lossless", func(t *testing.T) {
		d := NewDecompressor(nil)
		_, err := d.Write(withSOF(MarkerSOF3))
		require.NoError(t, err)
		d.CloseInput()
		_, err = d.ReadHeader(true)
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("arithmetic", func(t *testing.T) {
		d := NewDecompressor(nil)
		_, err := d.Write(withSOF(MarkerSOF9))
		require.NoError(t, err)
		d.CloseInput()
		_, err = d.ReadHeader(true)
		require.NoError(t, err)
		assert.True(t, d.Header().Arithmetic)
		assert.ErrorIs(t, d.StartDecompress(), ErrUnsupported)

		_, err = DecodeBytes(withSOF(MarkerSOF9), nil)
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}

func TestDefaultHuffmanTables(t *testing.T) {
	fs := yccFrame(30, 22)
	fs.standardTables = true
	want := decodeBytes(t, newTestFrame(fs).baseline(), nil)

	fs.standardTables, fs.omitDHT = false, true
	data := newTestFrame(fs).baseline()
	assert.Equal(t, -1, bytes.Index(data, []byte{0xFF, byte(MarkerDHT)}))
	assert.Equal(t, want.Pix, decodeBytes(t, data, nil).Pix)
}

func TestSavedMarkersAndSegments(t *testing.T) {
	fs := grayFrame(8, 8)
	fs.comment = "made for tests"
	data := newTestFrame(fs).baseline()

	d := NewDecompressor(&Options{SaveMarkers: true})
	_, err := d.Write(data)
	require.NoError(t, err)
	d.CloseInput()
	_, err = d.ReadHeader(true)
	require.NoError(t, err)

	hdr := d.Header()
	assert.True(t, hdr.SawJFIF)
	assert.Equal(t, 1, hdr.JFIFMajor)
	assert.Equal(t, 1, hdr.JFIFMinor)
	require.Len(t, hdr.Markers, 2)
	assert.Equal(t, MarkerAPP0, hdr.Markers[0].Marker)
	assert.Equal(t, MarkerCOM, hdr.Markers[1].Marker)
	assert.Equal(t, "made for tests", string(hdr.Markers[1].Data))

	var seen []Marker
	for _, s := range d.Segments() {
		seen = append(seen, s.Marker)
		assert.Equal(t, byte(0xFF), data[s.Offset])
		assert.Equal(t, byte(s.Marker), data[s.Offset+1])
	}
	assert.Equal(t, []Marker{
		MarkerSOI, MarkerAPP0, MarkerCOM, MarkerDQT, MarkerDHT, MarkerDHT, MarkerSOF0, MarkerSOS,
	}, seen)
	assert.Equal(t, len(fs.comment)+2, d.Segments()[2].Length)

	// unsaved markers are skipped without being kept
	d = NewDecompressor(nil)
	_, err = d.Write(data)
	require.NoError(t, err)
	d.CloseInput()
	_, err = d.ReadHeader(true)
	require.NoError(t, err)
	assert.Empty(t, d.Header().Markers)
}

func TestWarningsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	f := newTestFrame(grayFrame(16, 16))
	data := f.progressive([]scanSpec{
		{comps: []int{0}, ss: 1, se: 63},
		{comps: []int{0}},
	})
	_, err := DecodeBytes(data, &Options{Logger: logger})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
}
