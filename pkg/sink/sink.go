// Package sink writes decoded pixels to image and raw sample files.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jpfielding/djpeg.go/pkg/compress/djpeg"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff"
)

// Format names an output encoding.
type Format string

const (
	FormatPNM    Format = "pnm"
	FormatPNG    Format = "png"
	FormatTIFF   Format = "tiff"
	FormatRaw    Format = "raw"
	FormatRawZst Format = "raw.zst"
)

var Formats = []Format{FormatPNM, FormatPNG, FormatTIFF, FormatRaw, FormatRawZst}

var ErrFormat = errors.New("sink: unsupported output")

// ParseFormat accepts a format name or a file path whose extension names one.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(s)
	switch {
	case strings.HasSuffix(s, ".raw.zst"), s == string(FormatRawZst):
		return FormatRawZst, nil
	}
	name := strings.TrimPrefix(filepath.Ext(s), ".")
	if name == "" {
		name = s
	}
	switch name {
	case "pnm", "ppm", "pgm":
		return FormatPNM, nil
	case "png":
		return FormatPNG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "raw":
		return FormatRaw, nil
	}
	return "", fmt.Errorf("%w: format %q", ErrFormat, s)
}

// Write encodes px to w in format f.
func Write(w io.Writer, f Format, px *djpeg.Pixels) error {
	switch f {
	case FormatPNM:
		return WritePNM(w, px)
	case FormatPNG:
		img, err := px.Image()
		if err != nil {
			return err
		}
		return png.Encode(w, img)
	case FormatTIFF:
		return WriteTIFF(w, px)
	case FormatRaw:
		_, err := w.Write(px.Pix)
		return err
	case FormatRawZst:
		return WriteRawZst(w, px)
	}
	return fmt.Errorf("%w: format %q", ErrFormat, f)
}

// WritePNM writes gray samples as PGM and color samples as PPM. Quantized output is
// expanded through its colormap; an alpha byte is dropped.
func WritePNM(w io.Writer, px *djpeg.Pixels) error {
	if px.Colormap != nil {
		px = expand(px)
	}
	var magic string
	switch px.Components {
	case 1:
		magic = "P5"
	case 3, 4:
		if px.ColorSpace == djpeg.ColorCMYK {
			return fmt.Errorf("%w: CMYK as PNM", ErrFormat)
		}
		magic = "P6"
	default:
		return fmt.Errorf("%w: %d-component PNM", ErrFormat, px.Components)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%d %d\n255\n", magic, px.Width, px.Height)
	for y := 0; y < px.Height; y++ {
		row := px.Pix[y*px.Stride : y*px.Stride+px.Width*px.Components]
		if px.Components != 4 {
			bw.Write(row)
			continue
		}
		for x := 0; x < px.Width; x++ {
			bw.Write(row[4*x : 4*x+3])
		}
	}
	return bw.Flush()
}

// expand replaces colormap indices by the colors they select.
func expand(px *djpeg.Pixels) *djpeg.Pixels {
	nc := len(px.Colormap)
	out := &djpeg.Pixels{
		Width:      px.Width,
		Height:     px.Height,
		Components: nc,
		ColorSpace: djpeg.ColorRGB,
		Stride:     px.Width * nc,
	}
	if nc == 1 {
		out.ColorSpace = djpeg.ColorGray
	}
	out.Pix = make([]byte, out.Stride*px.Height)
	for y := 0; y < px.Height; y++ {
		for x := 0; x < px.Width; x++ {
			i := px.Pix[y*px.Stride+x]
			for c := 0; c < nc; c++ {
				out.Pix[y*out.Stride+x*nc+c] = px.Colormap[c][i]
			}
		}
	}
	return out
}

// WriteTIFF writes a Deflate-compressed TIFF.
func WriteTIFF(w io.Writer, px *djpeg.Pixels) error {
	img, err := px.Image()
	if err != nil {
		return err
	}
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

// WriteRawZst writes the packed samples as a zstd stream.
func WriteRawZst(w io.Writer, px *djpeg.Pixels) error {
	enc := zstdEncPool.Get().(*zstd.Encoder)
	defer zstdEncPool.Put(enc)
	enc.Reset(w)
	if _, err := enc.Write(px.Pix); err != nil {
		_ = enc.Close()
		return fmt.Errorf("zstd encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd encode: %w", err)
	}
	return nil
}
