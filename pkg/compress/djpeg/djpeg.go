// Package djpeg implements a streaming JPEG decoder for ITU-T T.81 | ISO/IEC 10918-1
// baseline, extended sequential and progressive Huffman-coded images.
//
// Input may arrive in pieces of any size. Operations that run out of bytes return
// ErrSuspended and may be repeated unchanged once more data has been written; nothing
// decoded before the suspension is lost and nothing half-decoded becomes visible.
// Arithmetic-coded and lossless/hierarchical streams are rejected with ErrUnsupported.
package djpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
)

// Error classes reported to callers. Fatal errors wrap exactly one of the first four.
var (
	ErrNotJPEG     = errors.New("djpeg: not a JPEG stream")
	ErrCorrupt     = errors.New("djpeg: corrupt JPEG data")
	ErrUnsupported = errors.New("djpeg: unsupported JPEG feature")
	ErrOutOfMemory = errors.New("djpeg: out of memory")
	ErrInternal    = errors.New("djpeg: internal error")

	// ErrSuspended reports that the decoder needs more input before the call can complete.
	ErrSuspended = errors.New("djpeg: suspended, more input required")

	ErrNoImage = fmt.Errorf("%w: stream contains tables but no image", ErrCorrupt)
)

// ColorSpace identifies the color space of the stream or of the requested output.
type ColorSpace int

const (
	ColorUnknown ColorSpace = iota
	ColorGray
	ColorRGB
	ColorYCbCr
	ColorCMYK
	ColorYCCK
	ColorRGBA // output only: RGB with an opaque alpha byte
)

func (c ColorSpace) String() string {
	switch c {
	case ColorGray:
		return "Gray"
	case ColorRGB:
		return "RGB"
	case ColorYCbCr:
		return "YCbCr"
	case ColorCMYK:
		return "CMYK"
	case ColorYCCK:
		return "YCCK"
	case ColorRGBA:
		return "RGBA"
	default:
		return "Unknown"
	}
}

// DCTMethod selects the inverse DCT kernel for full-size output.
type DCTMethod int

const (
	DCTIslow DCTMethod = iota // accurate integer (LL&M)
	DCTIfast                  // fast integer (AA&N)
	DCTFloat                  // floating point (AA&N)
)

func (m DCTMethod) String() string {
	switch m {
	case DCTIfast:
		return "ifast"
	case DCTFloat:
		return "float"
	default:
		return "islow"
	}
}

// DitherMode selects how the color quantizer spreads quantization error.
type DitherMode int

const (
	DitherFS      DitherMode = iota // Floyd-Steinberg error diffusion
	DitherOrdered                   // 16x16 ordered dither
	DitherNone                      // nearest colormap entry
)

func (m DitherMode) String() string {
	switch m {
	case DitherOrdered:
		return "ordered"
	case DitherNone:
		return "none"
	default:
		return "fs"
	}
}

// Options configures a Decompressor. The zero value decodes at full size with the
// accurate IDCT, fancy upsampling and block smoothing.
type Options struct {
	// OutColorSpace requests an output color space; ColorUnknown picks the natural one
	// for the stream (gray, RGB or CMYK).
	OutColorSpace ColorSpace
	// ScaleDenom scales the output by 1/ScaleDenom; one of 1, 2, 4, 8 (0 means 1).
	ScaleDenom int
	DCTMethod  DCTMethod

	DisableFancyUpsampling bool
	DisableBlockSmoothing  bool

	// QuantizeColors maps the output to at most Colors entries of a generated colormap.
	QuantizeColors bool
	Colors         int // 0 means 256
	Dither         DitherMode

	// BufferedImage keeps every coefficient so the image can be output several times
	// while progressive scans arrive (StartOutput/FinishOutput).
	BufferedImage bool
	// RawData returns downsampled component planes instead of pixels (ReadRawData).
	RawData bool

	// SaveMarkers keeps APPn and COM payloads in Header.Markers.
	SaveMarkers bool

	// MemoryLimit is a hard ceiling on decoder allocations; 0 means unlimited.
	MemoryLimit int64
	// MaxMemoryToUse is the budget for coefficient arrays before they spill to
	// BackingStore. It has no effect without a BackingStore factory.
	MaxMemoryToUse int64
	BackingStore   BackingStoreFactory

	Logger *slog.Logger
}

// DefaultOptions returns the zero-value configuration with the default logger.
func DefaultOptions() *Options {
	return &Options{ScaleDenom: 1, Colors: 256, Logger: slog.Default()}
}

// SavedMarker is an APPn or COM segment kept when Options.SaveMarkers is set.
type SavedMarker struct {
	Marker Marker
	Data   []byte
}

// Header describes the image as declared by the stream's markers.
type Header struct {
	Width, Height   int
	Components      int
	Precision       int
	ColorSpace      ColorSpace
	Progressive     bool
	Arithmetic      bool
	RestartInterval int

	SawJFIF              bool
	JFIFMajor, JFIFMinor int
	DensityUnit          int
	XDensity, YDensity   int
	SawAdobe             bool
	AdobeTransform       int
	Markers              []SavedMarker
}

// Pixels is a decoded image as a packed sample buffer.
type Pixels struct {
	Width, Height int
	// Components is the number of bytes per pixel in Pix.
	Components int
	ColorSpace ColorSpace
	Stride     int
	Pix        []byte
	// Colormap is set for quantized output: Colormap[c][i] is component c of entry i.
	Colormap [][]byte
	// AdobeInverted reports Adobe-style inverted CMYK samples.
	AdobeInverted bool
}

// Identify reports the image dimensions declared by data. It parses markers only up to
// the first scan and never allocates pixel storage.
func Identify(data []byte) (int, int, error) {
	d := NewDecompressor(nil)
	if _, err := d.Write(data); err != nil {
		return 0, 0, err
	}
	d.CloseInput()
	defer d.Abort()
	st, err := d.ReadHeader(true)
	if err != nil {
		return 0, 0, err
	}
	if st != HeaderOK {
		return 0, 0, ErrNoImage
	}
	return d.hdr.Width, d.hdr.Height, nil
}

// DecodeConfig returns the color model and dimensions of a JPEG image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	d := NewDecompressor(nil)
	d.SetSource(r)
	defer d.Abort()
	if _, err := d.ReadHeader(true); err != nil {
		return image.Config{}, err
	}
	cfg := image.Config{Width: d.hdr.Width, Height: d.hdr.Height}
	switch d.defaultOutColorSpace() {
	case ColorGray:
		cfg.ColorModel = grayModel
	case ColorCMYK:
		cfg.ColorModel = cmykModel
	default:
		cfg.ColorModel = rgbaModel
	}
	return cfg, nil
}

// DecodeBytes decodes a complete in-memory stream into a packed sample buffer.
func DecodeBytes(data []byte, opts *Options) (*Pixels, error) {
	return DecodePixels(bytes.NewReader(data), opts)
}

// Decode reads a JPEG image from r.
func Decode(r io.Reader, opts *Options) (image.Image, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if !o.QuantizeColors && (o.OutColorSpace == ColorUnknown || o.OutColorSpace == ColorRGB) {
		o.OutColorSpace = ColorRGBA
	}
	px, err := DecodePixels(r, &o)
	if err != nil {
		return nil, err
	}
	return px.Image()
}

// DecodePixels decodes the stream read from r into a packed sample buffer. The reader
// is read as the decoder needs more input.
func DecodePixels(r io.Reader, opts *Options) (*Pixels, error) {
	d := NewDecompressor(opts)
	d.SetSource(r)
	defer d.Abort()
	if _, err := d.ReadHeader(true); err != nil {
		return nil, err
	}
	if d.opts.OutColorSpace == ColorRGBA && d.defaultOutColorSpace() != ColorRGB {
		// gray and CMYK streams keep their natural output
		d.opts.OutColorSpace = ColorUnknown
	}
	if err := d.StartDecompress(); err != nil {
		return nil, err
	}
	px := &Pixels{
		Width:         d.OutputWidth(),
		Height:        d.OutputHeight(),
		Components:    d.OutputComponents(),
		ColorSpace:    d.OutColorSpace(),
		AdobeInverted: d.hdr.SawAdobe,
	}
	px.Stride = px.Width * px.Components
	if err := d.mem.charge(poolImage, int64(px.Stride)*int64(px.Height)); err != nil {
		return nil, err
	}
	px.Pix = make([]byte, px.Stride*px.Height)
	rows := make([][]byte, px.Height)
	for y := range rows {
		rows[y] = px.Pix[y*px.Stride : (y+1)*px.Stride]
	}
	for d.OutputScanline() < px.Height {
		if _, err := d.ReadScanlines(rows[d.OutputScanline():]); err != nil {
			return nil, err
		}
	}
	px.Colormap = d.Colormap()
	if err := d.FinishDecompress(); err != nil {
		return nil, err
	}
	return px, nil
}
