package djpeg

import "fmt"

// convertFunc converts row y of the upsampled component planes into interleaved
// output samples.
type convertFunc func(in [][][]byte, y int, out []byte, width int)

// yccTables are the fixed-point YCbCr to RGB terms (16 fractional bits).
type yccTables struct {
	crR, cbB, crG, cbG [256]int32
}

var ycc = func() *yccTables {
	const (
		scaleBits = 16
		half      = 1 << (scaleBits - 1)
	)
	t := &yccTables{}
	for i := range 256 {
		x := int32(i - 128)
		t.crR[i] = (91881*x + half) >> scaleBits
		t.cbB[i] = (116130*x + half) >> scaleBits
		t.crG[i] = -46802 * x
		t.cbG[i] = -22554*x + half
	}
	return t
}()

func clampSample(v int32) byte {
	return byte(min(max(v, 0), 255))
}

// yccRGB returns the R, G, B values of one YCbCr sample.
func yccRGB(y, cb, cr byte) (byte, byte, byte) {
	yy := int32(y)
	return clampSample(yy + ycc.crR[cr]),
		clampSample(yy + (ycc.cbG[cb]+ycc.crG[cr])>>16),
		clampSample(yy + ycc.cbB[cb])
}

// colorConverter selects the conversion from the stream's color space to the output.
type colorConverter struct {
	convert convertFunc
}

func newColorConverter(d *Decompressor) (*colorConverter, error) {
	jcs, n := d.hdr.ColorSpace, len(d.comps)
	var want int
	switch jcs {
	case ColorGray:
		want = 1
	case ColorRGB, ColorYCbCr:
		want = 3
	case ColorCMYK, ColorYCCK:
		want = 4
	}
	if want != 0 && n != want {
		return nil, fmt.Errorf("%w: %d components for %s", ErrCorrupt, n, jcs)
	}

	unsupported := func() error {
		return fmt.Errorf("%w: conversion from %s to %s", ErrUnsupported, jcs, d.outColorSpace)
	}
	cc := &colorConverter{}
	switch d.outColorSpace {
	case ColorGray:
		if jcs != ColorGray && jcs != ColorYCbCr {
			return nil, unsupported()
		}
		cc.convert = grayConvert
		for _, c := range d.comps[1:] {
			c.needed = false
		}
		d.outColorComponents = 1
	case ColorRGB, ColorRGBA:
		alpha := d.outColorSpace == ColorRGBA
		switch {
		case jcs == ColorYCbCr && alpha:
			cc.convert = yccRGBAConvert
		case jcs == ColorYCbCr:
			cc.convert = yccRGBConvert
		case jcs == ColorGray && alpha:
			cc.convert = grayRGBAConvert
		case jcs == ColorGray:
			cc.convert = grayRGBConvert
		case jcs == ColorRGB && alpha:
			cc.convert = rgbRGBAConvert
		case jcs == ColorRGB:
			cc.convert = nullConvert(3)
		default:
			return nil, unsupported()
		}
		d.outColorComponents = 3
		if alpha {
			d.outColorComponents = 4
		}
	case ColorCMYK:
		switch jcs {
		case ColorYCCK:
			cc.convert = ycckCMYKConvert
		case ColorCMYK:
			cc.convert = nullConvert(4)
		default:
			return nil, unsupported()
		}
		d.outColorComponents = 4
	default:
		if d.outColorSpace != jcs {
			return nil, unsupported()
		}
		cc.convert = nullConvert(n)
		d.outColorComponents = n
	}
	return cc, nil
}

func grayConvert(in [][][]byte, y int, out []byte, width int) {
	copy(out[:width], in[0][y])
}

func nullConvert(n int) convertFunc {
	return func(in [][][]byte, y int, out []byte, width int) {
		for ci := 0; ci < n; ci++ {
			src := in[ci][y]
			for x, p := 0, ci; x < width; x, p = x+1, p+n {
				out[p] = src[x]
			}
		}
	}
}

func grayRGBConvert(in [][][]byte, y int, out []byte, width int) {
	src := in[0][y]
	for x := 0; x < width; x++ {
		v := src[x]
		out[3*x], out[3*x+1], out[3*x+2] = v, v, v
	}
}

func grayRGBAConvert(in [][][]byte, y int, out []byte, width int) {
	src := in[0][y]
	for x := 0; x < width; x++ {
		v := src[x]
		out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = v, v, v, 0xFF
	}
}

func rgbRGBAConvert(in [][][]byte, y int, out []byte, width int) {
	r, g, b := in[0][y], in[1][y], in[2][y]
	for x := 0; x < width; x++ {
		out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = r[x], g[x], b[x], 0xFF
	}
}

func yccRGBConvert(in [][][]byte, y int, out []byte, width int) {
	yp, cb, cr := in[0][y], in[1][y], in[2][y]
	for x := 0; x < width; x++ {
		out[3*x], out[3*x+1], out[3*x+2] = yccRGB(yp[x], cb[x], cr[x])
	}
}

func yccRGBAConvert(in [][][]byte, y int, out []byte, width int) {
	yp, cb, cr := in[0][y], in[1][y], in[2][y]
	for x := 0; x < width; x++ {
		out[4*x], out[4*x+1], out[4*x+2] = yccRGB(yp[x], cb[x], cr[x])
		out[4*x+3] = 0xFF
	}
}

// ycckCMYKConvert converts YCC to RGB, inverts it to CMY and passes K through.
func ycckCMYKConvert(in [][][]byte, y int, out []byte, width int) {
	yp, cb, cr, k := in[0][y], in[1][y], in[2][y], in[3][y]
	for x := 0; x < width; x++ {
		r, g, b := yccRGB(yp[x], cb[x], cr[x])
		out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = 255-r, 255-g, 255-b, k[x]
	}
}
