package djpeg

import (
	"fmt"
	"log/slog"
)

// calcOutputDimensions applies the requested scale. Each component's IDCT size is
// doubled from the minimum while that does not exceed its share of the output, so
// subsampled components are decoded larger instead of upsampled.
func (d *Decompressor) calcOutputDimensions() {
	switch denom := d.opts.ScaleDenom; {
	case denom >= 8:
		d.minDCT = 1
	case denom >= 4:
		d.minDCT = 2
	case denom >= 2:
		d.minDCT = 4
	default:
		d.minDCT = 8
	}
	d.outputWidth = ceilDiv(d.hdr.Width*d.minDCT, 8)
	d.outputHeight = ceilDiv(d.hdr.Height*d.minDCT, 8)

	for _, c := range d.comps {
		ds := d.minDCT
		for ds < 8 && c.h*ds*2 <= d.maxH*d.minDCT && c.v*ds*2 <= d.maxV*d.minDCT {
			ds *= 2
		}
		c.dctScaled = ds
		c.downWidth = ceilDiv(d.hdr.Width*c.h*ds, d.maxH*8)
		c.downHeight = ceilDiv(d.hdr.Height*c.v*ds, d.maxV*8)
		c.needed = true
	}

	d.outColorSpace = d.opts.OutColorSpace
	if d.outColorSpace == ColorUnknown {
		d.outColorSpace = d.defaultOutColorSpace()
	}
}

// masterSelection builds the decoding pipeline after the first SOS.
func (d *Decompressor) masterSelection() error {
	if d.hdr.Arithmetic {
		return fmt.Errorf("%w: arithmetic coding", ErrUnsupported)
	}
	d.calcOutputDimensions()

	var err error
	if !d.opts.RawData {
		if d.cconvert, err = newColorConverter(d); err != nil {
			return err
		}
		d.outComponents = d.outColorComponents
		if d.opts.QuantizeColors {
			if d.quantizer, err = newQuantizer(d); err != nil {
				return err
			}
			d.outComponents = 1
		}
		if d.upsampler, err = newUpsampler(d); err != nil {
			return err
		}
	} else {
		if d.opts.QuantizeColors {
			return fmt.Errorf("%w: color quantization of raw data", ErrUnsupported)
		}
		d.outColorComponents = len(d.comps)
		d.outComponents = len(d.comps)
	}

	if d.hdr.Progressive {
		d.entropy = &phuffDecoder{d: d}
		d.coefBits = make([][64]int, len(d.comps))
		for i := range d.coefBits {
			for k := range d.coefBits[i] {
				d.coefBits[i][k] = -1
			}
		}
	} else {
		d.entropy = &huffDecoder{d: d}
	}

	buffered := d.hasMultipleScans || d.opts.BufferedImage
	if d.coef, err = newCoefController(d, buffered); err != nil {
		return err
	}
	if !d.opts.RawData {
		if d.out, err = newOutputController(d); err != nil {
			return err
		}
	}
	if err := d.mem.realizeVirtualArrays(d.log); err != nil {
		return err
	}

	d.trace("decompression configured",
		slog.Int("outputWidth", d.outputWidth), slog.Int("outputHeight", d.outputHeight),
		slog.String("colorSpace", d.outColorSpace.String()), slog.Int("minDCT", d.minDCT),
		slog.Bool("buffered", buffered), slog.Bool("progressive", d.hdr.Progressive))

	return d.startInputPass()
}

// prepareOutputPass readies the output side for a pass over the image.
func (d *Decompressor) prepareOutputPass() {
	for _, c := range d.comps {
		c.idct.prepare(c, d.opts.DCTMethod)
	}
	d.coef.startOutputPass()
	if d.out != nil {
		d.out.startPass()
	}
	if d.quantizer != nil {
		d.quantizer.startPass()
	}
}
