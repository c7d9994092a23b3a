package djpeg

import "log/slog"

// outputController turns iMCU rows of decoded samples into output scanlines. Each band
// is one iMCU row: bandRows[c] sample rows of component c, expanding to outRows output
// rows. When the upsampler needs context, the band below is decoded before the current
// one is upsampled.
type outputController struct {
	d *Decompressor

	bandRows  []int
	cur, next [][][]byte
	above     [][]byte
	ctx       [][][]byte
	up        [][][]byte
	conv      [][]byte
	quant     [][]byte
	outRows   int

	needContext           bool
	curLoaded, nextLoaded bool
	band                  int
	// rows of the current band ready for delivery, and the next one to hand out
	ready, pos int
}

func newOutputController(d *Decompressor) (*outputController, error) {
	n := len(d.comps)
	oc := &outputController{
		d:        d,
		bandRows: make([]int, n),
		cur:      make([][][]byte, n),
		next:     make([][][]byte, n),
		above:    make([][]byte, n),
		ctx:      make([][][]byte, n),
		up:       make([][][]byte, n),
		outRows:  d.maxV * d.minDCT,
	}
	oc.needContext = d.upsampler.needContext
	mem := d.mem
	for i, c := range d.comps {
		rows := c.v * c.dctScaled
		width := c.widthInBlocks * c.dctScaled
		oc.bandRows[i] = rows
		var err error
		if oc.cur[i], err = mem.sampleRows(poolImage, width, rows); err != nil {
			return nil, err
		}
		if oc.needContext {
			if oc.next[i], err = mem.sampleRows(poolImage, width, rows); err != nil {
				return nil, err
			}
			above, err := mem.sampleRows(poolImage, width, 1)
			if err != nil {
				return nil, err
			}
			oc.above[i] = above[0]
		}
		oc.ctx[i] = make([][]byte, rows+2)
		if oc.up[i], err = mem.sampleRows(poolImage, d.upsampler.width, oc.outRows); err != nil {
			return nil, err
		}
	}
	var err error
	if oc.conv, err = mem.sampleRows(poolImage, d.outputWidth*d.outColorComponents, oc.outRows); err != nil {
		return nil, err
	}
	if d.quantizer != nil {
		if oc.quant, err = mem.sampleRows(poolImage, d.outputWidth, oc.outRows); err != nil {
			return nil, err
		}
	}
	return oc, nil
}

func (oc *outputController) startPass() {
	oc.curLoaded, oc.nextLoaded = false, false
	oc.band = 0
	oc.ready, oc.pos = 0, 0
}

// readScanlines copies up to len(rows) output rows. It returns the number delivered,
// with ErrSuspended when input ran out first.
func (oc *outputController) readScanlines(rows [][]byte) (int, error) {
	d := oc.d
	rowBytes := d.outputWidth * d.outComponents
	n := 0
	for n < len(rows) && d.outputScanline < d.outputHeight {
		if oc.pos >= oc.ready {
			if err := oc.prepareBand(); err != nil {
				return n, err
			}
		}
		src := oc.conv
		if oc.quant != nil {
			src = oc.quant
		}
		copy(rows[n], src[oc.pos][:rowBytes])
		oc.pos++
		n++
		d.outputScanline++
		if oc.pos >= oc.ready {
			oc.advance()
		}
	}
	return n, nil
}

// decodeBand runs the coefficient controller for the next iMCU row into buf.
func (oc *outputController) decodeBand(buf [][][]byte) error {
	_, err := oc.d.coef.decompress(buf)
	return err
}

// prepareBand decodes, upsamples and converts the current band.
func (oc *outputController) prepareBand() error {
	d := oc.d
	if !oc.curLoaded {
		if err := oc.decodeBand(oc.cur); err != nil {
			return err
		}
		oc.curLoaded = true
	}
	last := oc.band == d.totalIMCURows-1
	if oc.needContext && !last && !oc.nextLoaded {
		if err := oc.decodeBand(oc.next); err != nil {
			return err
		}
		oc.nextLoaded = true
	}

	for i, c := range d.comps {
		cur := oc.cur[i]
		rows := oc.bandRows[i]
		if last {
			// pad below the image with copies of its last row
			left := c.downHeight % rows
			if left == 0 {
				left = rows
			}
			for r := left; r < rows; r++ {
				copy(cur[r], cur[left-1])
			}
		}
		ctx := oc.ctx[i]
		copy(ctx[1:], cur)
		switch {
		case oc.band == 0 || !oc.needContext:
			ctx[0] = cur[0]
		default:
			ctx[0] = oc.above[i]
		}
		if oc.needContext && !last {
			ctx[rows+1] = oc.next[i][0]
		} else {
			ctx[rows+1] = cur[rows-1]
		}
		d.upsampler.methods[i](c, ctx, oc.up[i])
	}

	oc.ready = min(oc.outRows, d.outputHeight-oc.band*oc.outRows)
	oc.pos = 0
	for y := 0; y < oc.ready; y++ {
		d.cconvert.convert(oc.up, y, oc.conv[y], d.outputWidth)
		if d.quantizer != nil {
			d.quantizer.quantize(oc.conv[y], oc.quant[y])
		}
	}
	return nil
}

// advance moves to the next band once the current one has been delivered.
func (oc *outputController) advance() {
	if oc.needContext {
		for i := range oc.cur {
			copy(oc.above[i], oc.cur[i][oc.bandRows[i]-1])
		}
		oc.cur, oc.next = oc.next, oc.cur
	}
	oc.curLoaded = oc.nextLoaded
	oc.nextLoaded = false
	oc.band++
	oc.ready, oc.pos = 0, 0
	oc.d.trace("output band complete", slog.Int("band", oc.band), slog.Int("scanline", oc.d.outputScanline))
}
