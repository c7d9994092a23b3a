package djpeg

import (
	"fmt"
	"log/slog"
)

// component is one color component of the frame.
type component struct {
	index, id    int
	h, v         int // sampling factors
	tq           int
	dcTbl, acTbl int

	widthInBlocks, heightInBlocks int
	// dctScaled is the IDCT output size for this component: 1, 2, 4 or 8.
	dctScaled             int
	downWidth, downHeight int
	// needed is false when the color conversion ignores the component.
	needed bool

	// layout within the current scan's MCU
	mcuWidth, mcuHeight, mcuBlocks int
	mcuSampleWidth                 int
	lastColWidth, lastRowHeight    int

	// quant is latched the first time a scan uses the component.
	quant *[64]uint16

	idct idctTable
	arr  *virtualBlockArray
}

// scanInfo describes the scan in progress.
type scanInfo struct {
	comps          []*component
	ss, se, ah, al int

	mcusPerRow, mcuRowsInScan int
	blocksInMCU               int
	// membership maps an MCU block to its index in comps.
	membership [maxBlocksInMCU]int
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// resetInput returns the input side to its state before SOI. Tables are kept.
func (d *Decompressor) resetInput() {
	d.mr = markerState{}
	d.unreadMarker = 0
	d.segments = nil
	d.hdr = Header{}
	d.comps = nil
	d.scan = scanInfo{}
	d.inHeaders = true
	d.inputData = false
	d.eoiReached = false
	d.hasMultipleScans = false
	d.inputScanNumber, d.outputScanNumber = 0, 0
	d.inputIMCURow, d.outputIMCURow = 0, 0
	d.coefBits = nil
}

// consumeInput advances the input side by one unit of work.
func (d *Decompressor) consumeInput() (Progress, error) {
	if d.inputData {
		if d.coef == nil || d.coef.arrays == nil {
			// single-pass data is consumed by the output side
			return 0, ErrSuspended
		}
		return d.coef.consumeData()
	}
	return d.consumeMarkers()
}

func (d *Decompressor) consumeMarkers() (Progress, error) {
	if d.eoiReached {
		return ProgressReachedEOI, nil
	}
	st, err := d.readMarkers()
	if err != nil {
		return 0, err
	}
	switch st {
	case ProgressReachedSOS:
		if d.inHeaders {
			if err := d.initialSetup(); err != nil {
				return 0, err
			}
			d.inHeaders = false
			// the first scan starts once the output side has been configured
			break
		}
		if !d.hasMultipleScans {
			return 0, fmt.Errorf("%w: another scan in a single-scan image", ErrCorrupt)
		}
		if err := d.startInputPass(); err != nil {
			return 0, err
		}
	case ProgressReachedEOI:
		d.eoiReached = true
		if d.inHeaders {
			if d.mr.sawSOF {
				return 0, fmt.Errorf("%w: frame header without a scan", ErrCorrupt)
			}
		} else if d.outputScanNumber > d.inputScanNumber {
			d.outputScanNumber = d.inputScanNumber
		}
	}
	return st, nil
}

// initialSetup validates the frame and derives the image geometry at the first SOS.
func (d *Decompressor) initialSetup() error {
	h := &d.hdr
	if h.Width > maxDimension || h.Height > maxDimension {
		return fmt.Errorf("%w: image %dx%d exceeds %d pixels per side", ErrUnsupported, h.Width, h.Height, maxDimension)
	}
	if h.Precision != 8 {
		return fmt.Errorf("%w: %d-bit samples", ErrUnsupported, h.Precision)
	}
	if h.Components > maxComponents {
		return fmt.Errorf("%w: %d components", ErrUnsupported, h.Components)
	}

	d.maxH, d.maxV = 1, 1
	for _, c := range d.comps {
		if c.h < 1 || c.h > maxSampFactor || c.v < 1 || c.v > maxSampFactor {
			return fmt.Errorf("%w: bad sampling factors %dx%d", ErrCorrupt, c.h, c.v)
		}
		d.maxH = max(d.maxH, c.h)
		d.maxV = max(d.maxV, c.v)
	}

	d.minDCT = 8
	for _, c := range d.comps {
		c.dctScaled = 8
		c.widthInBlocks = ceilDiv(h.Width*c.h, d.maxH*8)
		c.heightInBlocks = ceilDiv(h.Height*c.v, d.maxV*8)
		c.downWidth = ceilDiv(h.Width*c.h, d.maxH)
		c.downHeight = ceilDiv(h.Height*c.v, d.maxV)
		c.needed = true
		c.quant = nil
	}
	d.totalIMCURows = ceilDiv(h.Height, d.maxV*8)
	d.hasMultipleScans = len(d.scan.comps) < len(d.comps) || h.Progressive
	return nil
}

// perScanSetup lays out the MCU of the current scan (T.81 A.2).
func (d *Decompressor) perScanSetup() error {
	s := &d.scan
	if len(s.comps) == 1 {
		// noninterleaved: one block per MCU, rows and columns follow the component
		c := s.comps[0]
		s.mcusPerRow = c.widthInBlocks
		s.mcuRowsInScan = c.heightInBlocks
		c.mcuWidth, c.mcuHeight, c.mcuBlocks = 1, 1, 1
		c.mcuSampleWidth = c.dctScaled
		c.lastColWidth = 1
		c.lastRowHeight = c.heightInBlocks % c.v
		if c.lastRowHeight == 0 {
			c.lastRowHeight = c.v
		}
		s.blocksInMCU = 1
		s.membership[0] = 0
		return nil
	}

	s.mcusPerRow = ceilDiv(d.hdr.Width, d.maxH*8)
	s.mcuRowsInScan = ceilDiv(d.hdr.Height, d.maxV*8)
	s.blocksInMCU = 0
	for ci, c := range s.comps {
		c.mcuWidth, c.mcuHeight = c.h, c.v
		c.mcuBlocks = c.h * c.v
		c.mcuSampleWidth = c.h * c.dctScaled
		c.lastColWidth = c.widthInBlocks % c.h
		if c.lastColWidth == 0 {
			c.lastColWidth = c.h
		}
		c.lastRowHeight = c.heightInBlocks % c.v
		if c.lastRowHeight == 0 {
			c.lastRowHeight = c.v
		}
		if s.blocksInMCU+c.mcuBlocks > maxBlocksInMCU {
			return fmt.Errorf("%w: sampling factors too large for an interleaved scan", ErrCorrupt)
		}
		for i := 0; i < c.mcuBlocks; i++ {
			s.membership[s.blocksInMCU] = ci
			s.blocksInMCU++
		}
	}
	return nil
}

// latchQuantTables copies each scan component's quantization table the first time the
// component appears, so a later DQT cannot change coefficients already decoded.
func (d *Decompressor) latchQuantTables() error {
	for _, c := range d.scan.comps {
		if c.quant != nil {
			continue
		}
		if c.tq < 0 || c.tq >= numQuantTables || d.quant[c.tq] == nil {
			return fmt.Errorf("%w: quantization table %d was not defined", ErrCorrupt, c.tq)
		}
		q, err := alloc[[64]uint16](d.mem, poolImage)
		if err != nil {
			return err
		}
		*q = *d.quant[c.tq]
		c.quant = q
	}
	return nil
}

func (d *Decompressor) startInputPass() error {
	if err := d.perScanSetup(); err != nil {
		return err
	}
	if err := d.latchQuantTables(); err != nil {
		return err
	}
	if err := d.entropy.startPass(); err != nil {
		return err
	}
	d.coef.startInputPass()
	d.inputData = true
	return nil
}

func (d *Decompressor) finishInputPass() {
	d.inputData = false
}

// guessColorSpace infers the stream's color space from the markers seen.
func (d *Decompressor) guessColorSpace() {
	h := &d.hdr
	switch h.Components {
	case 1:
		h.ColorSpace = ColorGray
	case 3:
		switch {
		case h.SawJFIF:
			h.ColorSpace = ColorYCbCr
		case h.SawAdobe:
			switch h.AdobeTransform {
			case 0:
				h.ColorSpace = ColorRGB
			case 1:
				h.ColorSpace = ColorYCbCr
			default:
				d.warn("unknown Adobe color transform", slog.Int("transform", h.AdobeTransform))
				h.ColorSpace = ColorYCbCr
			}
		default:
			id0, id1, id2 := d.comps[0].id, d.comps[1].id, d.comps[2].id
			switch {
			case id0 == 1 && id1 == 2 && id2 == 3:
				h.ColorSpace = ColorYCbCr
			case id0 == 'R' && id1 == 'G' && id2 == 'B':
				h.ColorSpace = ColorRGB
			default:
				d.trace("unrecognized component IDs, assuming YCbCr",
					slog.Int("id0", id0), slog.Int("id1", id1), slog.Int("id2", id2))
				h.ColorSpace = ColorYCbCr
			}
		}
	case 4:
		if !h.SawAdobe {
			h.ColorSpace = ColorCMYK
			break
		}
		switch h.AdobeTransform {
		case 0:
			h.ColorSpace = ColorCMYK
		case 2:
			h.ColorSpace = ColorYCCK
		default:
			d.warn("unknown Adobe color transform", slog.Int("transform", h.AdobeTransform))
			h.ColorSpace = ColorYCCK
		}
	default:
		h.ColorSpace = ColorUnknown
	}
}

// defaultOutColorSpace is the output a stream decodes to when none is requested.
func (d *Decompressor) defaultOutColorSpace() ColorSpace {
	switch d.hdr.ColorSpace {
	case ColorGray:
		return ColorGray
	case ColorYCbCr, ColorRGB:
		return ColorRGB
	case ColorCMYK, ColorYCCK:
		return ColorCMYK
	default:
		return ColorUnknown
	}
}
