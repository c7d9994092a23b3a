package djpeg

import "log/slog"

// block holds one 8x8 block of quantized coefficients in natural order.
type block [64]int16

// naturalOrder maps zigzag index to natural index. The tail absorbs run lengths that
// overshoot position 63 in corrupt data.
var naturalOrder = [64 + 16]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
	63, 63, 63, 63, 63, 63, 63, 63,
	63, 63, 63, 63, 63, 63, 63, 63,
}

// entropyDecoder turns entropy-coded data into coefficient blocks, one MCU per call.
// decodeMCU either decodes the whole MCU or, on suspension, leaves every block and all
// decoder state as they were.
type entropyDecoder interface {
	startPass() error
	decodeMCU(blocks []*block) error
}

// entropyState is the part of the decoder state that a suspended MCU must not change.
type entropyState struct {
	lastDC       [maxCompsInScan]int
	eobrun       int
	restartsToGo int
}

// processRestart consumes the restart marker at the end of an interval and resets the
// predictors.
func (d *Decompressor) processRestart(st *entropyState) error {
	d.mr.discarded += d.br.n / 8
	d.br.acc, d.br.n = 0, 0
	if err := d.readRestartMarker(); err != nil {
		return err
	}
	d.in.commit()
	st.lastDC = [maxCompsInScan]int{}
	st.eobrun = 0
	st.restartsToGo = d.hdr.RestartInterval
	// a marker left unread by resync keeps the rest of the segment empty
	if d.unreadMarker == 0 {
		d.br.insufficient = false
	}
	return nil
}

// suspendMCU restores the MCU-start state after input ran out.
func (d *Decompressor) suspendMCU(saved bitReader) error {
	d.br = saved
	d.in.rewind()
	return d.suspendErr()
}

// huffDecoder decodes sequential (baseline and extended) Huffman scans.
type huffDecoder struct {
	d  *Decompressor
	st entropyState

	dc, ac             [maxBlocksInMCU]*derivedTable
	dcNeeded, acNeeded [maxBlocksInMCU]bool
}

func (e *huffDecoder) startPass() error {
	d := e.d
	s := &d.scan
	if s.ss != 0 || s.se != 63 || s.ah != 0 || s.al != 0 {
		d.warn("invalid progression parameters for a sequential scan",
			slog.Int("Ss", s.ss), slog.Int("Se", s.se), slog.Int("Ah", s.ah), slog.Int("Al", s.al))
	}
	for b := 0; b < s.blocksInMCU; b++ {
		c := s.comps[s.membership[b]]
		dc, err := d.derived(true, c.dcTbl)
		if err != nil {
			return err
		}
		ac, err := d.derived(false, c.acTbl)
		if err != nil {
			return err
		}
		e.dc[b], e.ac[b] = dc, ac
		e.dcNeeded[b] = c.needed
		e.acNeeded[b] = c.needed && c.dctScaled > 1
	}
	e.st = entropyState{restartsToGo: d.hdr.RestartInterval}
	d.br.reset()
	return nil
}

func (e *huffDecoder) decodeMCU(blocks []*block) error {
	d := e.d
	br := &d.br
	if d.hdr.RestartInterval != 0 && e.st.restartsToGo == 0 {
		if err := d.processRestart(&e.st); err != nil {
			return err
		}
	}

	if !br.insufficient {
		saved := *br
		lastDC := e.st.lastDC
		for b, blk := range blocks {
			ci := d.scan.membership[b]
			s, ok := br.decode(e.dc[b])
			if !ok {
				return d.suspendMCU(saved)
			}
			if s != 0 {
				if s, ok = br.receiveExtend(s); !ok {
					return d.suspendMCU(saved)
				}
			}
			lastDC[ci] += s
			if e.dcNeeded[b] {
				blk[0] = int16(lastDC[ci])
			}

			for k := 1; k < 64; k++ {
				rs, ok := br.decode(e.ac[b])
				if !ok {
					return d.suspendMCU(saved)
				}
				r, s := rs>>4, rs&15
				if s == 0 {
					if r != 15 {
						break
					}
					k += 15
					continue
				}
				k += r
				if !e.acNeeded[b] {
					if !br.ensure(s) {
						return d.suspendMCU(saved)
					}
					br.n -= s
					continue
				}
				v, ok := br.receiveExtend(s)
				if !ok {
					return d.suspendMCU(saved)
				}
				blk[naturalOrder[k]] = int16(v)
			}
		}
		e.st.lastDC = lastDC
	}

	e.st.restartsToGo--
	d.in.commit()
	return nil
}
