package djpeg

import (
	"fmt"
	"log/slog"
)

// phuffDecoder decodes progressive Huffman scans (T.81 G.1.2). Each scan is one of DC
// first, DC refine, AC first or AC refine.
type phuffDecoder struct {
	d  *Decompressor
	st entropyState

	decode func(blocks []*block) (bool, error)
	dc     [maxCompsInScan]*derivedTable
	ac     *derivedTable
}

func (e *phuffDecoder) startPass() error {
	d := e.d
	s := &d.scan
	isDC := s.ss == 0

	bad := false
	if isDC {
		bad = s.se != 0
	} else {
		bad = s.ss > s.se || s.se > 63 || len(s.comps) != 1
	}
	if s.ah != 0 && s.al != s.ah-1 {
		bad = true
	}
	if s.al > 13 || s.ah > 13 {
		bad = true
	}
	if bad {
		return fmt.Errorf("%w: invalid progressive parameters Ss=%d Se=%d Ah=%d Al=%d",
			ErrCorrupt, s.ss, s.se, s.ah, s.al)
	}

	for _, c := range s.comps {
		bits := &d.coefBits[c.index]
		if !isDC && bits[0] < 0 {
			d.warn("AC scan before the component's DC scan", slog.Int("component", c.id))
		}
		for k := s.ss; k <= s.se; k++ {
			if expected := max(bits[k], 0); s.ah != expected {
				d.warn("inconsistent progression sequence",
					slog.Int("component", c.id), slog.Int("coef", k), slog.Int("Ah", s.ah))
			}
			bits[k] = s.al
		}
	}

	switch {
	case isDC && s.ah == 0:
		e.decode = e.dcFirst
	case isDC:
		e.decode = e.dcRefine
	case s.ah == 0:
		e.decode = e.acFirst
	default:
		e.decode = e.acRefine
	}

	for ci, c := range s.comps {
		var err error
		switch {
		case isDC && s.ah == 0:
			e.dc[ci], err = d.derived(true, c.dcTbl)
		case !isDC:
			e.ac, err = d.derived(false, c.acTbl)
		}
		if err != nil {
			return err
		}
	}
	e.st = entropyState{restartsToGo: d.hdr.RestartInterval}
	d.br.reset()
	return nil
}

func (e *phuffDecoder) decodeMCU(blocks []*block) error {
	d := e.d
	if d.hdr.RestartInterval != 0 && e.st.restartsToGo == 0 {
		if err := d.processRestart(&e.st); err != nil {
			return err
		}
	}
	if !d.br.insufficient {
		saved := d.br
		ok, err := e.decode(blocks)
		if err != nil {
			return err
		}
		if !ok {
			return d.suspendMCU(saved)
		}
	}
	e.st.restartsToGo--
	d.in.commit()
	return nil
}

func (e *phuffDecoder) dcFirst(blocks []*block) (bool, error) {
	d := e.d
	br := &d.br
	al := d.scan.al
	lastDC := e.st.lastDC
	for b, blk := range blocks {
		ci := d.scan.membership[b]
		s, ok := br.decode(e.dc[ci])
		if !ok {
			return false, nil
		}
		if s != 0 {
			if s, ok = br.receiveExtend(s); !ok {
				return false, nil
			}
		}
		lastDC[ci] += s
		blk[0] = int16(lastDC[ci] << al)
	}
	e.st.lastDC = lastDC
	return true, nil
}

func (e *phuffDecoder) dcRefine(blocks []*block) (bool, error) {
	br := &e.d.br
	p1 := int16(1) << e.d.scan.al
	var set [maxBlocksInMCU]bool
	for b := range blocks {
		if !br.ensure(1) {
			return false, nil
		}
		set[b] = br.bits(1) != 0
	}
	for b, blk := range blocks {
		if set[b] {
			blk[0] |= p1
		}
	}
	return true, nil
}

func (e *phuffDecoder) acFirst(blocks []*block) (bool, error) {
	d := e.d
	br := &d.br
	s := &d.scan
	eobrun := e.st.eobrun
	if eobrun > 0 {
		e.st.eobrun = eobrun - 1
		return true, nil
	}

	var vals [64]int16
	var pos [64]int
	n := 0
	for k := s.ss; k <= s.se; k++ {
		rs, ok := br.decode(e.ac)
		if !ok {
			return false, nil
		}
		r, sz := rs>>4, rs&15
		if sz != 0 {
			k += r
			v, ok := br.receiveExtend(sz)
			if !ok {
				return false, nil
			}
			pos[n], vals[n] = naturalOrder[k], int16(v<<s.al)
			n++
			continue
		}
		if r == 15 {
			k += 15
			continue
		}
		eobrun = 1 << r
		if r != 0 {
			if !br.ensure(r) {
				return false, nil
			}
			eobrun += br.bits(r)
		}
		eobrun--
		break
	}

	blk := blocks[0]
	for i := 0; i < n; i++ {
		blk[pos[i]] = vals[i]
	}
	e.st.eobrun = eobrun
	return true, nil
}

// acRefine applies correction bits and newly nonzero coefficients. Changes are collected
// first and applied only once the block is complete; every position is read before any
// change to it could be pending.
func (e *phuffDecoder) acRefine(blocks []*block) (bool, error) {
	d := e.d
	br := &d.br
	s := &d.scan
	blk := blocks[0]
	p1 := int16(1) << s.al
	m1 := int16(-1) << s.al

	type change struct {
		pos int
		val int16
	}
	var pending [len(naturalOrder)]change
	n := 0
	correct := func(pos int) bool {
		c := blk[pos]
		if !br.ensure(1) {
			return false
		}
		if br.bits(1) != 0 && c&p1 == 0 {
			if c >= 0 {
				c += p1
			} else {
				c += m1
			}
			pending[n] = change{pos, c}
			n++
		}
		return true
	}

	eobrun := e.st.eobrun
	k := s.ss
	if eobrun == 0 {
		for ; k <= s.se; k++ {
			rs, ok := br.decode(e.ac)
			if !ok {
				return false, nil
			}
			r, sz := rs>>4, rs&15
			var val int16
			if sz != 0 {
				if sz != 1 {
					d.warn("corrupt JPEG data: bad Huffman code in refinement scan")
				}
				if !br.ensure(1) {
					return false, nil
				}
				if br.bits(1) != 0 {
					val = p1
				} else {
					val = m1
				}
			} else if r != 15 {
				eobrun = 1 << r
				if r != 0 {
					if !br.ensure(r) {
						return false, nil
					}
					eobrun += br.bits(r)
				}
				break
			}

			// skip r zero-history coefficients, correcting nonzero ones on the way
			for ; k <= s.se; k++ {
				pos := naturalOrder[k]
				if blk[pos] != 0 {
					if !correct(pos) {
						return false, nil
					}
					continue
				}
				if r--; r < 0 {
					break
				}
			}
			if val != 0 {
				pending[n] = change{naturalOrder[k], val}
				n++
			}
		}
	}

	if eobrun > 0 {
		for ; k <= s.se; k++ {
			pos := naturalOrder[k]
			if blk[pos] != 0 {
				if !correct(pos) {
					return false, nil
				}
			}
		}
		eobrun--
	}

	for _, c := range pending[:n] {
		blk[c.pos] = c.val
	}
	e.st.eobrun = eobrun
	return true, nil
}
