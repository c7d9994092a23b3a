package djpeg

import (
	"bytes"
	"math"
)

// Test-only JPEG writer. It produces baseline and progressive Huffman streams from
// quantized coefficient blocks, either supplied directly or computed from sample
// functions with a floating-point forward DCT.

// stdLuminanceQuant is the T.81 K.1 luminance table in natural order.
var stdLuminanceQuant = [64]uint16{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

func flatQuant(q uint16) (t [64]uint16) {
	for i := range t {
		t[i] = q
	}
	return t
}

type compSpec struct {
	id, h, v int
	tq       int
	// sample returns the component sample at (x, y) in component resolution.
	sample func(x, y int) byte
	// blocks, when set, are used instead of sample: [row][col] in natural order.
	blocks [][]block
}

type frameSpec struct {
	width, height int
	comps         []compSpec
	quant         [][64]uint16
	restart       int
	// standardTables uses the K.3 tables instead of flat ones.
	standardTables bool
	// omitDHT leaves the tables out so the decoder falls back to K.3 tables.
	omitDHT bool
	// omitTables leaves DQT and DHT out, for abbreviated image streams.
	omitTables bool
	comment    string
}

type scanSpec struct {
	comps          []int
	ss, se, ah, al int
}

type testComp struct {
	compSpec
	wib, hib int // blocks covering the component
	// coefs covers the MCU-padded area
	coefs [][]block
}

type testFrame struct {
	spec       frameSpec
	comps      []*testComp
	maxH, maxV int
	dc, ac     *huffTable
}

func newTestFrame(fs frameSpec) *testFrame {
	f := &testFrame{spec: fs, maxH: 1, maxV: 1}
	for _, c := range fs.comps {
		f.maxH = max(f.maxH, c.h)
		f.maxV = max(f.maxV, c.v)
	}
	for _, cs := range fs.comps {
		c := &testComp{compSpec: cs}
		c.wib = ceilDiv(fs.width*c.h, f.maxH*8)
		c.hib = ceilDiv(fs.height*c.v, f.maxV*8)
		cw := ceilDiv(fs.width*c.h, f.maxH)
		ch := ceilDiv(fs.height*c.v, f.maxV)
		rows := ceilDiv(c.hib, c.v) * c.v
		cols := ceilDiv(c.wib, c.h) * c.h
		c.coefs = make([][]block, rows)
		for by := range c.coefs {
			c.coefs[by] = make([]block, cols)
			for bx := range c.coefs[by] {
				switch {
				case cs.blocks != nil:
					if by < len(cs.blocks) && bx < len(cs.blocks[by]) {
						c.coefs[by][bx] = cs.blocks[by][bx]
					}
				default:
					c.coefs[by][bx] = forwardDCT(cs.sample, bx*8, by*8, cw, ch, &fs.quant[cs.tq])
				}
			}
		}
		f.comps = append(f.comps, c)
	}
	if fs.standardTables || fs.omitDHT {
		f.dc, f.ac = standardTable(true, 0), standardTable(false, 0)
	} else {
		f.dc, f.ac = flatTable(dcSymbols()), flatTable(acSymbols())
	}
	return f
}

// forwardDCT transforms the 8x8 block at (x0, y0), replicating edge samples past the
// component size, and quantizes it.
func forwardDCT(sample func(x, y int) byte, x0, y0, cw, ch int, q *[64]uint16) (b block) {
	var s [8][8]float64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			s[y][x] = float64(sample(min(x0+x, cw-1), min(y0+y, ch-1))) - 128
		}
	}
	for v := 0; v < 8; v++ {
		for u := 0; u < 8; u++ {
			sum := 0.0
			for y := 0; y < 8; y++ {
				for x := 0; x < 8; x++ {
					sum += s[y][x] *
						math.Cos(float64(2*x+1)*float64(u)*math.Pi/16) *
						math.Cos(float64(2*y+1)*float64(v)*math.Pi/16)
				}
			}
			cu, cv := 1.0, 1.0
			if u == 0 {
				cu = 1 / math.Sqrt2
			}
			if v == 0 {
				cv = 1 / math.Sqrt2
			}
			b[v*8+u] = int16(math.Round(sum * cu * cv / 4 / float64(q[v*8+u])))
		}
	}
	return b
}

func dcSymbols() []byte {
	s := make([]byte, 12)
	for i := range s {
		s[i] = byte(i)
	}
	return s
}

// acSymbols lists every run/size pair plus EOBn and ZRL.
func acSymbols() []byte {
	var s []byte
	for r := 0; r < 16; r++ {
		s = append(s, byte(r<<4))
		for sz := 1; sz <= 10; sz++ {
			s = append(s, byte(r<<4|sz))
		}
	}
	return s
}

// flatTable assigns equal-length codes to syms.
func flatTable(syms []byte) *huffTable {
	l := 1
	for 1<<l-1 < len(syms) {
		l++
	}
	t := &huffTable{}
	t.bits[l] = uint8(len(syms))
	copy(t.vals[:], syms)
	return t
}

type encTable struct {
	code [256]uint32
	size [256]int
}

func newEncTable(t *huffTable) *encTable {
	e := &encTable{}
	code := uint32(0)
	p := 0
	for l := 1; l <= 16; l++ {
		for i := 0; i < int(t.bits[l]); i++ {
			sym := t.vals[p]
			e.code[sym], e.size[sym] = code, l
			code++
			p++
		}
		code <<= 1
	}
	return e
}

type bitWriter struct {
	out *bytes.Buffer
	acc uint64
	n   int
}

func (w *bitWriter) write(v uint32, size int) {
	if size == 0 {
		return
	}
	w.acc = w.acc<<uint(size) | uint64(v)&(1<<uint(size)-1)
	w.n += size
	for w.n >= 8 {
		b := byte(w.acc >> uint(w.n-8))
		w.out.WriteByte(b)
		if b == 0xFF {
			w.out.WriteByte(0)
		}
		w.n -= 8
	}
	w.acc &= 1<<uint(w.n) - 1
}

// flush pads the last byte with ones.
func (w *bitWriter) flush() {
	if w.n > 0 {
		w.write(1<<uint(8-w.n)-1, 8-w.n)
	}
}

func bitLen(v int) int {
	n := 0
	for v > 0 {
		v >>= 1
		n++
	}
	return n
}

type streamWriter struct {
	f   *testFrame
	buf bytes.Buffer
	bw  bitWriter
	dc  *encTable
	ac  *encTable
}

func (sw *streamWriter) marker(m Marker) {
	sw.buf.Write([]byte{0xFF, byte(m)})
}

func (sw *streamWriter) segment(m Marker, payload []byte) {
	sw.marker(m)
	n := len(payload) + 2
	sw.buf.Write([]byte{byte(n >> 8), byte(n)})
	sw.buf.Write(payload)
}

func (sw *streamWriter) tables() {
	var p []byte
	for i, q := range sw.f.spec.quant {
		p = append(p, byte(i))
		for k := 0; k < 64; k++ {
			p = append(p, byte(q[naturalOrder[k]]))
		}
	}
	sw.segment(MarkerDQT, p)
	if sw.f.spec.omitDHT {
		return
	}
	sw.segment(MarkerDHT, huffPayload(0x00, sw.f.dc))
	sw.segment(MarkerDHT, huffPayload(0x10, sw.f.ac))
}

func huffPayload(class byte, t *huffTable) []byte {
	p := []byte{class}
	n := 0
	for l := 1; l <= 16; l++ {
		p = append(p, t.bits[l])
		n += int(t.bits[l])
	}
	return append(p, t.vals[:n]...)
}

func (sw *streamWriter) header(sof Marker) {
	f := sw.f
	sw.marker(MarkerSOI)
	sw.segment(MarkerAPP0, []byte{'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0})
	if f.spec.comment != "" {
		sw.segment(MarkerCOM, []byte(f.spec.comment))
	}
	if !f.spec.omitTables {
		sw.tables()
	}
	p := []byte{8, byte(f.spec.height >> 8), byte(f.spec.height), byte(f.spec.width >> 8), byte(f.spec.width), byte(len(f.comps))}
	for _, c := range f.comps {
		p = append(p, byte(c.id), byte(c.h<<4|c.v), byte(c.tq))
	}
	sw.segment(sof, p)
	if f.spec.restart > 0 {
		sw.segment(MarkerDRI, []byte{byte(f.spec.restart >> 8), byte(f.spec.restart)})
	}
}

func (sw *streamWriter) sos(s scanSpec) {
	p := []byte{byte(len(s.comps))}
	for _, ci := range s.comps {
		p = append(p, byte(sw.f.comps[ci].id), 0x00)
	}
	p = append(p, byte(s.ss), byte(s.se), byte(s.ah<<4|s.al))
	sw.segment(MarkerSOS, p)
	sw.bw = bitWriter{out: &sw.buf}
}

// scanBlocks visits the blocks of a scan in MCU order, calling restart between
// restart intervals.
func (sw *streamWriter) scanBlocks(s scanSpec, visit func(ci int, b *block), restart func()) {
	f := sw.f
	ri := f.spec.restart
	mcu := 0
	next := func() {
		mcu++
		if ri > 0 && mcu%ri == 0 {
			restart()
		}
	}
	if len(s.comps) == 1 {
		c := f.comps[s.comps[0]]
		total := c.hib * c.wib
		for by := 0; by < c.hib; by++ {
			for bx := 0; bx < c.wib; bx++ {
				visit(s.comps[0], &c.coefs[by][bx])
				if by*c.wib+bx < total-1 {
					next()
				}
			}
		}
		return
	}
	cols := ceilDiv(f.spec.width, f.maxH*8)
	rows := ceilDiv(f.spec.height, f.maxV*8)
	for my := 0; my < rows; my++ {
		for mx := 0; mx < cols; mx++ {
			for _, ci := range s.comps {
				c := f.comps[ci]
				for yi := 0; yi < c.v; yi++ {
					for xi := 0; xi < c.h; xi++ {
						visit(ci, &c.coefs[my*c.v+yi][mx*c.h+xi])
					}
				}
			}
			if my*cols+mx < rows*cols-1 {
				next()
			}
		}
	}
}

func (sw *streamWriter) rst(n *int) {
	sw.bw.flush()
	sw.marker(MarkerRST0 + Marker(*n&7))
	*n++
}

func (sw *streamWriter) magnitude(v int) (uint32, int) {
	a := v
	if a < 0 {
		a = -a
	}
	n := bitLen(a)
	if v < 0 {
		v--
	}
	return uint32(v) & (1<<uint(n) - 1), n
}

func (sw *streamWriter) sequentialScan(s scanSpec) {
	sw.sos(s)
	var pred [maxComponents]int
	nrst := 0
	sw.scanBlocks(s, func(ci int, b *block) {
		diff := int(b[0]) - pred[ci]
		pred[ci] = int(b[0])
		bits, n := sw.magnitude(diff)
		sw.bw.write(sw.dc.code[n], sw.dc.size[n])
		sw.bw.write(bits, n)
		r := 0
		for k := 1; k < 64; k++ {
			v := int(b[naturalOrder[k]])
			if v == 0 {
				r++
				continue
			}
			for r > 15 {
				sw.bw.write(sw.ac.code[0xF0], sw.ac.size[0xF0])
				r -= 16
			}
			bits, n := sw.magnitude(v)
			sym := r<<4 | n
			sw.bw.write(sw.ac.code[sym], sw.ac.size[sym])
			sw.bw.write(bits, n)
			r = 0
		}
		if r > 0 {
			sw.bw.write(sw.ac.code[0], sw.ac.size[0])
		}
	}, func() {
		sw.rst(&nrst)
		pred = [maxComponents]int{}
	})
	sw.bw.flush()
}

func (sw *streamWriter) dcFirstScan(s scanSpec) {
	sw.sos(s)
	var pred [maxComponents]int
	nrst := 0
	sw.scanBlocks(s, func(ci int, b *block) {
		v := int(b[0]) >> s.al
		diff := v - pred[ci]
		pred[ci] = v
		bits, n := sw.magnitude(diff)
		sw.bw.write(sw.dc.code[n], sw.dc.size[n])
		sw.bw.write(bits, n)
	}, func() {
		sw.rst(&nrst)
		pred = [maxComponents]int{}
	})
	sw.bw.flush()
}

func (sw *streamWriter) dcRefineScan(s scanSpec) {
	sw.sos(s)
	nrst := 0
	sw.scanBlocks(s, func(ci int, b *block) {
		sw.bw.write(uint32(int(b[0])>>s.al)&1, 1)
	}, func() { sw.rst(&nrst) })
	sw.bw.flush()
}

func (sw *streamWriter) emitEOBRun(run *int) {
	if *run == 0 {
		return
	}
	n := bitLen(*run) - 1
	sym := n << 4
	sw.bw.write(sw.ac.code[sym], sw.ac.size[sym])
	sw.bw.write(uint32(*run), n)
	*run = 0
}

func (sw *streamWriter) acFirstScan(s scanSpec) {
	sw.sos(s)
	eobrun := 0
	nrst := 0
	sw.scanBlocks(s, func(ci int, b *block) {
		r := 0
		for k := s.ss; k <= s.se; k++ {
			v := int(b[naturalOrder[k]])
			a := v
			if a < 0 {
				a = -a
			}
			a >>= s.al
			if a == 0 {
				r++
				continue
			}
			sw.emitEOBRun(&eobrun)
			for r > 15 {
				sw.bw.write(sw.ac.code[0xF0], sw.ac.size[0xF0])
				r -= 16
			}
			n := bitLen(a)
			bits := uint32(a)
			if v < 0 {
				bits = ^uint32(a)
			}
			sym := r<<4 | n
			sw.bw.write(sw.ac.code[sym], sw.ac.size[sym])
			sw.bw.write(bits, n)
			r = 0
		}
		if r > 0 {
			eobrun++
			if eobrun == 0x7FFF {
				sw.emitEOBRun(&eobrun)
			}
		}
	}, func() {
		sw.emitEOBRun(&eobrun)
		sw.rst(&nrst)
	})
	sw.emitEOBRun(&eobrun)
	sw.bw.flush()
}

// acRefineScan ends every block with its own EOB instead of accumulating runs.
func (sw *streamWriter) acRefineScan(s scanSpec) {
	sw.sos(s)
	nrst := 0
	sw.scanBlocks(s, func(ci int, b *block) {
		var abs [64]int
		eob := 0
		for k := s.ss; k <= s.se; k++ {
			v := int(b[naturalOrder[k]])
			if v < 0 {
				v = -v
			}
			abs[k] = v >> s.al
			if abs[k] == 1 {
				eob = k
			}
		}
		var pending []uint32
		r := 0
		for k := s.ss; k <= s.se; k++ {
			a := abs[k]
			if a == 0 {
				r++
				continue
			}
			for r > 15 && k <= eob {
				sw.bw.write(sw.ac.code[0xF0], sw.ac.size[0xF0])
				r -= 16
				for _, bit := range pending {
					sw.bw.write(bit, 1)
				}
				pending = pending[:0]
			}
			if a > 1 {
				pending = append(pending, uint32(a&1))
				continue
			}
			sym := r<<4 | 1
			sw.bw.write(sw.ac.code[sym], sw.ac.size[sym])
			sign := uint32(1)
			if b[naturalOrder[k]] < 0 {
				sign = 0
			}
			sw.bw.write(sign, 1)
			for _, bit := range pending {
				sw.bw.write(bit, 1)
			}
			pending = pending[:0]
			r = 0
		}
		if r > 0 || len(pending) > 0 {
			sw.bw.write(sw.ac.code[0], sw.ac.size[0])
			for _, bit := range pending {
				sw.bw.write(bit, 1)
			}
		}
	}, func() { sw.rst(&nrst) })
	sw.bw.flush()
}

func newStreamWriter(f *testFrame) *streamWriter {
	return &streamWriter{f: f, dc: newEncTable(f.dc), ac: newEncTable(f.ac)}
}

func allComps(f *testFrame) []int {
	s := make([]int, len(f.comps))
	for i := range s {
		s[i] = i
	}
	return s
}

// baseline writes a single interleaved sequential scan.
func (f *testFrame) baseline() []byte {
	sw := newStreamWriter(f)
	sw.header(MarkerSOF0)
	sw.sequentialScan(scanSpec{comps: allComps(f), se: 63})
	sw.marker(MarkerEOI)
	return sw.buf.Bytes()
}

// sequentialPerComponent writes one noninterleaved sequential scan per component.
func (f *testFrame) sequentialPerComponent() []byte {
	sw := newStreamWriter(f)
	sw.header(MarkerSOF1)
	for ci := range f.comps {
		sw.sequentialScan(scanSpec{comps: []int{ci}, se: 63})
	}
	sw.marker(MarkerEOI)
	return sw.buf.Bytes()
}

// progressive writes the scans of script in order.
func (f *testFrame) progressive(script []scanSpec) []byte {
	sw := newStreamWriter(f)
	sw.header(MarkerSOF2)
	for _, s := range script {
		switch {
		case s.ss == 0 && s.ah == 0:
			sw.dcFirstScan(s)
		case s.ss == 0:
			sw.dcRefineScan(s)
		case s.ah == 0:
			sw.acFirstScan(s)
		default:
			sw.acRefineScan(s)
		}
	}
	sw.marker(MarkerEOI)
	return sw.buf.Bytes()
}

// tablesOnly writes an abbreviated stream defining the frame's tables.
func (f *testFrame) tablesOnly() []byte {
	sw := newStreamWriter(f)
	sw.marker(MarkerSOI)
	sw.tables()
	sw.marker(MarkerEOI)
	return sw.buf.Bytes()
}

// fullProgression covers every coefficient with successive approximation on both DC
// and AC.
func fullProgression(ncomps int) []scanSpec {
	all := make([]int, ncomps)
	for i := range all {
		all[i] = i
	}
	s := []scanSpec{{comps: all, ss: 0, se: 0, ah: 0, al: 1}}
	s = append(s, scanSpec{comps: []int{0}, ss: 1, se: 5, ah: 0, al: 2})
	for ci := 1; ci < ncomps; ci++ {
		s = append(s, scanSpec{comps: []int{ci}, ss: 1, se: 63, ah: 0, al: 1})
	}
	s = append(s,
		scanSpec{comps: []int{0}, ss: 6, se: 63, ah: 0, al: 2},
		scanSpec{comps: []int{0}, ss: 1, se: 63, ah: 2, al: 1},
		scanSpec{comps: all, ss: 0, se: 0, ah: 1, al: 0},
	)
	for ci := 1; ci < ncomps; ci++ {
		s = append(s, scanSpec{comps: []int{ci}, ss: 1, se: 63, ah: 1, al: 0})
	}
	return append(s, scanSpec{comps: []int{0}, ss: 1, se: 63, ah: 1, al: 0})
}

func grayFrame(w, h int) frameSpec {
	return frameSpec{
		width: w, height: h,
		quant: [][64]uint16{stdLuminanceQuant},
		comps: []compSpec{{id: 1, h: 1, v: 1, sample: func(x, y int) byte {
			return byte((x*7 + y*3 + (x*y)%31) & 0xFF)
		}}},
	}
}

func yccFrame(w, h int) frameSpec {
	return frameSpec{
		width: w, height: h,
		quant: [][64]uint16{stdLuminanceQuant, flatQuant(12)},
		comps: []compSpec{
			{id: 1, h: 2, v: 2, sample: func(x, y int) byte { return byte((x*5 + y*2) & 0xFF) }},
			{id: 2, h: 1, v: 1, tq: 1, sample: func(x, y int) byte { return byte(96 + (x*3)%64) }},
			{id: 3, h: 1, v: 1, tq: 1, sample: func(x, y int) byte { return byte(160 - (y*5)%64) }},
		},
	}
}
