package djpeg

import "log/slog"

const (
	// minGetBits is the fill target of the 64-bit reservoir: the most bits that can be
	// buffered while still guaranteeing room for one more byte.
	minGetBits = 57
	lookahead  = 8
)

// bitReader reads entropy-coded data. Its byte position is the decoder's input
// position; acc holds n not-yet-consumed bits, right aligned. A copy of the struct is
// the complete state needed to retry an MCU after a suspension.
type bitReader struct {
	d   *Decompressor
	acc uint64
	n   int
	// insufficient is set once a marker cut the segment short; the rest of the segment
	// decodes as zeros without further warnings.
	insufficient bool
}

func (br *bitReader) reset() {
	br.acc, br.n = 0, 0
	br.insufficient = false
}

// fill loads bytes until at least minGetBits are buffered or a marker is reached. When
// a marker stops it short of nbits, the reservoir is padded with zeros. Returns false
// only when input ran out and the caller must suspend.
func (br *bitReader) fill(nbits int) bool {
	d := br.d
	in := &d.in
	if d.unreadMarker == 0 {
		for br.n < minGetBits {
			if in.pos >= len(in.data) && !d.fill() {
				return false
			}
			c := in.data[in.pos]
			in.pos++
			if c == 0xFF {
				// FF 00 is a stuffed FF; FF FF is fill; anything else is a marker
				for {
					if in.pos >= len(in.data) && !d.fill() {
						return false
					}
					c = in.data[in.pos]
					in.pos++
					if c != 0xFF {
						break
					}
				}
				if c != 0 {
					d.unreadMarker = Marker(c)
					break
				}
				c = 0xFF
			}
			br.acc = br.acc<<8 | uint64(c)
			br.n += 8
		}
	}
	if nbits > br.n {
		if !br.insufficient {
			d.warn("corrupt JPEG data: premature end of data segment",
				slog.String("marker", d.unreadMarker.String()))
			br.insufficient = true
		}
		br.acc <<= uint(minGetBits - br.n)
		br.n = minGetBits
	}
	return true
}

// ensure guarantees n buffered bits.
func (br *bitReader) ensure(n int) bool {
	if br.n >= n {
		return true
	}
	return br.fill(n)
}

// bits consumes n buffered bits.
func (br *bitReader) bits(n int) int {
	br.n -= n
	return int(br.acc>>uint(br.n)) & (1<<n - 1)
}

func (br *bitReader) peek(n int) int {
	return int(br.acc>>uint(br.n-n)) & (1<<n - 1)
}

// decode reads one Huffman symbol. The second result is false on suspension.
func (br *bitReader) decode(t *derivedTable) (int, bool) {
	if br.n < lookahead {
		if !br.fill(0) {
			return 0, false
		}
		if br.n < lookahead {
			return br.decodeSlow(t, 1)
		}
	}
	look := br.peek(lookahead)
	if nb := int(t.lookNBits[look]); nb != 0 {
		br.n -= nb
		return int(t.lookSym[look]), true
	}
	return br.decodeSlow(t, lookahead+1)
}

// decodeSlow handles codes longer than the lookahead, and the tail of a segment.
func (br *bitReader) decodeSlow(t *derivedTable, minBits int) (int, bool) {
	l := minBits
	if !br.ensure(l) {
		return 0, false
	}
	code := int32(br.bits(l))
	for code > t.maxcode[l] {
		code <<= 1
		if !br.ensure(1) {
			return 0, false
		}
		code |= int32(br.bits(1))
		l++
	}
	if l > 16 {
		br.d.warn("corrupt JPEG data: bad Huffman code")
		return 0, true
	}
	return int(t.huffval[int(code+t.valoffset[l])&0xFF]), true
}

// receiveExtend reads s magnitude bits and sign-extends them (T.81 F.2.2.1).
func (br *bitReader) receiveExtend(s int) (int, bool) {
	if !br.ensure(s) {
		return 0, false
	}
	return extend(br.bits(s), s), true
}

func extend(v, s int) int {
	if v < 1<<(s-1) {
		return v + (-1 << s) + 1
	}
	return v
}
