package djpeg

import "fmt"

// huffTable is a DHT table as transmitted: bits[l] codes of length l, then the symbols.
type huffTable struct {
	bits [17]uint8
	vals [256]uint8
}

// derivedTable is the decoding form of a huffTable (T.81 F.2.2.3 plus a lookahead).
type derivedTable struct {
	// maxcode[l] is the largest code of length l, -1 if none; maxcode[17] stops the
	// slow-path loop.
	maxcode [18]int32
	// valoffset[l] turns a code of length l into an index into huffval.
	valoffset [17]int32
	huffval   [256]uint8

	// lookNBits[b] is the length of the code prefixing the 8-bit window b, 0 when the
	// code is longer; lookSym is its symbol.
	lookNBits [1 << lookahead]uint8
	lookSym   [1 << lookahead]uint8
}

func buildDerived(t *huffTable, isDC bool) (*derivedTable, error) {
	return buildDerivedInto(new(derivedTable), t, isDC)
}

// buildDerivedInto fills dt, which the caller has allocated, from t.
func buildDerivedInto(dt *derivedTable, t *huffTable, isDC bool) (*derivedTable, error) {
	var huffsize [257]uint8
	var huffcode [257]int32

	p := 0
	for l := 1; l <= 16; l++ {
		n := int(t.bits[l])
		if p+n > 256 {
			return nil, fmt.Errorf("%w: bad Huffman table", ErrCorrupt)
		}
		for ; n > 0; n-- {
			huffsize[p] = uint8(l)
			p++
		}
	}
	huffsize[p] = 0
	numSymbols := p

	code := int32(0)
	si := int(huffsize[0])
	p = 0
	for huffsize[p] != 0 {
		for int(huffsize[p]) == si {
			huffcode[p] = code
			p++
			code++
		}
		// a code of all ones is reserved
		if code >= 1<<si {
			return nil, fmt.Errorf("%w: bad Huffman table", ErrCorrupt)
		}
		code <<= 1
		si++
	}

	dt.huffval = t.vals
	p = 0
	for l := 1; l <= 16; l++ {
		if t.bits[l] != 0 {
			dt.valoffset[l] = int32(p) - huffcode[p]
			p += int(t.bits[l])
			dt.maxcode[l] = huffcode[p-1]
		} else {
			dt.maxcode[l] = -1
		}
	}
	dt.maxcode[17] = 0xFFFFF

	p = 0
	for l := 1; l <= lookahead; l++ {
		for i := 1; i <= int(t.bits[l]); i++ {
			bits := int(huffcode[p]) << (lookahead - l)
			for ctr := 1 << (lookahead - l); ctr > 0; ctr-- {
				dt.lookNBits[bits] = uint8(l)
				dt.lookSym[bits] = t.vals[p]
				bits++
			}
			p++
		}
	}

	if isDC {
		// DC symbols are magnitude categories; anything past 15 would overrun the extend
		for i := 0; i < numSymbols; i++ {
			if t.vals[i] > 15 {
				return nil, fmt.Errorf("%w: bad Huffman table", ErrCorrupt)
			}
		}
	}
	return dt, nil
}

// derived returns the cached decoding table for a slot, building it on first use.
// Slots 0 and 1 fall back to the T.81 K.3 tables when the stream never defined them.
func (d *Decompressor) derived(isDC bool, idx int) (*derivedTable, error) {
	if idx < 0 || idx >= numHuffTables {
		return nil, fmt.Errorf("%w: bad Huffman table index %d", ErrCorrupt, idx)
	}
	tables, cache := &d.acTables, &d.acDerived
	if isDC {
		tables, cache = &d.dcTables, &d.dcDerived
	}
	if dt := cache[idx]; dt != nil {
		return dt, nil
	}
	t := tables[idx]
	if t == nil {
		if idx > 1 {
			class := 1
			if isDC {
				class = 0
			}
			return nil, fmt.Errorf("%w: Huffman table 0x%02x was not defined", ErrCorrupt, class<<4|idx)
		}
		t = standardTable(isDC, idx)
		tables[idx] = t
		d.trace("installing standard Huffman table")
	}
	dt, err := alloc[derivedTable](d.mem, poolImage)
	if err != nil {
		return nil, err
	}
	if _, err := buildDerivedInto(dt, t, isDC); err != nil {
		return nil, err
	}
	cache[idx] = dt
	return dt, nil
}

// standardTable returns a copy of the T.81 Annex K.3 table for slot 0 (luminance) or
// 1 (chrominance).
func standardTable(isDC bool, idx int) *huffTable {
	var spec *stdHuff
	switch {
	case isDC && idx == 0:
		spec = &stdDCLuminance
	case isDC:
		spec = &stdDCChrominance
	case idx == 0:
		spec = &stdACLuminance
	default:
		spec = &stdACChrominance
	}
	t := &huffTable{}
	copy(t.bits[1:], spec.bits[:])
	copy(t.vals[:], spec.vals)
	return t
}

type stdHuff struct {
	bits [16]uint8
	vals []uint8
}

var (
	stdDCLuminance = stdHuff{
		[16]uint8{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0},
		[]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	}
	stdDCChrominance = stdHuff{
		[16]uint8{0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
		[]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	}
	stdACLuminance = stdHuff{
		[16]uint8{0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 125},
		[]uint8{
			0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12,
			0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
			0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xa1, 0x08,
			0x23, 0x42, 0xb1, 0xc1, 0x15, 0x52, 0xd1, 0xf0,
			0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0a, 0x16,
			0x17, 0x18, 0x19, 0x1a, 0x25, 0x26, 0x27, 0x28,
			0x29, 0x2a, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39,
			0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
			0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59,
			0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
			0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79,
			0x7a, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
			0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98,
			0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7,
			0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6,
			0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5,
			0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4,
			0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda, 0xe1, 0xe2,
			0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea,
			0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
			0xf9, 0xfa,
		},
	}
	stdACChrominance = stdHuff{
		[16]uint8{0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 119},
		[]uint8{
			0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21,
			0x31, 0x06, 0x12, 0x41, 0x51, 0x07, 0x61, 0x71,
			0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91,
			0xa1, 0xb1, 0xc1, 0x09, 0x23, 0x33, 0x52, 0xf0,
			0x15, 0x62, 0x72, 0xd1, 0x0a, 0x16, 0x24, 0x34,
			0xe1, 0x25, 0xf1, 0x17, 0x18, 0x19, 0x1a, 0x26,
			0x27, 0x28, 0x29, 0x2a, 0x35, 0x36, 0x37, 0x38,
			0x39, 0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48,
			0x49, 0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58,
			0x59, 0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
			0x69, 0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78,
			0x79, 0x7a, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
			0x88, 0x89, 0x8a, 0x92, 0x93, 0x94, 0x95, 0x96,
			0x97, 0x98, 0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5,
			0xa6, 0xa7, 0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4,
			0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3,
			0xc4, 0xc5, 0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2,
			0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda,
			0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9,
			0xea, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
			0xf9, 0xfa,
		},
	}
)
