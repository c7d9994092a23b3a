package djpeg

// coefController sits between the entropy decoder and the IDCT. Single-scan images are
// decoded one MCU at a time straight into the output band; multi-scan images (and
// buffered-image mode) keep every coefficient in a virtual block array per component.
type coefController struct {
	d *Decompressor

	// resume point within the current iMCU row
	mcuCtr            int
	mcuVertOffset     int
	mcuRowsPerIMCURow int

	mcu  [maxBlocksInMCU]block
	ptrs [maxBlocksInMCU]*block

	// arrays is nil in single-pass mode.
	arrays []*virtualBlockArray

	// coefBitsLatch holds coef_bits[1..5] per component for block smoothing.
	coefBitsLatch [][6]int
	ws            block

	decompress func(out [][][]byte) (Progress, error)
}

func newCoefController(d *Decompressor, buffered bool) (*coefController, error) {
	cc := &coefController{d: d}
	if !buffered {
		cc.decompress = cc.decompressOnepass
		return cc, nil
	}
	maxAccess := func(c *component) int { return c.v }
	if d.hdr.Progressive && !d.opts.DisableBlockSmoothing {
		maxAccess = func(c *component) int { return 3 * c.v }
	}
	cc.arrays = make([]*virtualBlockArray, len(d.comps))
	for i, c := range d.comps {
		w := ceilDiv(c.widthInBlocks, c.h) * c.h
		h := ceilDiv(c.heightInBlocks, c.v) * c.v
		c.arr = d.mem.requestBlockArray(w, h, maxAccess(c), true)
		cc.arrays[i] = c.arr
	}
	cc.coefBitsLatch = make([][6]int, len(d.comps))
	cc.decompress = cc.decompressData
	return cc, nil
}

func (cc *coefController) startIMCURow() {
	d := cc.d
	if len(d.scan.comps) > 1 {
		cc.mcuRowsPerIMCURow = 1
	} else {
		c := d.scan.comps[0]
		if d.inputIMCURow < d.totalIMCURows-1 {
			cc.mcuRowsPerIMCURow = c.v
		} else {
			cc.mcuRowsPerIMCURow = c.lastRowHeight
		}
	}
	cc.mcuCtr = 0
	cc.mcuVertOffset = 0
}

func (cc *coefController) startInputPass() {
	cc.d.inputIMCURow = 0
	cc.startIMCURow()
}

func (cc *coefController) startOutputPass() {
	if cc.arrays != nil {
		if !cc.d.opts.DisableBlockSmoothing && cc.smoothingOK() {
			cc.decompress = cc.decompressSmooth
		} else {
			cc.decompress = cc.decompressData
		}
	}
	cc.d.outputIMCURow = 0
}

// finishIMCURow advances the input side after a complete iMCU row.
func (cc *coefController) finishIMCURow() Progress {
	d := cc.d
	d.inputIMCURow++
	if d.inputIMCURow < d.totalIMCURows {
		cc.startIMCURow()
		return ProgressRowCompleted
	}
	d.finishInputPass()
	return ProgressScanCompleted
}

// decompressOnepass decodes one iMCU row and runs the IDCT into out, which holds
// v*dctScaled sample rows per component.
func (cc *coefController) decompressOnepass(out [][][]byte) (Progress, error) {
	d := cc.d
	s := &d.scan
	lastMCUCol := s.mcusPerRow - 1
	lastIMCURow := d.totalIMCURows - 1
	blocks := cc.ptrs[:s.blocksInMCU]
	for i := range blocks {
		blocks[i] = &cc.mcu[i]
	}

	for yoffset := cc.mcuVertOffset; yoffset < cc.mcuRowsPerIMCURow; yoffset++ {
		for col := cc.mcuCtr; col <= lastMCUCol; col++ {
			clear(cc.mcu[:s.blocksInMCU])
			if err := d.entropy.decodeMCU(blocks); err != nil {
				cc.mcuVertOffset = yoffset
				cc.mcuCtr = col
				return 0, err
			}
			blkn := 0
			for _, c := range s.comps {
				if !c.needed {
					blkn += c.mcuBlocks
					continue
				}
				useful := c.mcuWidth
				if col == lastMCUCol {
					useful = c.lastColWidth
				}
				rows := out[c.index][yoffset*c.dctScaled:]
				startCol := col * c.mcuSampleWidth
				for yi := 0; yi < c.mcuHeight; yi++ {
					if d.inputIMCURow < lastIMCURow || yoffset+yi < c.lastRowHeight {
						outCol := startCol
						for xi := 0; xi < useful; xi++ {
							c.idct.run(&cc.mcu[blkn+xi], rows, outCol)
							outCol += c.dctScaled
						}
					}
					blkn += c.mcuWidth
					rows = rows[min(c.dctScaled, len(rows)):]
				}
			}
		}
		cc.mcuCtr = 0
	}
	d.outputIMCURow++
	return cc.finishIMCURow(), nil
}

// consumeData decodes one iMCU row of the current scan into the coefficient arrays.
func (cc *coefController) consumeData() (Progress, error) {
	d := cc.d
	s := &d.scan
	var bufs [maxCompsInScan][][]block
	for ci, c := range s.comps {
		rows, err := c.arr.access(d.inputIMCURow*c.v, c.v, true)
		if err != nil {
			return 0, err
		}
		bufs[ci] = rows
	}

	for yoffset := cc.mcuVertOffset; yoffset < cc.mcuRowsPerIMCURow; yoffset++ {
		for col := cc.mcuCtr; col < s.mcusPerRow; col++ {
			blkn := 0
			for ci, c := range s.comps {
				startCol := col * c.mcuWidth
				for yi := 0; yi < c.mcuHeight; yi++ {
					row := bufs[ci][yi+yoffset]
					for xi := 0; xi < c.mcuWidth; xi++ {
						cc.ptrs[blkn] = &row[startCol+xi]
						blkn++
					}
				}
			}
			if err := d.entropy.decodeMCU(cc.ptrs[:blkn]); err != nil {
				cc.mcuVertOffset = yoffset
				cc.mcuCtr = col
				return 0, err
			}
		}
		cc.mcuCtr = 0
	}
	return cc.finishIMCURow(), nil
}

// decompressData runs the IDCT over one iMCU row of stored coefficients.
func (cc *coefController) decompressData(out [][][]byte) (Progress, error) {
	d := cc.d
	for !d.eoiReached && (d.inputScanNumber < d.outputScanNumber ||
		d.inputScanNumber == d.outputScanNumber && d.inputIMCURow <= d.outputIMCURow) {
		if _, err := d.consumeInput(); err != nil {
			return 0, err
		}
	}

	lastIMCURow := d.totalIMCURows - 1
	for _, c := range d.comps {
		if !c.needed {
			continue
		}
		buf, err := c.arr.access(d.outputIMCURow*c.v, c.v, false)
		if err != nil {
			return 0, err
		}
		blockRows := c.v
		if d.outputIMCURow == lastIMCURow {
			if blockRows = c.heightInBlocks % c.v; blockRows == 0 {
				blockRows = c.v
			}
		}
		rows := out[c.index]
		for br := 0; br < blockRows; br++ {
			outCol := 0
			for bn := 0; bn < c.widthInBlocks; bn++ {
				c.idct.run(&buf[br][bn], rows, outCol)
				outCol += c.dctScaled
			}
			rows = rows[min(c.dctScaled, len(rows)):]
		}
	}

	d.outputIMCURow++
	if d.outputIMCURow < d.totalIMCURows {
		return ProgressRowCompleted, nil
	}
	return ProgressScanCompleted, nil
}

// smoothingOK reports whether block smoothing can help the current output pass, and
// latches the coefficient precision it will rely on.
func (cc *coefController) smoothingOK() bool {
	d := cc.d
	if !d.hdr.Progressive || d.coefBits == nil {
		return false
	}
	useful := false
	for i, c := range d.comps {
		q := c.quant
		if q == nil {
			return false
		}
		if q[0] == 0 || q[1] == 0 || q[8] == 0 || q[16] == 0 || q[9] == 0 || q[2] == 0 {
			return false
		}
		bits := &d.coefBits[i]
		if bits[0] < 0 {
			return false
		}
		for k := 1; k <= 5; k++ {
			cc.coefBitsLatch[i][k] = bits[k]
			if bits[k] != 0 {
				useful = true
			}
		}
	}
	return useful
}

// smoothPred estimates one AC coefficient (T.81 K.8): num/(Q<<8) rounded, limited to the
// magnitude the missing low bits could hold.
func smoothPred(num, q, al int) int16 {
	neg := num < 0
	if neg {
		num = -num
	}
	pred := ((q << 7) + num) / (q << 8)
	if al > 0 && pred >= 1<<al {
		pred = 1<<al - 1
	}
	if neg {
		pred = -pred
	}
	return int16(pred)
}

// decompressSmooth is decompressData with AC estimation for blocks whose low-frequency
// coefficients have not arrived yet.
func (cc *coefController) decompressSmooth(out [][][]byte) (Progress, error) {
	d := cc.d
	ahead := 0
	if d.scan.ss == 0 {
		// a DC scan in progress must stay one row ahead so the next row's DC is current
		ahead = 1
	}
	for !d.eoiReached && d.inputScanNumber <= d.outputScanNumber {
		if d.inputScanNumber == d.outputScanNumber && d.inputIMCURow > d.outputIMCURow+ahead {
			break
		}
		if _, err := d.consumeInput(); err != nil {
			return 0, err
		}
	}

	lastIMCURow := d.totalIMCURows - 1
	ws := &cc.ws
	for ci, c := range d.comps {
		if !c.needed {
			continue
		}
		var blockRows, accessRows int
		lastRow := false
		if d.outputIMCURow < lastIMCURow {
			blockRows = c.v
			accessRows = 2 * blockRows
		} else {
			if blockRows = c.heightInBlocks % c.v; blockRows == 0 {
				blockRows = c.v
			}
			accessRows = blockRows
			lastRow = true
		}

		firstRow := d.outputIMCURow == 0
		start := 0
		if !firstRow {
			accessRows += c.v
			start = (d.outputIMCURow - 1) * c.v
		}
		all, err := c.arr.access(start, accessRows, false)
		if err != nil {
			return 0, err
		}
		buf := all
		if !firstRow {
			buf = all[c.v:]
		}

		bits := &cc.coefBitsLatch[ci]
		q := c.quant
		q00, q01, q10 := int(q[0]), int(q[1]), int(q[8])
		q20, q11, q02 := int(q[16]), int(q[9]), int(q[2])

		rows := out[c.index]
		for br := 0; br < blockRows; br++ {
			cur := buf[br]
			var prev, next []block
			switch {
			case br > 0:
				prev = buf[br-1]
			case firstRow:
				prev = cur
			default:
				prev = all[c.v-1]
			}
			if lastRow && br == blockRows-1 {
				next = cur
			} else {
				next = buf[br+1]
			}

			dc1, dc2, dc3 := int(prev[0][0]), int(prev[0][0]), int(prev[0][0])
			dc4, dc5, dc6 := int(cur[0][0]), int(cur[0][0]), int(cur[0][0])
			dc7, dc8, dc9 := int(next[0][0]), int(next[0][0]), int(next[0][0])
			outCol := 0
			last := c.widthInBlocks - 1
			for bn := 0; bn <= last; bn++ {
				*ws = cur[bn]
				if bn < last {
					dc3 = int(prev[bn+1][0])
					dc6 = int(cur[bn+1][0])
					dc9 = int(next[bn+1][0])
				}
				if al := bits[1]; al != 0 && ws[1] == 0 {
					ws[1] = smoothPred(36*q00*(dc4-dc6), q01, al)
				}
				if al := bits[2]; al != 0 && ws[8] == 0 {
					ws[8] = smoothPred(36*q00*(dc2-dc8), q10, al)
				}
				if al := bits[3]; al != 0 && ws[16] == 0 {
					ws[16] = smoothPred(9*q00*(dc2+dc8-2*dc5), q20, al)
				}
				if al := bits[4]; al != 0 && ws[9] == 0 {
					ws[9] = smoothPred(5*q00*(dc1-dc3-dc7+dc9), q11, al)
				}
				if al := bits[5]; al != 0 && ws[2] == 0 {
					ws[2] = smoothPred(9*q00*(dc4+dc6-2*dc5), q02, al)
				}
				c.idct.run(ws, rows, outCol)

				dc1, dc2 = dc2, dc3
				dc4, dc5 = dc5, dc6
				dc7, dc8 = dc8, dc9
				outCol += c.dctScaled
			}
			rows = rows[min(c.dctScaled, len(rows)):]
		}
	}

	d.outputIMCURow++
	if d.outputIMCURow < d.totalIMCURows {
		return ProgressRowCompleted, nil
	}
	return ProgressScanCompleted, nil
}
