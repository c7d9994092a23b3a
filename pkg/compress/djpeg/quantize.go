package djpeg

import (
	"fmt"
	"log/slog"
)

const (
	maxQuantColors = 256
	ditherCells    = 16 * 16
	ditherMask     = 15
)

// baseDither is the 16x16 ordered dither matrix; it holds each of 0..255 once, arranged
// so that neighbouring thresholds are far apart.
var baseDither = [16][16]uint8{
	{0, 192, 48, 240, 12, 204, 60, 252, 3, 195, 51, 243, 15, 207, 63, 255},
	{128, 64, 176, 112, 140, 76, 188, 124, 131, 67, 179, 115, 143, 79, 191, 127},
	{32, 224, 16, 208, 44, 236, 28, 220, 35, 227, 19, 211, 47, 239, 31, 223},
	{160, 96, 144, 80, 172, 108, 156, 92, 163, 99, 147, 83, 175, 111, 159, 95},
	{8, 200, 56, 248, 4, 196, 52, 244, 11, 203, 59, 251, 7, 199, 55, 247},
	{136, 72, 184, 120, 132, 68, 180, 116, 139, 75, 187, 123, 135, 71, 183, 119},
	{40, 232, 24, 216, 36, 228, 20, 212, 43, 235, 27, 219, 39, 231, 23, 215},
	{168, 104, 152, 88, 164, 100, 148, 84, 171, 107, 155, 91, 167, 103, 151, 87},
	{2, 194, 50, 242, 14, 206, 62, 254, 1, 193, 49, 241, 13, 205, 61, 253},
	{130, 66, 178, 114, 142, 78, 190, 126, 129, 65, 177, 113, 141, 77, 189, 125},
	{34, 226, 18, 210, 46, 238, 30, 222, 33, 225, 17, 209, 45, 237, 29, 221},
	{162, 98, 146, 82, 174, 110, 158, 94, 161, 97, 145, 81, 173, 109, 157, 93},
	{10, 202, 58, 250, 6, 198, 54, 246, 9, 201, 57, 249, 5, 197, 53, 245},
	{138, 74, 186, 122, 134, 70, 182, 118, 137, 73, 185, 121, 133, 69, 181, 117},
	{42, 234, 26, 218, 38, 230, 22, 214, 41, 233, 25, 217, 37, 229, 21, 213},
	{170, 106, 154, 90, 166, 102, 150, 86, 169, 105, 153, 89, 165, 101, 149, 85},
}

// quantizer maps converted pixels to indices into a colormap built as a uniform grid,
// giving more levels to green, then red, then blue.
type quantizer struct {
	nc       int
	width    int
	dither   DitherMode
	ncolors  []int
	colormap [][]byte
	// colorindex[c][v+255] is the colormap contribution of value v for component c;
	// the padding on both sides absorbs ordered dither offsets.
	colorindex [][]int
	odither    [][16][16]int
	rowIndex   int

	fserrors [][]int
	oddRow   bool
	errLimit [511]int
}

func newQuantizer(d *Decompressor) (*quantizer, error) {
	nc := d.outColorComponents
	if d.opts.Colors > maxQuantColors {
		return nil, fmt.Errorf("%w: %d colors requested, at most %d", ErrInternal, d.opts.Colors, maxQuantColors)
	}
	if nc > 4 {
		return nil, fmt.Errorf("%w: cannot quantize %d components", ErrUnsupported, nc)
	}
	q := &quantizer{nc: nc, width: d.outputWidth, dither: d.opts.Dither}
	if err := q.selectColors(d.opts.Colors, d.outColorSpace); err != nil {
		return nil, err
	}
	q.createColormap()
	q.createColorindex()
	switch q.dither {
	case DitherOrdered:
		q.odither = make([][16][16]int, nc)
		for i, n := range q.ncolors {
			q.odither[i] = orderedDither(n)
		}
	case DitherFS:
		q.initErrorLimit()
		q.fserrors = make([][]int, nc)
		for i := range q.fserrors {
			q.fserrors[i] = make([]int, q.width+2)
		}
	}
	d.trace("color quantizer",
		slog.Int("colors", len(q.colormap[0])), slog.String("dither", q.dither.String()))
	return q, nil
}

// selectColors picks the number of levels per component: the largest equal count whose
// product fits, then one more level at a time in priority order while it still fits.
func (q *quantizer) selectColors(maxColors int, cs ColorSpace) error {
	nc := q.nc
	iroot := 1
	for {
		iroot++
		temp := iroot
		for i := 1; i < nc; i++ {
			temp *= iroot
		}
		if temp > maxColors {
			break
		}
	}
	iroot--
	if iroot < 2 {
		return fmt.Errorf("%w: %d colors is too few for %d components", ErrInternal, maxColors, nc)
	}

	q.ncolors = make([]int, nc)
	total := 1
	for i := range q.ncolors {
		q.ncolors[i] = iroot
		total *= iroot
	}
	rgbOrder := [3]int{1, 0, 2}
	for changed := true; changed; {
		changed = false
		for i := 0; i < nc; i++ {
			j := i
			if (cs == ColorRGB || cs == ColorRGBA) && i < 3 {
				j = rgbOrder[i]
			}
			temp := total / q.ncolors[j] * (q.ncolors[j] + 1)
			if temp > maxColors {
				break
			}
			q.ncolors[j]++
			total = temp
			changed = true
		}
	}
	return nil
}

func (q *quantizer) total() int {
	t := 1
	for _, n := range q.ncolors {
		t *= n
	}
	return t
}

func (q *quantizer) createColormap() {
	total := q.total()
	q.colormap = make([][]byte, q.nc)
	blksize, blkdist := total, total
	for i, nci := range q.ncolors {
		q.colormap[i] = make([]byte, total)
		blksize /= nci
		maxj := nci - 1
		for j := 0; j < nci; j++ {
			val := byte((j*255 + maxj/2) / maxj)
			for ptr := j * blksize; ptr < total; ptr += blkdist {
				for k := 0; k < blksize; k++ {
					q.colormap[i][ptr+k] = val
				}
			}
		}
		blkdist = blksize
	}
}

func (q *quantizer) createColorindex() {
	blksize := q.total()
	q.colorindex = make([][]int, q.nc)
	for i, nci := range q.ncolors {
		blksize /= nci
		maxj := nci - 1
		idx := make([]int, 255+256+255)
		largest := func(j int) int { return ((2*j+1)*255 + maxj) / (2 * maxj) }
		val := 0
		k := largest(0)
		for j := 0; j <= 255; j++ {
			for j > k {
				val++
				k = largest(val)
			}
			idx[255+j] = val * blksize
		}
		for j := 1; j <= 255; j++ {
			idx[255-j] = idx[255]
			idx[255+255+j] = idx[255+255]
		}
		q.colorindex[i] = idx
	}
}

// orderedDither scales the base matrix to the spacing between two of n levels.
func orderedDither(n int) (m [16][16]int) {
	den := 2 * ditherCells * (n - 1)
	for j := range m {
		for k := range m[j] {
			m[j][k] = (ditherCells - 1 - 2*int(baseDither[j][k])) * 255 / den
		}
	}
	return m
}

// initErrorLimit builds the Floyd-Steinberg error clamp: errors pass unchanged up to 16,
// grow at half rate up to 48 and are then held constant.
func (q *quantizer) initErrorLimit() {
	const step = 16
	t := &q.errLimit
	out := 0
	in := 0
	for ; in < step; in, out = in+1, out+1 {
		t[255+in], t[255-in] = out, -out
	}
	for ; in < step*3; in++ {
		t[255+in], t[255-in] = out, -out
		if (in+1)&1 == 0 {
			out++
		}
	}
	for ; in <= 255; in++ {
		t[255+in], t[255-in] = out, -out
	}
}

func (q *quantizer) startPass() {
	q.rowIndex = 0
	q.oddRow = false
	for _, e := range q.fserrors {
		clear(e)
	}
}

// quantize maps one row of nc-component pixels to colormap indices.
func (q *quantizer) quantize(in, out []byte) {
	switch q.dither {
	case DitherOrdered:
		q.quantizeOrdered(in, out)
	case DitherFS:
		q.quantizeFS(in, out)
	default:
		nc := q.nc
		for x := 0; x < q.width; x++ {
			code := 0
			for ci := 0; ci < nc; ci++ {
				code += q.colorindex[ci][255+int(in[x*nc+ci])]
			}
			out[x] = byte(code)
		}
	}
}

func (q *quantizer) quantizeOrdered(in, out []byte) {
	nc := q.nc
	clear(out[:q.width])
	for ci := 0; ci < nc; ci++ {
		idx := q.colorindex[ci]
		row := &q.odither[ci][q.rowIndex]
		for x := 0; x < q.width; x++ {
			out[x] += byte(idx[255+int(in[x*nc+ci])+row[x&ditherMask]])
		}
	}
	q.rowIndex = (q.rowIndex + 1) & ditherMask
}

// quantizeFS diffuses each pixel's error 7/16 ahead and 3/16, 5/16 and 1/16 into the
// next row, alternating direction row by row.
func (q *quantizer) quantizeFS(in, out []byte) {
	nc, width := q.nc, q.width
	clear(out[:width])
	for ci := 0; ci < nc; ci++ {
		idx, cmap, errs := q.colorindex[ci], q.colormap[ci], q.fserrors[ci]
		x, dir, e := 0, 1, 0
		if q.oddRow {
			x, dir, e = width-1, -1, width+1
		}
		cur, belowErr, bprevErr := 0, 0, 0
		for n := width; n > 0; n-- {
			cur = (cur + errs[e+dir] + 8) >> 4
			cur = q.errLimit[255+min(max(cur, -255), 255)]
			cur += int(in[x*nc+ci])
			cur = min(max(cur, 0), 255)
			code := idx[255+cur]
			out[x] += byte(code)
			cur -= int(cmap[code])
			bnextErr := cur
			delta := cur * 2
			cur += delta // error * 3
			errs[e] = bprevErr + cur
			cur += delta // error * 5
			bprevErr = belowErr + cur
			belowErr = bnextErr
			cur += delta // error * 7
			x += dir
			e += dir
		}
		errs[e] = bprevErr
	}
	q.oddRow = !q.oddRow
}
