package djpeg

import "fmt"

// upsampleFunc expands one component band to full resolution. in holds a context row
// above and below the band: in[0] is the row above in[1], in[len(in)-1] the row below
// the band's last row. out receives the band's full-resolution rows.
type upsampleFunc func(c *component, in, out [][]byte)

type upsampler struct {
	methods     []upsampleFunc
	hExpand     []int
	vExpand     []int
	needContext bool
	// width of an upsampled row, at least the output width
	width int
}

func newUpsampler(d *Decompressor) (*upsampler, error) {
	n := len(d.comps)
	u := &upsampler{
		methods: make([]upsampleFunc, n),
		hExpand: make([]int, n),
		vExpand: make([]int, n),
		width:   d.outputWidth,
	}
	fancy := !d.opts.DisableFancyUpsampling && d.minDCT > 1
	hOut, vOut := d.maxH, d.maxV
	for i, c := range d.comps {
		hIn := c.h * c.dctScaled / d.minDCT
		vIn := c.v * c.dctScaled / d.minDCT
		u.hExpand[i], u.vExpand[i] = 1, 1
		switch {
		case !c.needed:
			u.methods[i] = noopUpsample
		case hIn == hOut && vIn == vOut:
			u.methods[i] = fullsizeUpsample
		case hIn*2 == hOut && vIn == vOut:
			u.hExpand[i] = 2
			if fancy && c.downWidth > 2 {
				u.methods[i] = h2v1FancyUpsample
			} else {
				u.methods[i] = h2v1Upsample
			}
		case hIn*2 == hOut && vIn*2 == vOut:
			u.hExpand[i], u.vExpand[i] = 2, 2
			if fancy && c.downWidth > 2 {
				u.methods[i] = h2v2FancyUpsample
				u.needContext = true
			} else {
				u.methods[i] = h2v2Upsample
			}
		case hIn > 0 && vIn > 0 && hOut%hIn == 0 && vOut%vIn == 0:
			u.hExpand[i], u.vExpand[i] = hOut/hIn, vOut/vIn
			u.methods[i] = intUpsample(hOut/hIn, vOut/vIn)
		default:
			return nil, fmt.Errorf("%w: fractional sampling ratio %dx%d to %dx%d",
				ErrUnsupported, hIn, vIn, hOut, vOut)
		}
		u.width = max(u.width, c.widthInBlocks*c.dctScaled*u.hExpand[i])
	}
	return u, nil
}

func noopUpsample(c *component, in, out [][]byte) {}

func fullsizeUpsample(c *component, in, out [][]byte) {
	for i := range out {
		copy(out[i], in[i+1])
	}
}

func h2v1Upsample(c *component, in, out [][]byte) {
	for i, o := range out {
		src := in[i+1]
		for x := 0; x < len(src) && 2*x+1 < len(o); x++ {
			o[2*x] = src[x]
			o[2*x+1] = src[x]
		}
	}
}

func h2v2Upsample(c *component, in, out [][]byte) {
	for i := 0; i+1 < len(out); i += 2 {
		src := in[i/2+1]
		o := out[i]
		for x := 0; x < len(src) && 2*x+1 < len(o); x++ {
			o[2*x] = src[x]
			o[2*x+1] = src[x]
		}
		copy(out[i+1], o)
	}
}

func intUpsample(hExp, vExp int) upsampleFunc {
	return func(c *component, in, out [][]byte) {
		for i := 0; i+vExp <= len(out); i += vExp {
			src := in[i/vExp+1]
			o := out[i]
			p := 0
			for _, v := range src {
				if p+hExp > len(o) {
					break
				}
				for k := 0; k < hExp; k++ {
					o[p] = v
					p++
				}
			}
			for k := 1; k < vExp; k++ {
				copy(out[i+k], o)
			}
		}
	}
}

// h2v1FancyUpsample interpolates horizontally with a triangle filter: each output
// sample is 3/4 of the nearer input sample plus 1/4 of the further one.
func h2v1FancyUpsample(c *component, in, out [][]byte) {
	w := c.downWidth
	for i, o := range out {
		src := in[i+1]
		v := int(src[0])
		o[0] = byte(v)
		o[1] = byte((v*3 + int(src[1]) + 2) >> 2)
		p := 2
		for x := 1; x < w-1; x++ {
			v = int(src[x]) * 3
			o[p] = byte((v + int(src[x-1]) + 1) >> 2)
			o[p+1] = byte((v + int(src[x+1]) + 2) >> 2)
			p += 2
		}
		v = int(src[w-1])
		o[p] = byte((v*3 + int(src[w-2]) + 1) >> 2)
		o[p+1] = byte(v)
	}
}

// h2v2FancyUpsample applies the triangle filter in both directions, weighting the
// nearer input row 3/4 and the further 1/4.
func h2v2FancyUpsample(c *component, in, out [][]byte) {
	w := c.downWidth
	for row := 0; row+1 < len(out); row += 2 {
		cur := in[row/2+1]
		for v := 0; v < 2; v++ {
			far := in[row/2] // above
			if v == 1 {
				far = in[row/2+2] // below
			}
			o := out[row+v]
			this := int(cur[0])*3 + int(far[0])
			next := int(cur[1])*3 + int(far[1])
			o[0] = byte((this*4 + 8) >> 4)
			o[1] = byte((this*3 + next + 7) >> 4)
			last := this
			this = next
			p := 2
			for x := 2; x < w; x++ {
				next = int(cur[x])*3 + int(far[x])
				o[p] = byte((this*3 + last + 8) >> 4)
				o[p+1] = byte((this*3 + next + 7) >> 4)
				last, this = this, next
				p += 2
			}
			o[p] = byte((this*3 + last + 8) >> 4)
			o[p+1] = byte((this*4 + 7) >> 4)
		}
	}
}
