package djpeg

// rangeLimit clamps a descaled IDCT output, taken modulo 1024, into 0..255 after adding
// the 128 level shift. Indices 512..1023 stand for negative values.
var rangeLimit = func() (t [1024]byte) {
	for i := range t {
		v := i
		if v >= 512 {
			v -= 1024
		}
		t[i] = byte(min(max(v+128, 0), 255))
	}
	return t
}()

const rangeMask = 1023

// idctTable is a component's dequantizing multiplier table plus the kernel it feeds.
type idctTable struct {
	method DCTMethod
	size   int
	built  bool
	// quantized is false while the component's quantization table is unknown; the
	// multipliers are zero and the output is flat gray until it is rebuilt.
	quantized bool

	mult  [64]int32
	fmult [64]float32
}

// aanScales are the AA&N IDCT scale factors in natural order, scaled by 2^14.
var aanScales = [64]int32{
	16384, 22725, 21407, 19266, 16384, 12873, 8867, 4520,
	22725, 31521, 29692, 26722, 22725, 17855, 12299, 6270,
	21407, 29692, 27969, 25172, 21407, 16819, 11585, 5906,
	19266, 26722, 25172, 22654, 19266, 15137, 10426, 5315,
	16384, 22725, 21407, 19266, 16384, 12873, 8867, 4520,
	12873, 17855, 16819, 15137, 12873, 10114, 6967, 3552,
	8867, 12299, 11585, 10426, 8867, 6967, 4799, 2446,
	4520, 6270, 5906, 5315, 4520, 3552, 2446, 1247,
}

// aanScaleFactor[k] = cos(k*PI/16) * sqrt(2) for k > 0.
var aanScaleFactor = [8]float64{
	1.0, 1.387039845, 1.306562965, 1.175875602,
	1.0, 0.785694958, 0.541196100, 0.275899379,
}

// prepare builds the multiplier table for the component's current output size and the
// requested method. Reduced sizes always use the accurate integer tables.
func (t *idctTable) prepare(c *component, method DCTMethod) {
	if c.dctScaled != 8 {
		method = DCTIslow
	}
	if t.built && t.method == method && t.size == c.dctScaled && (t.quantized || c.quant == nil) {
		return
	}
	t.method, t.size, t.built = method, c.dctScaled, true
	t.quantized = c.quant != nil
	t.mult = [64]int32{}
	t.fmult = [64]float32{}
	if c.quant == nil {
		return
	}
	q := c.quant
	switch method {
	case DCTIfast:
		for i := range t.mult {
			t.mult[i] = (int32(q[i])*aanScales[i] + 1<<11) >> 12
		}
	case DCTFloat:
		for i := range t.fmult {
			t.fmult[i] = float32(float64(q[i]) * aanScaleFactor[i/8] * aanScaleFactor[i%8])
		}
	default:
		for i := range t.mult {
			t.mult[i] = int32(q[i])
		}
	}
}

// run dequantizes and inverse transforms one block into size x size samples at out[y][col+x].
func (t *idctTable) run(coef *block, out [][]byte, col int) {
	switch t.size {
	case 1:
		idct1x1(t, coef, out, col)
	case 2:
		idct2x2(t, coef, out, col)
	case 4:
		idct4x4(t, coef, out, col)
	default:
		switch t.method {
		case DCTIfast:
			idctIfast(t, coef, out, col)
		case DCTFloat:
			idctFloat(t, coef, out, col)
		default:
			idctIslow(t, coef, out, col)
		}
	}
}

// acZero reports whether column c of the block has no AC terms.
func acZero(coef *block, c int) bool {
	return coef[8+c] == 0 && coef[16+c] == 0 && coef[24+c] == 0 && coef[32+c] == 0 &&
		coef[40+c] == 0 && coef[48+c] == 0 && coef[56+c] == 0
}
