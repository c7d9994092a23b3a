package djpeg

// Fast integer IDCT (Arai, Agui and Nakajima). The AA&N scale factors are folded into
// the multiplier table; products are truncated, trading accuracy for speed.
const (
	ifastBits = 8

	ifix1_082392200 = 277
	ifix1_414213562 = 362
	ifix1_847759065 = 473
	ifix2_613125930 = 669
)

func ifastMul(v, c int32) int32 { return (v * c) >> ifastBits }

func idctIfast(t *idctTable, coef *block, out [][]byte, col int) {
	var ws [64]int32
	q := &t.mult

	for c := 0; c < 8; c++ {
		if acZero(coef, c) {
			dc := int32(coef[c]) * q[c]
			for r := 0; r < 8; r++ {
				ws[8*r+c] = dc
			}
			continue
		}

		tmp0 := int32(coef[c]) * q[c]
		tmp1 := int32(coef[16+c]) * q[16+c]
		tmp2 := int32(coef[32+c]) * q[32+c]
		tmp3 := int32(coef[48+c]) * q[48+c]

		tmp10 := tmp0 + tmp2
		tmp11 := tmp0 - tmp2
		tmp13 := tmp1 + tmp3
		tmp12 := ifastMul(tmp1-tmp3, ifix1_414213562) - tmp13

		tmp0 = tmp10 + tmp13
		tmp3 = tmp10 - tmp13
		tmp1 = tmp11 + tmp12
		tmp2 = tmp11 - tmp12

		tmp4 := int32(coef[8+c]) * q[8+c]
		tmp5 := int32(coef[24+c]) * q[24+c]
		tmp6 := int32(coef[40+c]) * q[40+c]
		tmp7 := int32(coef[56+c]) * q[56+c]

		z13 := tmp6 + tmp5
		z10 := tmp6 - tmp5
		z11 := tmp4 + tmp7
		z12 := tmp4 - tmp7

		tmp7 = z11 + z13
		tmp11 = ifastMul(z11-z13, ifix1_414213562)
		z5 := ifastMul(z10+z12, ifix1_847759065)
		tmp10 = ifastMul(z12, ifix1_082392200) - z5
		tmp12 = ifastMul(z10, -ifix2_613125930) + z5

		tmp6 = tmp12 - tmp7
		tmp5 = tmp11 - tmp6
		tmp4 = tmp10 + tmp5

		ws[8*0+c] = tmp0 + tmp7
		ws[8*7+c] = tmp0 - tmp7
		ws[8*1+c] = tmp1 + tmp6
		ws[8*6+c] = tmp1 - tmp6
		ws[8*2+c] = tmp2 + tmp5
		ws[8*5+c] = tmp2 - tmp5
		ws[8*4+c] = tmp3 + tmp4
		ws[8*3+c] = tmp3 - tmp4
	}

	const sh = pass1Bits + 3
	for r := 0; r < 8; r++ {
		w := ws[8*r : 8*r+8 : 8*r+8]
		o := out[r][col : col+8 : col+8]

		if w[1] == 0 && w[2] == 0 && w[3] == 0 && w[4] == 0 && w[5] == 0 && w[6] == 0 && w[7] == 0 {
			v := rangeLimit[(w[0]>>sh)&rangeMask]
			for i := range o {
				o[i] = v
			}
			continue
		}

		tmp10 := w[0] + w[4]
		tmp11 := w[0] - w[4]
		tmp13 := w[2] + w[6]
		tmp12 := ifastMul(w[2]-w[6], ifix1_414213562) - tmp13

		tmp0 := tmp10 + tmp13
		tmp3 := tmp10 - tmp13
		tmp1 := tmp11 + tmp12
		tmp2 := tmp11 - tmp12

		z13 := w[5] + w[3]
		z10 := w[5] - w[3]
		z11 := w[1] + w[7]
		z12 := w[1] - w[7]

		tmp7 := z11 + z13
		tmp11 = ifastMul(z11-z13, ifix1_414213562)
		z5 := ifastMul(z10+z12, ifix1_847759065)
		tmp10 = ifastMul(z12, ifix1_082392200) - z5
		tmp12 = ifastMul(z10, -ifix2_613125930) + z5

		tmp6 := tmp12 - tmp7
		tmp5 := tmp11 - tmp6
		tmp4 := tmp10 + tmp5

		o[0] = rangeLimit[((tmp0+tmp7)>>sh)&rangeMask]
		o[7] = rangeLimit[((tmp0-tmp7)>>sh)&rangeMask]
		o[1] = rangeLimit[((tmp1+tmp6)>>sh)&rangeMask]
		o[6] = rangeLimit[((tmp1-tmp6)>>sh)&rangeMask]
		o[2] = rangeLimit[((tmp2+tmp5)>>sh)&rangeMask]
		o[5] = rangeLimit[((tmp2-tmp5)>>sh)&rangeMask]
		o[4] = rangeLimit[((tmp3+tmp4)>>sh)&rangeMask]
		o[3] = rangeLimit[((tmp3-tmp4)>>sh)&rangeMask]
	}
}
