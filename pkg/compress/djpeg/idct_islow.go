package djpeg

// Accurate integer IDCT (Loeffler, Ligtenberg and Moschytz), 13-bit constants with two
// extra bits of precision between the passes.
const (
	constBits = 13
	pass1Bits = 2

	fix0_298631336 = 2446
	fix0_390180644 = 3196
	fix0_541196100 = 4433
	fix0_765366865 = 6270
	fix0_899976223 = 7373
	fix1_175875602 = 9633
	fix1_501321110 = 12299
	fix1_847759065 = 15137
	fix1_961570560 = 16069
	fix2_053119869 = 16819
	fix2_562915447 = 20995
	fix3_072711026 = 25172
)

func idctIslow(t *idctTable, coef *block, out [][]byte, col int) {
	var ws [64]int32
	q := &t.mult

	// pass 1: columns into ws
	for c := 0; c < 8; c++ {
		if acZero(coef, c) {
			dc := int32(coef[c]) * q[c] << pass1Bits
			for r := 0; r < 8; r++ {
				ws[8*r+c] = dc
			}
			continue
		}

		z2 := int32(coef[c]) * q[c]
		z3 := int32(coef[32+c]) * q[32+c]
		z2 <<= constBits
		z3 <<= constBits
		z2 += 1 << (constBits - pass1Bits - 1)
		tmp0 := z2 + z3
		tmp1 := z2 - z3

		z2 = int32(coef[16+c]) * q[16+c]
		z3 = int32(coef[48+c]) * q[48+c]
		z1 := (z2 + z3) * fix0_541196100
		tmp2 := z1 + z2*fix0_765366865
		tmp3 := z1 - z3*fix1_847759065

		tmp10 := tmp0 + tmp2
		tmp13 := tmp0 - tmp2
		tmp11 := tmp1 + tmp3
		tmp12 := tmp1 - tmp3

		tmp0 = int32(coef[56+c]) * q[56+c]
		tmp1 = int32(coef[40+c]) * q[40+c]
		tmp2 = int32(coef[24+c]) * q[24+c]
		tmp3 = int32(coef[8+c]) * q[8+c]

		z2 = tmp0 + tmp2
		z3 = tmp1 + tmp3
		z1 = (z2 + z3) * fix1_175875602
		z2 = z2 * -fix1_961570560
		z3 = z3 * -fix0_390180644
		z2 += z1
		z3 += z1

		z1 = (tmp0 + tmp3) * -fix0_899976223
		tmp0 *= fix0_298631336
		tmp3 *= fix1_501321110
		tmp0 += z1 + z2
		tmp3 += z1 + z3

		z1 = (tmp1 + tmp2) * -fix2_562915447
		tmp1 *= fix2_053119869
		tmp2 *= fix3_072711026
		tmp1 += z1 + z3
		tmp2 += z1 + z2

		const sh = constBits - pass1Bits
		ws[8*0+c] = (tmp10 + tmp3) >> sh
		ws[8*7+c] = (tmp10 - tmp3) >> sh
		ws[8*1+c] = (tmp11 + tmp2) >> sh
		ws[8*6+c] = (tmp11 - tmp2) >> sh
		ws[8*2+c] = (tmp12 + tmp1) >> sh
		ws[8*5+c] = (tmp12 - tmp1) >> sh
		ws[8*3+c] = (tmp13 + tmp0) >> sh
		ws[8*4+c] = (tmp13 - tmp0) >> sh
	}

	// pass 2: rows into out
	for r := 0; r < 8; r++ {
		w := ws[8*r : 8*r+8 : 8*r+8]
		o := out[r][col : col+8 : col+8]
		z2 := w[0] + 1<<(pass1Bits+2)

		if w[1] == 0 && w[2] == 0 && w[3] == 0 && w[4] == 0 && w[5] == 0 && w[6] == 0 && w[7] == 0 {
			v := rangeLimit[(z2>>(pass1Bits+3))&rangeMask]
			for i := range o {
				o[i] = v
			}
			continue
		}

		z3 := w[4]
		z2 <<= constBits
		z3 <<= constBits
		tmp0 := z2 + z3
		tmp1 := z2 - z3

		z2 = w[2]
		z3 = w[6]
		z1 := (z2 + z3) * fix0_541196100
		tmp2 := z1 + z2*fix0_765366865
		tmp3 := z1 - z3*fix1_847759065

		tmp10 := tmp0 + tmp2
		tmp13 := tmp0 - tmp2
		tmp11 := tmp1 + tmp3
		tmp12 := tmp1 - tmp3

		tmp0 = w[7]
		tmp1 = w[5]
		tmp2 = w[3]
		tmp3 = w[1]

		z2 = tmp0 + tmp2
		z3 = tmp1 + tmp3
		z1 = (z2 + z3) * fix1_175875602
		z2 = z2 * -fix1_961570560
		z3 = z3 * -fix0_390180644
		z2 += z1
		z3 += z1

		z1 = (tmp0 + tmp3) * -fix0_899976223
		tmp0 *= fix0_298631336
		tmp3 *= fix1_501321110
		tmp0 += z1 + z2
		tmp3 += z1 + z3

		z1 = (tmp1 + tmp2) * -fix2_562915447
		tmp1 *= fix2_053119869
		tmp2 *= fix3_072711026
		tmp1 += z1 + z3
		tmp2 += z1 + z2

		const sh = constBits + pass1Bits + 3
		o[0] = rangeLimit[((tmp10+tmp3)>>sh)&rangeMask]
		o[7] = rangeLimit[((tmp10-tmp3)>>sh)&rangeMask]
		o[1] = rangeLimit[((tmp11+tmp2)>>sh)&rangeMask]
		o[6] = rangeLimit[((tmp11-tmp2)>>sh)&rangeMask]
		o[2] = rangeLimit[((tmp12+tmp1)>>sh)&rangeMask]
		o[5] = rangeLimit[((tmp12-tmp1)>>sh)&rangeMask]
		o[3] = rangeLimit[((tmp13+tmp0)>>sh)&rangeMask]
		o[4] = rangeLimit[((tmp13-tmp0)>>sh)&rangeMask]
	}
}
