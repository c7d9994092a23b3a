package djpeg

// Reduced-size IDCTs for scaled output. Each produces an n x n block from the n x n
// lowest-frequency coefficients of the 8x8 block.

func idct4x4(t *idctTable, coef *block, out [][]byte, col int) {
	var ws [16]int32
	q := &t.mult

	for c := 0; c < 4; c++ {
		tmp0 := int32(coef[c]) * q[c]
		tmp2 := int32(coef[16+c]) * q[16+c]
		tmp10 := (tmp0 + tmp2) << pass1Bits
		tmp12 := (tmp0 - tmp2) << pass1Bits

		z2 := int32(coef[8+c]) * q[8+c]
		z3 := int32(coef[24+c]) * q[24+c]
		z1 := (z2 + z3) * fix0_541196100
		z1 += 1 << (constBits - pass1Bits - 1)
		tmp0 = (z1 + z2*fix0_765366865) >> (constBits - pass1Bits)
		tmp2 = (z1 - z3*fix1_847759065) >> (constBits - pass1Bits)

		ws[4*0+c] = tmp10 + tmp0
		ws[4*3+c] = tmp10 - tmp0
		ws[4*1+c] = tmp12 + tmp2
		ws[4*2+c] = tmp12 - tmp2
	}

	const sh = constBits + pass1Bits + 3
	for r := 0; r < 4; r++ {
		w := ws[4*r : 4*r+4 : 4*r+4]
		o := out[r][col : col+4 : col+4]

		tmp0 := w[0] + 1<<(pass1Bits+2)
		tmp2 := w[2]
		tmp10 := (tmp0 + tmp2) << constBits
		tmp12 := (tmp0 - tmp2) << constBits

		z2 := w[1]
		z3 := w[3]
		z1 := (z2 + z3) * fix0_541196100
		tmp0 = z1 + z2*fix0_765366865
		tmp2 = z1 - z3*fix1_847759065

		o[0] = rangeLimit[((tmp10+tmp0)>>sh)&rangeMask]
		o[3] = rangeLimit[((tmp10-tmp0)>>sh)&rangeMask]
		o[1] = rangeLimit[((tmp12+tmp2)>>sh)&rangeMask]
		o[2] = rangeLimit[((tmp12-tmp2)>>sh)&rangeMask]
	}
}

func idct2x2(t *idctTable, coef *block, out [][]byte, col int) {
	q := &t.mult

	tmp4 := int32(coef[0]) * q[0]
	tmp5 := int32(coef[8]) * q[8]
	tmp4 += 1 << 2
	tmp0 := tmp4 + tmp5
	tmp2 := tmp4 - tmp5

	tmp4 = int32(coef[1]) * q[1]
	tmp5 = int32(coef[9]) * q[9]
	tmp1 := tmp4 + tmp5
	tmp3 := tmp4 - tmp5

	out[0][col] = rangeLimit[((tmp0+tmp1)>>3)&rangeMask]
	out[0][col+1] = rangeLimit[((tmp0-tmp1)>>3)&rangeMask]
	out[1][col] = rangeLimit[((tmp2+tmp3)>>3)&rangeMask]
	out[1][col+1] = rangeLimit[((tmp2-tmp3)>>3)&rangeMask]
}

func idct1x1(t *idctTable, coef *block, out [][]byte, col int) {
	dc := int32(coef[0]) * t.mult[0]
	out[0][col] = rangeLimit[((dc+4)>>3)&rangeMask]
}
