package djpeg

// Floating-point AA&N IDCT. Results can differ slightly across platforms.
func idctFloat(t *idctTable, coef *block, out [][]byte, col int) {
	var ws [64]float32
	q := &t.fmult

	for c := 0; c < 8; c++ {
		if acZero(coef, c) {
			dc := float32(coef[c]) * q[c]
			for r := 0; r < 8; r++ {
				ws[8*r+c] = dc
			}
			continue
		}

		tmp0 := float32(coef[c]) * q[c]
		tmp1 := float32(coef[16+c]) * q[16+c]
		tmp2 := float32(coef[32+c]) * q[32+c]
		tmp3 := float32(coef[48+c]) * q[48+c]

		tmp10 := tmp0 + tmp2
		tmp11 := tmp0 - tmp2
		tmp13 := tmp1 + tmp3
		tmp12 := (tmp1-tmp3)*1.414213562 - tmp13

		tmp0 = tmp10 + tmp13
		tmp3 = tmp10 - tmp13
		tmp1 = tmp11 + tmp12
		tmp2 = tmp11 - tmp12

		tmp4 := float32(coef[8+c]) * q[8+c]
		tmp5 := float32(coef[24+c]) * q[24+c]
		tmp6 := float32(coef[40+c]) * q[40+c]
		tmp7 := float32(coef[56+c]) * q[56+c]

		z13 := tmp6 + tmp5
		z10 := tmp6 - tmp5
		z11 := tmp4 + tmp7
		z12 := tmp4 - tmp7

		tmp7 = z11 + z13
		tmp11 = (z11 - z13) * 1.414213562
		z5 := (z10 + z12) * 1.847759065
		tmp10 = 1.082392200*z12 - z5
		tmp12 = -2.613125930*z10 + z5

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

	for r := 0; r < 8; r++ {
		w := ws[8*r : 8*r+8 : 8*r+8]
		o := out[r][col : col+8 : col+8]

		if w[1] == 0 && w[2] == 0 && w[3] == 0 && w[4] == 0 && w[5] == 0 && w[6] == 0 && w[7] == 0 {
			v := floatSample(w[0])
			for i := range o {
				o[i] = v
			}
			continue
		}

		tmp10 := w[0] + w[4]
		tmp11 := w[0] - w[4]
		tmp13 := w[2] + w[6]
		tmp12 := (w[2]-w[6])*1.414213562 - tmp13

		tmp0 := tmp10 + tmp13
		tmp3 := tmp10 - tmp13
		tmp1 := tmp11 + tmp12
		tmp2 := tmp11 - tmp12

		z13 := w[5] + w[3]
		z10 := w[5] - w[3]
		z11 := w[1] + w[7]
		z12 := w[1] - w[7]

		tmp7 := z11 + z13
		tmp11 = (z11 - z13) * 1.414213562
		z5 := (z10 + z12) * 1.847759065
		tmp10 = 1.082392200*z12 - z5
		tmp12 = -2.613125930*z10 + z5

		tmp6 := tmp12 - tmp7
		tmp5 := tmp11 - tmp6
		tmp4 := tmp10 + tmp5

		o[0] = floatSample(tmp0 + tmp7)
		o[7] = floatSample(tmp0 - tmp7)
		o[1] = floatSample(tmp1 + tmp6)
		o[6] = floatSample(tmp1 - tmp6)
		o[2] = floatSample(tmp2 + tmp5)
		o[5] = floatSample(tmp2 - tmp5)
		o[4] = floatSample(tmp3 + tmp4)
		o[3] = floatSample(tmp3 - tmp4)
	}
}

// floatSample descales by 8 with rounding and range limits.
func floatSample(x float32) byte {
	return rangeLimit[((int32(x)+4)>>3)&rangeMask]
}
