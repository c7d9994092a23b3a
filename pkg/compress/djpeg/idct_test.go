package djpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runIDCT(method DCTMethod, size int, q *[64]uint16, coef *block) [][]byte {
	out := make([][]byte, size)
	for i := range out {
		out[i] = make([]byte, size)
	}
	var tbl idctTable
	tbl.prepare(&component{dctScaled: size, quant: q}, method)
	tbl.run(coef, out, 0)
	return out
}

func TestIDCTFlatBlocks(t *testing.T) {
	q := flatQuant(16)
	for _, tt := range []struct {
		dc   int16
		want byte
	}{{5, 138}, {-3, 122}, {0, 128}, {200, 255}, {-200, 0}} {
		for _, method := range []DCTMethod{DCTIslow, DCTIfast, DCTFloat} {
			for _, size := range []int{1, 2, 4, 8} {
				coef := block{tt.dc}
				for y, row := range runIDCT(method, size, &q, &coef) {
					for x, v := range row {
						require.Equal(t, tt.want, v, "%s size %d DC %d at %d,%d", method, size, tt.dc, x, y)
					}
				}
			}
		}
	}
}

func k1Block() *block {
	var b block
	b[0], b[1], b[2], b[3], b[4] = -26, -3, -6, 1, 2
	b[9], b[10], b[11] = 2, -4, 1
	b[16], b[17], b[18] = -4, 1, 5
	b[24] = 1
	return &b
}

func TestIDCTMethodsAgree(t *testing.T) {
	q := stdLuminanceQuant
	ref := runIDCT(DCTIslow, 8, &q, k1Block())
	assert.Equal(t, []byte{79, 62, 60, 77, 84, 71, 60, 60}, ref[0])
	assert.Equal(t, []byte{81, 60, 47, 50, 52, 54, 74, 101}, ref[7])

	for _, tt := range []struct {
		method DCTMethod
		delta  int
	}{{DCTFloat, 1}, {DCTIfast, 3}} {
		got := runIDCT(tt.method, 8, &q, k1Block())
		for y := range ref {
			for x := range ref[y] {
				assert.LessOrEqual(t, absDiff(ref[y][x], got[y][x]), tt.delta, "%s at %d,%d", tt.method, x, y)
			}
		}
	}
}

// Reduced outputs approximate the average of the matching full-size region.
func TestReducedIDCTTracksFullSize(t *testing.T) {
	q := stdLuminanceQuant
	full := runIDCT(DCTIslow, 8, &q, k1Block())
	for _, size := range []int{1, 2, 4} {
		got := runIDCT(DCTIslow, size, &q, k1Block())
		span := 8 / size
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				sum := 0
				for dy := 0; dy < span; dy++ {
					for dx := 0; dx < span; dx++ {
						sum += int(full[y*span+dy][x*span+dx])
					}
				}
				mean := byte((sum + span*span/2) / (span * span))
				assert.LessOrEqual(t, absDiff(mean, got[y][x]), 12, "size %d at %d,%d", size, x, y)
			}
		}
	}
}

func TestIDCTWithoutQuantTable(t *testing.T) {
	coef := block{40, 3, -7}
	for _, row := range runIDCT(DCTIslow, 8, nil, &coef) {
		for _, v := range row {
			assert.Equal(t, byte(128), v)
		}
	}
}

// Coefficients only in the first column leave every pass-2 row with zero AC terms.
func TestIDCTZeroRowShortcut(t *testing.T) {
	q := stdLuminanceQuant
	var coef block
	coef[0], coef[8], coef[16], coef[24] = 6, -9, 4, 2
	ref := runIDCT(DCTIslow, 8, &q, &coef)
	for _, method := range []DCTMethod{DCTIslow, DCTIfast, DCTFloat} {
		got := runIDCT(method, 8, &q, &coef)
		for y, row := range got {
			for x, v := range row {
				assert.Equal(t, row[0], v, "%s row %d is not flat", method, y)
				assert.LessOrEqual(t, absDiff(ref[y][x], v), 3, "%s at %d,%d", method, x, y)
			}
		}
	}
	assert.NotEqual(t, ref[0][0], ref[7][0])
}
