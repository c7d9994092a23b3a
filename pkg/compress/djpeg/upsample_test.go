package djpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFancyUpsampleRamp(t *testing.T) {
	ramp := []byte{0, 40, 80, 120}
	want := []byte{0, 10, 30, 50, 70, 90, 110, 120}
	c := &component{downWidth: 4}

	out := [][]byte{make([]byte, 8)}
	h2v1FancyUpsample(c, [][]byte{nil, ramp, nil}, out)
	assert.Equal(t, want, out[0])

	out = [][]byte{make([]byte, 8), make([]byte, 8)}
	h2v2FancyUpsample(c, [][]byte{ramp, ramp, ramp}, out)
	assert.Equal(t, want, out[0])
	assert.Equal(t, want, out[1])
}

func TestFancyUpsampleVerticalWeights(t *testing.T) {
	above := []byte{0, 0, 0, 0}
	cur := []byte{100, 100, 100, 100}
	below := []byte{200, 200, 200, 200}
	out := [][]byte{make([]byte, 8), make([]byte, 8)}
	h2v2FancyUpsample(&component{downWidth: 4}, [][]byte{above, cur, below}, out)
	// 3/4 of the nearer row plus 1/4 of the farther one
	for x := 0; x < 8; x++ {
		assert.InDelta(t, 75, int(out[0][x]), 1, "x %d", x)
		assert.InDelta(t, 125, int(out[1][x]), 1, "x %d", x)
	}
}

func TestIntegerUpsample(t *testing.T) {
	c := &component{downWidth: 3}
	out := [][]byte{make([]byte, 9), make([]byte, 9)}
	intUpsample(3, 2)(c, [][]byte{nil, {1, 2, 3}, nil}, out)
	for _, row := range out {
		assert.Equal(t, []byte{1, 1, 1, 2, 2, 2, 3, 3, 3}, row)
	}
}
