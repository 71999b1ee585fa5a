package postprocess

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceIndex(t *testing.T) {
	index := NewSequenceIndex([]int{2, 0, 3})

	assert.Equal(t, []int{0, 2, 2, 5}, index.Offsets)
	assert.Equal(t, 3, index.Count())
	assert.Equal(t, 5, index.Total())

	from, to := index.Span(2)
	assert.Equal(t, 2, from)
	assert.Equal(t, 5, to)
}

// TestTransformInv_ZeroDelta checks that a zero delta is the identity.
func TestTransformInv_ZeroDelta(t *testing.T) {
	boxes := []images.Box{{X1: 10, Y1: 10, X2: 50, Y2: 50}, {X1: 0, Y1: 5, X2: 99, Y2: 7}}
	out := TransformInv(boxes, make([][4]float32, len(boxes)))
	assert.Equal(t, boxes, out)
}

func TestTransformInv_Deltas(t *testing.T) {
	base := []images.Box{{X1: 0, Y1: 0, X2: 9, Y2: 19}}

	t.Run("Translate", func(t *testing.T) {
		out := TransformInv(base, [][4]float32{{0.5, -0.25, 0, 0}})
		assert.InDelta(t, 5, out[0].X1, 1e-5)
		assert.InDelta(t, 14, out[0].X2, 1e-5)
		assert.InDelta(t, -5, out[0].Y1, 1e-5)
		assert.InDelta(t, 14, out[0].Y2, 1e-5)
	})

	t.Run("Scale", func(t *testing.T) {
		out := TransformInv(base, [][4]float32{{0, 0, 0.6931472, 0}})
		assert.InDelta(t, 20, out[0].Width(), 1e-4)
		assert.InDelta(t, 20, out[0].Height(), 1e-4)
		assert.InDelta(t, -5, out[0].X1, 1e-4)
	})
}

// TestTransformSequences_Lengths checks that ragged sequences keep their lengths and order.
func TestTransformSequences_Lengths(t *testing.T) {
	base := []images.Box{
		{X1: 10, Y1: 10, X2: 50, Y2: 50},
		{X1: 20, Y1: 20, X2: 30, Y2: 30},
		{X1: 0, Y1: 0, X2: 99, Y2: 79},
	}
	seqs := [][][4]float32{
		{{0, 0, 0, 0}, {0, 0, 0, 0}},
		{},
		{{0, 0, 0, 0}, {0.1, 0, 0, 0}, {0, 0, 0, 0}},
	}

	out, err := TransformSequences(base, seqs, 100, 80)
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Len(t, out[0], 2)
	assert.Len(t, out[1], 0)
	assert.Len(t, out[2], 3)
	assert.Equal(t, base[0], out[0][1])
	assert.Equal(t, base[2], out[2][2])
	assert.Equal(t, float32(99), out[2][1].X2, "shifted box must be clipped")
}

// TestTransformSequences_Clipped feeds arbitrary deltas and checks every coordinate is bounded.
func TestTransformSequences_Clipped(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const width, height = 64, 48

	base := make([]images.Box, 50)
	seqs := make([][][4]float32, 50)
	for i := range base {
		x, y := rng.Float32()*60, rng.Float32()*40
		base[i] = images.Box{X1: x, Y1: y, X2: x + rng.Float32()*30, Y2: y + rng.Float32()*30}
		seqs[i] = make([][4]float32, rng.Intn(15))
		for s := range seqs[i] {
			for k := 0; k < 4; k++ {
				seqs[i][s][k] = (rng.Float32() - 0.5) * 8
			}
		}
	}

	out, err := TransformSequences(base, seqs, width, height)
	require.NoError(t, err)

	for i, seq := range out {
		require.Len(t, seq, len(seqs[i]))
		for _, b := range seq {
			for _, v := range []float32{b.X1, b.X2} {
				assert.GreaterOrEqual(t, v, float32(0))
				assert.LessOrEqual(t, v, float32(width-1))
			}
			for _, v := range []float32{b.Y1, b.Y2} {
				assert.GreaterOrEqual(t, v, float32(0))
				assert.LessOrEqual(t, v, float32(height-1))
			}
		}
	}
}

func TestFlattenSequences_Mismatch(t *testing.T) {
	_, _, _, err := FlattenSequences([]images.Box{{}}, nil)
	assert.Error(t, err)
}
