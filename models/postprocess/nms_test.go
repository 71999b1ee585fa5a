package postprocess

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomDetections(n int, seed int64) []Result {
	rng := rand.New(rand.NewSource(seed))
	dets := make([]Result, n)
	for i := range dets {
		x := rng.Float32() * 400
		y := rng.Float32() * 300
		dets[i] = Result{
			Box:   images.Box{X1: x, Y1: y, X2: x + 10 + rng.Float32()*80, Y2: y + 10 + rng.Float32()*80},
			Score: float32(rng.Intn(50)) / 50,
			Class: rng.Intn(3),
		}
	}
	return dets
}

// TestSuppress_HeavyOverlap keeps only the best of three nearly identical boxes.
func TestSuppress_HeavyOverlap(t *testing.T) {
	dets := []Result{
		{Box: images.Box{X1: 10, Y1: 10, X2: 110, Y2: 110}, Score: 0.8},
		{Box: images.Box{X1: 10, Y1: 10, X2: 110, Y2: 110}, Score: 0.9},
		{Box: images.Box{X1: 11, Y1: 11, X2: 111, Y2: 111}, Score: 0.7},
	}
	for i := 0; i < len(dets); i++ {
		for j := i + 1; j < len(dets); j++ {
			require.Greater(t, images.CalculateIoU(dets[i].Box, dets[j].Box), float32(0.9))
		}
	}

	keep := Suppress(dets, DefaultNMSConfig(0.5))

	assert.Equal(t, []int{1}, keep)
	assert.Equal(t, float32(0.9), ApplyNMS(dets, DefaultNMSConfig(0.5))[0].Score)
}

func TestSuppress_Cases(t *testing.T) {
	tests := []struct {
		name       string
		dets       []Result
		threshold  float32
		classAware bool
		expected   []int
	}{
		{
			name:      "Empty",
			dets:      nil,
			threshold: 0.5,
			expected:  nil,
		},
		{
			name: "Disjoint boxes all kept by score",
			dets: []Result{
				{Box: images.Box{X1: 0, Y1: 0, X2: 9, Y2: 9}, Score: 0.2},
				{Box: images.Box{X1: 50, Y1: 50, X2: 59, Y2: 59}, Score: 0.6},
				{Box: images.Box{X1: 100, Y1: 100, X2: 109, Y2: 109}, Score: 0.4},
			},
			threshold: 0.3,
			expected:  []int{1, 2, 0},
		},
		{
			name: "Ties resolved by original index",
			dets: []Result{
				{Box: images.Box{X1: 0, Y1: 0, X2: 9, Y2: 9}, Score: 0.5},
				{Box: images.Box{X1: 0, Y1: 0, X2: 9, Y2: 9}, Score: 0.5},
			},
			threshold: 0.5,
			expected:  []int{0},
		},
		{
			name: "IoU equal to threshold survives",
			dets: []Result{
				{Box: images.Box{X1: 0, Y1: 0, X2: 99, Y2: 99}, Score: 0.9},
				{Box: images.Box{X1: 0, Y1: 0, X2: 49, Y2: 99}, Score: 0.8},
			},
			threshold: 0.5,
			expected:  []int{0, 1},
		},
		{
			name: "Class aware keeps other classes",
			dets: []Result{
				{Box: images.Box{X1: 0, Y1: 0, X2: 9, Y2: 9}, Score: 0.9, Class: 1},
				{Box: images.Box{X1: 0, Y1: 0, X2: 9, Y2: 9}, Score: 0.8, Class: 2},
			},
			threshold:  0.5,
			classAware: true,
			expected:   []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultNMSConfig(tt.threshold)
			cfg.ClassAware = tt.classAware
			assert.Equal(t, tt.expected, Suppress(tt.dets, cfg))
		})
	}
}

// TestSuppress_Idempotent re-runs NMS on its own output.
func TestSuppress_Idempotent(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		dets := randomDetections(300, seed)
		cfg := DefaultNMSConfig(0.4)

		first := ApplyNMS(dets, cfg)
		second := ApplyNMS(first, cfg)

		assert.Equal(t, first, second)
	}
}

// TestSuppress_ParallelMatchesSerial checks that dispatch does not change the result.
func TestSuppress_ParallelMatchesSerial(t *testing.T) {
	dets := randomDetections(2000, 7)

	serial := DefaultNMSConfig(0.3)
	serial.ForceCPU = true

	parallel := DefaultNMSConfig(0.3)
	parallel.ParallelThreshold = 1
	parallel.NumWorkers = 4
	require.True(t, parallel.useParallel(len(dets)))

	assert.Equal(t, Suppress(dets, serial), Suppress(dets, parallel))
}

func TestNMSConfig_Dispatch(t *testing.T) {
	cfg := DefaultNMSConfig(0.3)
	cfg.NumWorkers = 8

	assert.False(t, cfg.useParallel(DefaultParallelThreshold-1))
	assert.True(t, cfg.useParallel(DefaultParallelThreshold))

	cfg.ForceCPU = true
	assert.False(t, cfg.useParallel(DefaultParallelThreshold*10))

	cfg.ForceCPU = false
	cfg.NumWorkers = 1
	assert.False(t, cfg.useParallel(DefaultParallelThreshold*10))
}

func TestCollateNMS(t *testing.T) {
	dup := []Result{
		{Box: images.Box{X1: 0, Y1: 0, X2: 9, Y2: 9}, Score: 0.9},
		{Box: images.Box{X1: 0, Y1: 0, X2: 9, Y2: 9}, Score: 0.3},
	}
	all := [][][]Result{
		{nil, nil},
		{dup, nil},
		{nil, dup[1:]},
	}

	out := CollateNMS(all, 0.3)

	require.Len(t, out, 3)
	require.Len(t, out[1], 2)
	assert.Empty(t, out[0][0])
	assert.Equal(t, dup[:1], out[1][0])
	assert.Empty(t, out[1][1])
	assert.Equal(t, dup[1:], out[2][1])
}

func BenchmarkSuppress_Serial(b *testing.B) {
	dets := randomDetections(2000, 11)
	cfg := DefaultNMSConfig(0.3)
	cfg.ForceCPU = true

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Suppress(dets, cfg)
	}
}

func BenchmarkSuppress_Parallel(b *testing.B) {
	dets := randomDetections(20000, 11)
	cfg := DefaultNMSConfig(0.3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Suppress(dets, cfg)
	}
}
