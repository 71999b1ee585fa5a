package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases.
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Box
		r2       Box
		expected float32
	}{
		{
			name:     "Identical boxes",
			r1:       Box{0, 0, 99, 99},
			r2:       Box{0, 0, 99, 99},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			r1:       Box{0, 0, 99, 99},
			r2:       Box{200, 200, 299, 299},
			expected: 0.0,
		},
		{
			name:     "Adjacent boxes",
			r1:       Box{0, 0, 99, 99},
			r2:       Box{100, 0, 199, 99},
			expected: 0.0,
		},
		{
			name:     "Shared edge column",
			r1:       Box{0, 0, 99, 99},
			r2:       Box{99, 0, 198, 99},
			expected: 100.0 / 19900.0,
		},
		{
			name:     "Quarter overlap",
			r1:       Box{0, 0, 99, 99},
			r2:       Box{50, 50, 149, 149},
			expected: 2500.0 / 17500.0,
		},
		{
			name:     "One inside other",
			r1:       Box{0, 0, 99, 99},
			r2:       Box{25, 25, 74, 74},
			expected: 0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r1, tt.r2), 1e-4)
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r2, tt.r1), 1e-4, "IoU must be symmetric")
		})
	}
}

// TestIoU_EdgeCases covers degenerate inputs.
func TestIoU_EdgeCases(t *testing.T) {
	t.Run("Single pixel boxes", func(t *testing.T) {
		assert.Equal(t, float32(1), CalculateIoU(Box{5, 5, 5, 5}, Box{5, 5, 5, 5}))
	})

	t.Run("Inverted box has no area", func(t *testing.T) {
		inverted := Box{10, 10, 2, 2}
		assert.Equal(t, float32(0), inverted.Area())
		assert.Equal(t, float32(0), CalculateIoU(inverted, Box{0, 0, 20, 20}))
	})
}

func TestBox_Clip(t *testing.T) {
	tests := []struct {
		name     string
		box      Box
		expected Box
	}{
		{"Inside", Box{10, 10, 50, 50}, Box{10, 10, 50, 50}},
		{"Negative", Box{-5, -20, 30, 40}, Box{0, 0, 30, 40}},
		{"Past far edge", Box{90, 60, 150, 400}, Box{90, 60, 99, 79}},
		{"Fully outside", Box{-100, 200, -50, 300}, Box{0, 79, 0, 79}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.box.Clip(100, 80))
		})
	}
}

func TestBox_AreaAndScale(t *testing.T) {
	b := Box{10, 10, 50, 50}
	assert.Equal(t, float32(41*41), b.Area())
	assert.Equal(t, Box{20, 20, 100, 100}, b.Scale(2))
	assert.Equal(t, b, BoxFromArray(b.Array()))
}
