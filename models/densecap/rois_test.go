package densecap

import (
	"testing"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/nvr-ai/go-densecap/inference"
	"github.com/stretchr/testify/assert"
)

func TestProjectRois_SingleScale(t *testing.T) {
	rois := []images.Box{
		{X1: 0, Y1: 0, X2: 9, Y2: 9},
		{X1: 100, Y1: 50, X2: 499, Y2: 449},
	}

	projected, levels := ProjectRois(rois, []float32{1.5}, DefaultReferenceArea)
	assert.Equal(t, []int{0, 0}, levels)
	assert.Equal(t, images.Box{X1: 0, Y1: 0, X2: 13.5, Y2: 13.5}, projected[0])
	assert.Equal(t, images.Box{X1: 150, Y1: 75, X2: 748.5, Y2: 673.5}, projected[1])
}

func TestProjectRois_MultiScale(t *testing.T) {
	scales := []float32{0.5, 1, 2}
	rois := []images.Box{
		// 448x448: 0.5 brings it to 224x224.
		{X1: 0, Y1: 0, X2: 447, Y2: 447},
		// 224x224 already.
		{X1: 10, Y1: 10, X2: 233, Y2: 233},
		// 112x112: doubled.
		{X1: 0, Y1: 0, X2: 111, Y2: 111},
		// Tiny box: the largest scale is still closest.
		{X1: 0, Y1: 0, X2: 3, Y2: 3},
	}

	projected, levels := ProjectRois(rois, scales, DefaultReferenceArea)
	assert.Equal(t, []int{0, 1, 2, 2}, levels)
	assert.Equal(t, images.Box{X1: 0, Y1: 0, X2: 223.5, Y2: 223.5}, projected[0])
	assert.Equal(t, rois[1], projected[1])
	assert.Equal(t, images.Box{X1: 0, Y1: 0, X2: 222, Y2: 222}, projected[2])
}

func TestProjectRois_TiesPickLowestLevel(t *testing.T) {
	// A 2x2 box has area 4 and 16 at the two scales, both 6 away from a reference of 10.
	_, levels := ProjectRois([]images.Box{{X1: 0, Y1: 0, X2: 1, Y2: 1}}, []float32{1, 2}, 10)
	assert.Equal(t, []int{0}, levels)
}

func TestProjectRois_Empty(t *testing.T) {
	projected, levels := ProjectRois(nil, []float32{1, 2}, DefaultReferenceArea)
	assert.Empty(t, projected)
	assert.Empty(t, levels)
}

func TestPyramidRois(t *testing.T) {
	boxes := []images.Box{{X1: 1, Y1: 2, X2: 3, Y2: 4}, {X1: 5, Y1: 6, X2: 7, Y2: 8}}
	assert.Equal(t, []inference.RoI{
		{Level: 0, Box: boxes[0]},
		{Level: 2, Box: boxes[1]},
	}, pyramidRois(boxes, []int{0, 2}))
}
