package densecap

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-densecap/images"
	"github.com/nvr-ai/go-densecap/inference"
)

// DefaultReferenceArea is the canonical region area, in scaled pixels, that level selection
// aims for.
const DefaultReferenceArea = 224 * 224

// ProjectRois maps proposals from image coordinates onto the pyramid.
//
// With a single scale every proposal lands on level 0. Otherwise each proposal picks the level
// whose scaled area is closest to referenceArea, the lowest level winning ties.
//
// Arguments:
//   - rois: Proposals in image coordinates.
//   - scales: Pyramid scale factors.
//   - referenceArea: The target area.
//
// Returns:
//   - []images.Box: The proposals scaled to their level.
//   - []int: The chosen level of every proposal.
func ProjectRois(rois []images.Box, scales []float32, referenceArea float32) ([]images.Box, []int) {
	projected := make([]images.Box, len(rois))
	levels := make([]int, len(rois))

	for i, roi := range rois {
		level := 0
		if len(scales) > 1 {
			area := roi.Area()
			best := math32.Inf(1)
			for l, s := range scales {
				diff := math32.Abs(area*s*s - referenceArea)
				if diff < best {
					best = diff
					level = l
				}
			}
		}
		levels[i] = level
		projected[i] = roi.Scale(scales[level])
	}

	return projected, levels
}

// pyramidRois pairs projected proposals with their levels.
func pyramidRois(boxes []images.Box, levels []int) []inference.RoI {
	out := make([]inference.RoI, len(boxes))
	for i := range boxes {
		out[i] = inference.RoI{Level: levels[i], Box: boxes[i]}
	}
	return out
}
