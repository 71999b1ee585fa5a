// Package postprocess - Postprocessing utilities for region captioning.
package postprocess

import "github.com/nvr-ai/go-densecap/images"

// Result represents a single scored box.
type Result struct {
	// The bounding box of the result.
	Box images.Box
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}

// Detection is one captioned region emitted for an image.
type Detection struct {
	// The image the region belongs to.
	ImageID int `json:"image_id"`
	// The caption rendered as space-joined words.
	Caption string `json:"caption"`
	// One box per generated token, in decode order.
	LocationSeq [][4]float32 `json:"location_seq"`
	// The last box of LocationSeq.
	Location [4]float32 `json:"location"`
	// The foreground score of the proposal.
	Score float32 `json:"-"`
	// The accumulated log-probability of the caption.
	LogProb float64 `json:"-"`
	// The raw token ids of the caption.
	Tokens []int `json:"-"`
}

// ImageResult is the persisted record for one image.
type ImageResult struct {
	ImageID          int         `json:"image_id"`
	ImagePath        string      `json:"image_path"`
	CaptionLocations []Detection `json:"caption_locations"`
}
