package densecap

import (
	"context"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/nvr-ai/go-densecap/inference"
	"github.com/nvr-ai/go-densecap/models/postprocess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrMultiScale is returned when a multi-level pyramid reaches the box transform.
	ErrMultiScale = errors.New("box transform requires a single-scale pyramid")
	// ErrNoProposals is returned when an image without proposals is detected without an RPN.
	ErrNoProposals = errors.New("no proposals for image")
)

// DetectorConfig configures per-image detection.
type DetectorConfig struct {
	// Pyramid preprocessing.
	Pyramid images.PyramidConfig `json:"pyramid" yaml:"pyramid" mapstructure:"pyramid"`
	// Whether the network generates its own proposals.
	HasRPN bool `json:"has_rpn" yaml:"has_rpn" mapstructure:"has_rpn"`
	// Decode step budget.
	MaxSteps int `json:"max_steps" yaml:"max_steps" mapstructure:"max_steps"`
	// Target area of the level selection.
	ReferenceArea float32 `json:"reference_area" yaml:"reference_area" mapstructure:"reference_area"`
}

// DefaultDetectorConfig returns the canonical single-scale test configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Pyramid: images.PyramidConfig{
			Scales:     []int{600},
			MaxSize:    1000,
			PixelMeans: [images.Channels]float32{102.9801, 115.9465, 122.7717},
		},
		MaxSteps:      DefaultMaxSteps,
		ReferenceArea: DefaultReferenceArea,
	}
}

// Detector captions the regions of one image at a time.
type Detector struct {
	engine  inference.Engine
	pyramid *images.Builder
	decoder *Decoder
	config  DetectorConfig
}

// NewDetector creates a detector.
//
// Arguments:
//   - engine: The captioning network.
//   - config: The detector configuration.
//   - resampler: The pyramid resampler, nil for the pure Go linear one.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the configuration is invalid.
func NewDetector(engine inference.Engine, config DetectorConfig, resampler images.Resampler) (*Detector, error) {
	builder, err := images.NewBuilder(config.Pyramid, resampler)
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoder(engine, config.MaxSteps)
	if err != nil {
		return nil, err
	}
	if config.ReferenceArea <= 0 {
		config.ReferenceArea = DefaultReferenceArea
	}

	return &Detector{
		engine:  engine,
		pyramid: builder,
		decoder: decoder,
		config:  config,
	}, nil
}

// Detect runs the full pipeline on one image: pyramid, projection, region scoring, greedy
// decoding and box transform.
//
// Arguments:
//   - ctx: Passed to every engine call.
//   - im: The image, owned by the caller.
//   - proposals: Regions in image coordinates. Ignored when the network has an RPN.
//
// Returns:
//   - *postprocess.Regions: Scores, clipped box sequences, captions and log-probabilities.
//   - error: An error if any stage fails.
func (d *Detector) Detect(ctx context.Context, im *images.Pixels, proposals []images.Box) (*postprocess.Regions, error) {
	pyr, err := d.pyramid.Build(im)
	if err != nil {
		return nil, errors.Wrap(err, "build pyramid")
	}
	scales := pyr.Scales()

	input := inference.ImageInput{
		Blob: pyr.Blob,
		Info: inference.ImageInfo{Height: pyr.Height(), Width: pyr.Width(), Scale: scales[0]},
	}
	if !d.config.HasRPN {
		if len(proposals) == 0 {
			return nil, ErrNoProposals
		}
		projected, levels := ProjectRois(proposals, scales, d.config.ReferenceArea)
		input.Rois = pyramidRois(projected, levels)
	}

	regions, err := d.engine.Propose(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "propose regions")
	}
	if err := regions.Validate(); err != nil {
		return nil, err
	}

	decoded, err := d.decoder.Decode(ctx, pyr.Blob, input.Info, regions.Rois)
	if err != nil {
		return nil, err
	}

	if len(scales) != 1 {
		return nil, errors.Wrapf(ErrMultiScale, "%d levels", len(scales))
	}

	base := make([]images.Box, len(regions.Rois))
	for i, r := range regions.Rois {
		base[i] = r.Box.Scale(1 / scales[0])
	}
	boxes, err := postprocess.TransformSequences(base, decoded.Locations, im.Width, im.Height)
	if err != nil {
		return nil, errors.Wrap(err, "transform box sequences")
	}

	log.Debug().
		Int("width", im.Width).
		Int("height", im.Height).
		Float32("scale", scales[0]).
		Int("regions", len(regions.Rois)).
		Msg("image detected")

	return &postprocess.Regions{
		Scores:   regions.Scores,
		Boxes:    boxes,
		Captions: decoded.Captions,
		LogProbs: decoded.LogProbs,
	}, nil
}
