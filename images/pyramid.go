package images

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// PyramidConfig controls how an image is normalized into a scale pyramid.
type PyramidConfig struct {
	// Target lengths of the shorter image side, one pyramid level per entry.
	Scales []int `json:"scales" yaml:"scales" mapstructure:"scales"`
	// Upper bound on the longer image side after scaling.
	MaxSize int `json:"max_size" yaml:"max_size" mapstructure:"max_size"`
	// Per-channel BGR mean subtracted before resizing.
	PixelMeans [Channels]float32 `json:"pixel_means" yaml:"pixel_means" mapstructure:"pixel_means"`
}

// Validate checks the configuration.
func (c PyramidConfig) Validate() error {
	if len(c.Scales) == 0 {
		return errors.New("at least one target scale is required")
	}
	for _, s := range c.Scales {
		if s <= 0 {
			return errors.Errorf("target scale must be positive, got %d", s)
		}
	}
	if c.MaxSize <= 0 {
		return errors.Errorf("max size must be positive, got %d", c.MaxSize)
	}
	return nil
}

// Level describes one rescaled copy inside the pyramid batch.
type Level struct {
	// Width of the rescaled copy before padding.
	Width int
	// Height of the rescaled copy before padding.
	Height int
	// Scale factor applied to the source image.
	Scale float32
}

// Pyramid holds every rescaled copy of an image in one zero-padded NCHW batch.
type Pyramid struct {
	// Blob has shape (levels, 3, height, width).
	Blob *tensor.Dense
	// Levels are ordered like the configured target scales.
	Levels []Level
}

// Scales returns the scale factor of every level in order.
func (p *Pyramid) Scales() []float32 {
	out := make([]float32, len(p.Levels))
	for i, l := range p.Levels {
		out[i] = l.Scale
	}
	return out
}

// Height returns the padded batch height.
func (p *Pyramid) Height() int {
	return p.Blob.Shape()[2]
}

// Width returns the padded batch width.
func (p *Pyramid) Width() int {
	return p.Blob.Shape()[3]
}

// ComputeScale returns the factor that brings the shorter side of a height x width image to
// target, reduced so that the longer side does not exceed maxSize once rounded.
func ComputeScale(width, height, target, maxSize int) float32 {
	sizeMin := float32(min(width, height))
	sizeMax := float32(max(width, height))

	scale := float32(target) / sizeMin
	if math32.Round(scale*sizeMax) > float32(maxSize) {
		scale = float32(maxSize) / sizeMax
	}
	return scale
}

// Builder turns raw images into scale pyramids.
type Builder struct {
	config    PyramidConfig
	resampler Resampler
}

// NewBuilder creates a pyramid builder.
//
// Arguments:
//   - config: The pyramid configuration.
//   - resampler: The resampler used for every level. LinearResampler is used when nil.
//
// Returns:
//   - *Builder: The builder.
//   - error: An error if the configuration is invalid.
func NewBuilder(config PyramidConfig, resampler Resampler) (*Builder, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid pyramid config")
	}
	if resampler == nil {
		resampler = LinearResampler{}
	}
	return &Builder{config: config, resampler: resampler}, nil
}

// Build subtracts the configured mean, rescales the image once per target size and packs
// every copy into a single zero-padded batch.
//
// The source grid is not modified.
//
// Arguments:
//   - im: The source image.
//
// Returns:
//   - *Pyramid: The batch and per-level scale factors.
//   - error: An error if the image is invalid or resampling fails.
func (b *Builder) Build(im *Pixels) (*Pyramid, error) {
	if err := im.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid image")
	}

	normalized := im.Clone()
	normalized.SubtractMean(b.config.PixelMeans)

	copies := make([]*Pixels, len(b.config.Scales))
	levels := make([]Level, len(b.config.Scales))
	var maxH, maxW int

	for i, target := range b.config.Scales {
		scale := ComputeScale(im.Width, im.Height, target, b.config.MaxSize)
		resized, err := b.resampler.Resample(normalized, scale)
		if err != nil {
			return nil, errors.Wrapf(err, "resample level %d", i)
		}
		copies[i] = resized
		levels[i] = Level{Width: resized.Width, Height: resized.Height, Scale: scale}
		maxH = max(maxH, resized.Height)
		maxW = max(maxW, resized.Width)
	}

	return &Pyramid{
		Blob:   packBlob(copies, maxH, maxW),
		Levels: levels,
	}, nil
}

// packBlob copies HWC grids into a zero-padded (N, C, H, W) tensor.
func packBlob(copies []*Pixels, height, width int) *tensor.Dense {
	plane := height * width
	data := make([]float32, len(copies)*Channels*plane)

	for n, p := range copies {
		base := n * Channels * plane
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				src := p.Data[(y*p.Width+x)*Channels:]
				for c := 0; c < Channels; c++ {
					data[base+c*plane+y*width+x] = src[c]
				}
			}
		}
	}

	return tensor.New(
		tensor.WithShape(len(copies), Channels, height, width),
		tensor.WithBacking(data),
	)
}
