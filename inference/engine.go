// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/nvr-ai/go-densecap/inference/providers"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	// ErrMissingOutput is returned when the network does not produce a required tensor.
	ErrMissingOutput = errors.New("missing engine output")
	// ErrShapeMismatch is returned when an engine tensor has an unexpected shape.
	ErrShapeMismatch = errors.New("engine output shape mismatch")
)

// ImageInfo describes the batch buffer: padded height, width and the applied scale.
type ImageInfo struct {
	Height int
	Width  int
	Scale  float32
}

// Array returns the info row as [height, width, scale].
func (i ImageInfo) Array() [3]float32 {
	return [3]float32{float32(i.Height), float32(i.Width), i.Scale}
}

// RoI is a region on one pyramid level, in that level's coordinates.
type RoI struct {
	Level int
	Box   images.Box
}

// ImageInput is sent once per image.
type ImageInput struct {
	// The (levels, 3, height, width) batch buffer.
	Blob *tensor.Dense
	// The image metadata.
	Info ImageInfo
	// Projected proposals, nil when the network proposes regions itself.
	Rois []RoI
}

// Proposals is the per-image output of the region stage.
type Proposals struct {
	// The regions to caption, in pyramid coordinates. Its length fixes the decode batch.
	Rois []RoI
	// Per region, per category scores. Category 0 is background.
	Scores [][]float32
}

// Validate checks that scores and regions agree.
func (p *Proposals) Validate() error {
	if p == nil {
		return errors.Wrap(ErrMissingOutput, "no proposals")
	}
	if len(p.Scores) != len(p.Rois) {
		return errors.Wrapf(ErrShapeMismatch, "%d score rows for %d regions", len(p.Scores), len(p.Rois))
	}
	return nil
}

// StepInput is sent once per decode step.
type StepInput struct {
	// The batch buffer, resent every step.
	Blob *tensor.Dense
	// The image metadata.
	Info ImageInfo
	// The regions returned by Propose.
	Rois []RoI
	// Per region continuation flag: 0 resets recurrent state, 1 continues it.
	Cont []float32
	// Per region previous token id.
	Tokens []float32
}

// StepOutput is the per-step network output.
type StepOutput struct {
	// Per region box delta (dx, dy, dw, dh).
	Locations [][4]float32
	// Word distribution with shape (regions, vocabulary).
	WordProbs *tensor.Dense
}

// Validate checks the output against the expected region count.
func (o *StepOutput) Validate(regions int) error {
	if o == nil || o.WordProbs == nil || o.Locations == nil {
		return errors.Wrap(ErrMissingOutput, "step output")
	}
	if len(o.Locations) != regions {
		return errors.Wrapf(ErrShapeMismatch, "%d locations for %d regions", len(o.Locations), regions)
	}
	shape := o.WordProbs.Shape()
	if len(shape) != 2 || shape[0] != regions || shape[1] < 2 {
		return errors.Wrapf(ErrShapeMismatch, "word probabilities shape %v for %d regions", shape, regions)
	}
	if o.WordProbs.Dtype() != tensor.Float32 {
		return errors.Wrapf(ErrShapeMismatch, "word probabilities dtype %v", o.WordProbs.Dtype())
	}
	return nil
}

// Engine defines the captioning network boundary.
//
// Propose is called once per image and Step once per decode step. Both block until the network
// returns. Implementations must not keep hidden state between images beyond what Cont resets.
type Engine interface {
	Propose(ctx context.Context, input ImageInput) (*Proposals, error)
	Step(ctx context.Context, input StepInput) (*StepOutput, error)
	Close() error
}

// EngineBuilder builds an ONNX engine with a fluent API.
type EngineBuilder struct {
	provider providers.ExecutionProvider
	config   providers.Config
	model    *ModelConfig
	err      error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithProvider sets the provider for the engine.
//
// Arguments:
//   - args: The provider configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(args providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}

	provider, err := providers.NewProvider(args)
	if err != nil {
		b.err = err
		return b
	}
	b.provider = provider
	b.config = args
	return b
}

// WithModel sets the model files and tensor names for the engine.
//
// Arguments:
//   - args: The model configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args ModelConfig) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := args.Validate(); err != nil {
		b.err = err
		return b
	}
	b.model = &args
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - Engine: The engine.
func (b *EngineBuilder) MustBuild() Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine.
//
// Returns:
//   - Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.provider == nil {
		return nil, errors.New("provider not configured")
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}

	return NewONNXEngine(b.provider, b.config, *b.model)
}
