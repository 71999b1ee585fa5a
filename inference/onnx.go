// Package inference - ONNX Runtime captioning engine.
package inference

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-densecap/inference/providers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// TensorNames binds the engine fields to graph tensor names.
type TensorNames struct {
	Data      string `json:"data" yaml:"data" mapstructure:"data"`
	ImInfo    string `json:"im_info" yaml:"im_info" mapstructure:"im_info"`
	Rois      string `json:"rois" yaml:"rois" mapstructure:"rois"`
	Cont      string `json:"cont" yaml:"cont" mapstructure:"cont"`
	Tokens    string `json:"tokens" yaml:"tokens" mapstructure:"tokens"`
	OutRois   string `json:"out_rois" yaml:"out_rois" mapstructure:"out_rois"`
	Scores    string `json:"scores" yaml:"scores" mapstructure:"scores"`
	Locations string `json:"locations" yaml:"locations" mapstructure:"locations"`
	Probs     string `json:"probs" yaml:"probs" mapstructure:"probs"`
}

// DefaultTensorNames returns the names used by exported DenseCap graphs.
func DefaultTensorNames() TensorNames {
	return TensorNames{
		Data:      "data",
		ImInfo:    "im_info",
		Rois:      "rois",
		Cont:      "cont_sentence",
		Tokens:    "input_sentence",
		OutRois:   "rois",
		Scores:    "region_score",
		Locations: "predict_loc",
		Probs:     "probs",
	}
}

// StateConfig pairs a recurrent state output with the input it feeds on the next step.
type StateConfig struct {
	Input  string `json:"input" yaml:"input" mapstructure:"input"`
	Output string `json:"output" yaml:"output" mapstructure:"output"`
	// Shape of the state. A -1 marks the region axis.
	Shape []int64 `json:"shape" yaml:"shape" mapstructure:"shape"`
}

// regionAxis returns the index of the region axis, or -1.
func (s StateConfig) regionAxis() int {
	for i, d := range s.Shape {
		if d < 0 {
			return i
		}
	}
	return -1
}

// dims resolves the shape for the given region count.
func (s StateConfig) dims(regions int) []int64 {
	dims := make([]int64, len(s.Shape))
	for i, d := range s.Shape {
		if d < 0 {
			d = int64(regions)
		}
		dims[i] = d
	}
	return dims
}

// ModelConfig describes the exported captioning graphs.
type ModelConfig struct {
	// Graph run once per image producing region scores (and regions when HasRPN).
	ProposalModel string `json:"proposal_model" yaml:"proposal_model" mapstructure:"proposal_model"`
	// Graph run once per decode step.
	StepModel string `json:"step_model" yaml:"step_model" mapstructure:"step_model"`
	// Whether the proposal graph generates its own regions.
	HasRPN bool          `json:"has_rpn" yaml:"has_rpn" mapstructure:"has_rpn"`
	Names  TensorNames   `json:"names" yaml:"names" mapstructure:"names"`
	States []StateConfig `json:"states" yaml:"states" mapstructure:"states"`
}

// Validate checks the model configuration.
func (c ModelConfig) Validate() error {
	if c.ProposalModel == "" || c.StepModel == "" {
		return errors.New("proposal and step models are required")
	}
	n := c.Names
	for name, v := range map[string]string{
		"data": n.Data, "im_info": n.ImInfo, "rois": n.Rois, "cont": n.Cont, "tokens": n.Tokens,
		"scores": n.Scores, "locations": n.Locations, "probs": n.Probs,
	} {
		if v == "" {
			return errors.Errorf("tensor name %q is empty", name)
		}
	}
	if c.HasRPN && n.OutRois == "" {
		return errors.New("out_rois name is required with has_rpn")
	}
	for _, s := range c.States {
		if s.Input == "" || s.Output == "" || len(s.Shape) == 0 {
			return errors.Errorf("incomplete recurrent state %+v", s)
		}
		if s.regionAxis() < 0 {
			return errors.Errorf("recurrent state %s has no region axis", s.Input)
		}
	}
	return nil
}

// proposalIO returns the proposal graph input and output names.
func (c ModelConfig) proposalIO() ([]string, []string) {
	inputs := []string{c.Names.Data, c.Names.ImInfo}
	outputs := []string{c.Names.Scores}
	if c.HasRPN {
		outputs = append(outputs, c.Names.OutRois)
	} else {
		inputs = append(inputs, c.Names.Rois)
	}
	return inputs, outputs
}

// stepIO returns the step graph input and output names.
func (c ModelConfig) stepIO() ([]string, []string) {
	inputs := []string{c.Names.Data, c.Names.ImInfo, c.Names.Rois, c.Names.Cont, c.Names.Tokens}
	outputs := []string{c.Names.Locations, c.Names.Probs}
	for _, s := range c.States {
		inputs = append(inputs, s.Input)
		outputs = append(outputs, s.Output)
	}
	return inputs, outputs
}

// ONNXEngine runs the captioning network through ONNX Runtime.
type ONNXEngine struct {
	model    ModelConfig
	proposal *providers.Session
	step     *providers.Session

	mu     sync.Mutex
	states [][]float32
}

// NewONNXEngine loads both graphs on the given provider.
//
// Arguments:
//   - provider: The execution provider.
//   - config: The provider configuration holding optimization settings and the library path.
//   - model: The model configuration.
//
// Returns:
//   - *ONNXEngine: The engine.
//   - error: An error if a session cannot be created.
func NewONNXEngine(provider providers.ExecutionProvider, config providers.Config, model ModelConfig) (*ONNXEngine, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}

	in, out := model.proposalIO()
	proposal, err := providers.NewSession(provider, providers.NewSessionArgs{
		ModelPath:    model.ProposalModel,
		Inputs:       in,
		Outputs:      out,
		Optimization: config.Optimization,
		LibraryPath:  config.LibraryPath,
	})
	if err != nil {
		return nil, errors.Wrap(err, "proposal session")
	}

	in, out = model.stepIO()
	step, err := providers.NewSession(provider, providers.NewSessionArgs{
		ModelPath:    model.StepModel,
		Inputs:       in,
		Outputs:      out,
		Optimization: config.Optimization,
		LibraryPath:  config.LibraryPath,
	})
	if err != nil {
		_ = proposal.Close()
		return nil, errors.Wrap(err, "step session")
	}

	log.Info().
		Str("proposal_model", model.ProposalModel).
		Str("step_model", model.StepModel).
		Bool("has_rpn", model.HasRPN).
		Int("states", len(model.States)).
		Msg("captioning engine ready")

	return &ONNXEngine{
		model:    model,
		proposal: proposal,
		step:     step,
		states:   make([][]float32, len(model.States)),
	}, nil
}

// Propose runs the proposal graph for one image.
func (e *ONNXEngine) Propose(ctx context.Context, input ImageInput) (*Proposals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !e.model.HasRPN && input.Rois == nil {
		return nil, errors.New("regions are required when the network has no proposal stage")
	}

	var inputs []ort.Value
	defer func() { providers.DestroyValues(inputs) }()

	data, err := denseValue(input.Blob)
	if err != nil {
		return nil, err
	}
	inputs = append(inputs, data)
	info, err := infoValue(input.Info)
	if err != nil {
		return nil, err
	}
	inputs = append(inputs, info)
	if !e.model.HasRPN {
		rois, err := roisValue(input.Rois)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, rois)
	}

	outputs, err := e.proposal.Run(inputs)
	if err != nil {
		return nil, err
	}
	defer providers.DestroyValues(outputs)

	out := &Proposals{Rois: input.Rois}
	if e.model.HasRPN {
		data, shape, err := floatOutput(outputs[1], e.model.Names.OutRois)
		if err != nil {
			return nil, err
		}
		if out.Rois, err = decodeRois(data, shape); err != nil {
			return nil, err
		}
	}

	scores, err := matrixOutput(outputs[0], e.model.Names.Scores, len(out.Rois))
	if err != nil {
		return nil, err
	}
	out.Scores = rowsOf(scores.Data().([]float32), scores.Shape()[1])

	return out, out.Validate()
}

// Step runs one decode step for every region of the current image.
func (e *ONNXEngine) Step(ctx context.Context, input StepInput) (*StepOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(input.Rois)
	if len(input.Cont) != n || len(input.Tokens) != n {
		return nil, errors.Wrapf(ErrShapeMismatch, "step inputs for %d regions: %d cont, %d tokens",
			n, len(input.Cont), len(input.Tokens))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var inputs []ort.Value
	defer func() { providers.DestroyValues(inputs) }()

	data, err := denseValue(input.Blob)
	if err != nil {
		return nil, err
	}
	inputs = append(inputs, data)
	info, err := infoValue(input.Info)
	if err != nil {
		return nil, err
	}
	inputs = append(inputs, info)
	rois, err := roisValue(input.Rois)
	if err != nil {
		return nil, err
	}
	inputs = append(inputs, rois)
	cont, err := floatValue(input.Cont, int64(n))
	if err != nil {
		return nil, err
	}
	inputs = append(inputs, cont)
	tokens, err := floatValue(input.Tokens, int64(n))
	if err != nil {
		return nil, err
	}
	inputs = append(inputs, tokens)

	for i, s := range e.model.States {
		state := e.stateFor(i, n, input.Cont)
		v, err := floatValue(state, s.dims(n)...)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, v)
	}

	outputs, err := e.step.Run(inputs)
	if err != nil {
		return nil, err
	}
	defer providers.DestroyValues(outputs)

	locs, shape, err := floatOutput(outputs[0], e.model.Names.Locations)
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 || int(shape[0]) != n || shape[1] != 4 {
		return nil, errors.Wrapf(ErrShapeMismatch, "output %s shape %v", e.model.Names.Locations, shape)
	}
	probs, err := matrixOutput(outputs[1], e.model.Names.Probs, n)
	if err != nil {
		return nil, err
	}

	for i, s := range e.model.States {
		state, _, err := floatOutput(outputs[2+i], s.Output)
		if err != nil {
			return nil, err
		}
		e.states[i] = state
	}

	out := &StepOutput{Locations: make([][4]float32, n), WordProbs: probs}
	for i := range out.Locations {
		copy(out.Locations[i][:], locs[i*4:i*4+4])
	}
	return out, out.Validate(n)
}

// stateFor returns the state fed to the i-th state input. Regions with cont 0 start from zero.
func (e *ONNXEngine) stateFor(i, regions int, cont []float32) []float32 {
	cfg := e.model.States[i]
	dims := cfg.dims(regions)
	size := 1
	for _, d := range dims {
		size *= int(d)
	}

	prev := e.states[i]
	state := make([]float32, size)
	if len(prev) != size {
		return state
	}

	axis := cfg.regionAxis()
	stride := 1
	for _, d := range dims[axis+1:] {
		stride *= int(d)
	}
	for idx := range state {
		if cont[(idx/stride)%regions] != 0 {
			state[idx] = prev[idx]
		}
	}
	return state
}

// Close releases both sessions.
func (e *ONNXEngine) Close() error {
	var first error
	for _, s := range []*providers.Session{e.proposal, e.step} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
