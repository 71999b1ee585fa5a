package densecap

import (
	"context"
	"math"

	"github.com/nvr-ai/go-densecap/inference"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorgonia.org/tensor"
)

// DefaultMaxSteps is the decode step budget of the canonical configuration.
const DefaultMaxSteps = 15

// logEpsilon keeps log-probabilities finite when the chosen word has zero mass.
const logEpsilon = 1e-10

// DecodeState is the lifecycle of one proposal during decoding.
type DecodeState int

const (
	// Unstarted proposals have not received a token yet.
	Unstarted DecodeState = iota
	// Decoding proposals grow by one token and one location per step.
	Decoding
	// Finished proposals emitted the end-of-sequence token or ran out of steps, and are frozen.
	Finished
)

// String returns the state name.
func (s DecodeState) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Decoding:
		return "decoding"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Sequence is the decoding state of a single proposal.
type Sequence struct {
	State     DecodeState
	Tokens    []int
	Locations [][4]float32
	LogProb   float64
}

// advance applies one step's choice to the sequence.
func (s *Sequence) advance(token int, location [4]float32, prob float32) {
	switch s.State {
	case Unstarted:
		s.State = Decoding
		s.Tokens = append(s.Tokens, token)
		s.Locations = append(s.Locations, location)
		s.LogProb = math.Log(float64(prob) + logEpsilon)
	case Decoding:
		if s.Tokens[len(s.Tokens)-1] != EOS {
			s.Tokens = append(s.Tokens, token)
			s.Locations = append(s.Locations, location)
			s.LogProb += math.Log(float64(prob) + logEpsilon)
		} else {
			s.State = Finished
		}
	}
}

// finish closes a sequence that is still open when the step budget runs out.
func (s *Sequence) finish() {
	if s.State == Decoding {
		s.State = Finished
	}
}

// Decoded holds the outputs of one decode run, indexed by proposal.
type Decoded struct {
	Captions  [][]int
	Locations [][][4]float32
	LogProbs  []float64
	States    []DecodeState
}

// Decoder drives the step network greedily for a fixed number of steps.
type Decoder struct {
	engine   inference.Engine
	maxSteps int
}

// NewDecoder creates a greedy decoder.
//
// Arguments:
//   - engine: The step network.
//   - maxSteps: The step budget, DefaultMaxSteps when zero.
//
// Returns:
//   - *Decoder: The decoder.
//   - error: An error if the arguments are invalid.
func NewDecoder(engine inference.Engine, maxSteps int) (*Decoder, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	if maxSteps < 0 {
		return nil, errors.Errorf("max steps must be positive, got %d", maxSteps)
	}
	return &Decoder{engine: engine, maxSteps: maxSteps}, nil
}

// MaxSteps returns the step budget.
func (d *Decoder) MaxSteps() int {
	return d.maxSteps
}

// Decode generates a caption and a location sequence for every region.
//
// Every step issues one batched engine call covering all regions, finished ones included.
// Continuation flags are 0 on the first step and 1 afterwards, and the chosen tokens of each
// step are fed back as the next step's input.
//
// Arguments:
//   - ctx: Cancels between steps.
//   - blob: The pyramid batch buffer.
//   - info: The image metadata.
//   - rois: The regions to caption.
//
// Returns:
//   - *Decoded: The per-region outputs.
//   - error: An error if a step fails or returns malformed outputs.
func (d *Decoder) Decode(ctx context.Context, blob *tensor.Dense, info inference.ImageInfo, rois []inference.RoI) (*Decoded, error) {
	n := len(rois)
	seqs := make([]Sequence, n)

	if n > 0 {
		chosen := make([]int, n)

		for step := 0; step < d.maxSteps; step++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			cont := make([]float32, n)
			tokens := make([]float32, n)
			if step > 0 {
				for i, tok := range chosen {
					cont[i] = 1
					tokens[i] = float32(tok)
				}
			}

			out, err := d.engine.Step(ctx, inference.StepInput{
				Blob:   blob,
				Info:   info,
				Rois:   rois,
				Cont:   cont,
				Tokens: tokens,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "decode step %d", step)
			}
			if err := out.Validate(n); err != nil {
				return nil, errors.Wrapf(err, "decode step %d", step)
			}

			var probs []float32
			chosen, probs, err = selectTokens(out.WordProbs)
			if err != nil {
				return nil, errors.Wrapf(err, "decode step %d", step)
			}

			for i := range seqs {
				seqs[i].advance(chosen[i], out.Locations[i], probs[i])
			}
		}
	}

	decoded := &Decoded{
		Captions:  make([][]int, n),
		Locations: make([][][4]float32, n),
		LogProbs:  make([]float64, n),
		States:    make([]DecodeState, n),
	}
	finished := 0
	for i := range seqs {
		ended := seqs[i].State == Finished
		seqs[i].finish()
		s := seqs[i]
		decoded.Captions[i] = s.Tokens
		decoded.Locations[i] = s.Locations
		decoded.LogProbs[i] = s.LogProb
		decoded.States[i] = s.State
		if ended {
			finished++
		}
	}

	log.Debug().Int("regions", n).Int("ended", finished).Int("exhausted", n-finished).Int("steps", d.maxSteps).Msg("decoded")
	return decoded, nil
}

// selectTokens zeroes the unknown word and returns each row's arg-max and its probability.
// The input tensor is left untouched.
func selectTokens(wordProbs *tensor.Dense) ([]int, []float32, error) {
	shape := wordProbs.Shape()
	rows, vocab := shape[0], shape[1]

	masked, ok := wordProbs.Clone().(*tensor.Dense)
	if !ok {
		return nil, nil, errors.New("clone word probabilities")
	}
	data, ok := masked.Data().([]float32)
	if !ok {
		return nil, nil, errors.Errorf("word probabilities dtype %v", masked.Dtype())
	}
	for r := 0; r < rows; r++ {
		data[r*vocab+UNK] = 0
	}

	best, err := masked.Argmax(1)
	if err != nil {
		return nil, nil, errors.Wrap(err, "arg-max word probabilities")
	}

	var chosen []int
	switch v := best.Data().(type) {
	case []int:
		chosen = v
	case int:
		chosen = []int{v}
	default:
		return nil, nil, errors.Errorf("unexpected arg-max type %T", v)
	}
	if len(chosen) != rows {
		return nil, nil, errors.Errorf("arg-max returned %d tokens for %d regions", len(chosen), rows)
	}

	probs := make([]float32, rows)
	for r, tok := range chosen {
		probs[r] = data[r*vocab+tok]
	}
	return chosen, probs, nil
}
