package densecap

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-densecap/inference"
	"gorgonia.org/tensor"
)

// scriptedEngine replays a fixed token script. Region r emits script[r][step] (the last entry
// repeats) with probability 0.9 and a constant delta.
type scriptedEngine struct {
	mu sync.Mutex

	vocab  int
	script [][]int
	delta  [4]float32
	scores [][]float32
	// Proposals returned in RPN mode.
	rpnRois []inference.RoI

	proposeErr error
	stepErr    error
	// Drops the word probabilities on every step.
	dropProbs bool
	// Puts all the mass on the unknown word for every region.
	favorUnknown bool

	proposals []inference.ImageInput
	steps     []inference.StepInput
	cursor    int
	closed    bool
}

func (e *scriptedEngine) Propose(_ context.Context, input inference.ImageInput) (*inference.Proposals, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.proposals = append(e.proposals, input)
	if e.proposeErr != nil {
		return nil, e.proposeErr
	}

	rois := input.Rois
	if rois == nil {
		rois = e.rpnRois
	}
	scores := e.scores
	if scores == nil {
		scores = make([][]float32, len(rois))
		for i := range scores {
			scores[i] = []float32{0.1, 0.9}
		}
	}
	return &inference.Proposals{Rois: rois, Scores: scores}, nil
}

func (e *scriptedEngine) Step(_ context.Context, input inference.StepInput) (*inference.StepOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps = append(e.steps, input)
	if len(input.Cont) > 0 && input.Cont[0] == 0 {
		e.cursor = 0
	} else {
		e.cursor++
	}
	step := e.cursor
	if e.stepErr != nil {
		return nil, e.stepErr
	}

	n := len(input.Rois)
	out := &inference.StepOutput{Locations: make([][4]float32, n)}
	data := make([]float32, n*e.vocab)
	for r := 0; r < n; r++ {
		out.Locations[r] = e.delta
		row := data[r*e.vocab : (r+1)*e.vocab]
		for v := range row {
			row[v] = 0.1 / float32(e.vocab)
		}
		if e.favorUnknown {
			row[UNK] = 0.95
			row[e.vocab-1] = 0.04
			continue
		}
		script := e.script[r%len(e.script)]
		tok := script[min(step, len(script)-1)]
		row[tok] = 0.9
	}
	if !e.dropProbs {
		out.WordProbs = tensor.New(tensor.WithShape(n, e.vocab), tensor.WithBacking(data))
	}
	return out, nil
}

func (e *scriptedEngine) Close() error {
	e.closed = true
	return nil
}
