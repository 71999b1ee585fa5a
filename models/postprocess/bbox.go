package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-densecap/images"
	"github.com/pkg/errors"
)

// SequenceIndex locates ragged per-proposal sequences inside one flat arena.
//
// Offsets has one entry per proposal plus a trailing total, starting at 0, so proposal i
// occupies arena[Offsets[i]:Offsets[i+1]].
type SequenceIndex struct {
	Offsets []int
}

// NewSequenceIndex builds the prefix-sum index for the given sequence lengths.
func NewSequenceIndex(lengths []int) SequenceIndex {
	offsets := make([]int, len(lengths)+1)
	for i, l := range lengths {
		offsets[i+1] = offsets[i] + l
	}
	return SequenceIndex{Offsets: offsets}
}

// Count returns the number of sequences.
func (s SequenceIndex) Count() int {
	return len(s.Offsets) - 1
}

// Total returns the arena size.
func (s SequenceIndex) Total() int {
	return s.Offsets[len(s.Offsets)-1]
}

// Span returns the arena bounds of sequence i.
func (s SequenceIndex) Span(i int) (int, int) {
	return s.Offsets[i], s.Offsets[i+1]
}

// FlattenSequences replicates each base box once per step of its delta sequence and stacks
// every delta into a single array, preserving proposal order and step order.
//
// Arguments:
//   - base: One base box per proposal.
//   - seqs: One delta sequence per proposal.
//
// Returns:
//   - []images.Box: The replicated base boxes.
//   - [][4]float32: The stacked deltas.
//   - SequenceIndex: The arena index of every proposal.
//   - error: An error if base and seqs disagree on the proposal count.
func FlattenSequences(base []images.Box, seqs [][][4]float32) ([]images.Box, [][4]float32, SequenceIndex, error) {
	if len(base) != len(seqs) {
		return nil, nil, SequenceIndex{}, errors.Errorf(
			"got %d base boxes for %d sequences", len(base), len(seqs),
		)
	}

	lengths := make([]int, len(seqs))
	for i, seq := range seqs {
		lengths[i] = len(seq)
	}
	index := NewSequenceIndex(lengths)

	boxes := make([]images.Box, index.Total())
	deltas := make([][4]float32, index.Total())
	for i, seq := range seqs {
		from, _ := index.Span(i)
		for t, d := range seq {
			boxes[from+t] = base[i]
			deltas[from+t] = d
		}
	}

	return boxes, deltas, index, nil
}

// TransformInv applies regression deltas (dx, dy, dw, dh) to boxes.
//
// Centers move by dx, dy in units of the box size and sizes scale by exp(dw), exp(dh).
// A zero delta returns the input box unchanged.
//
// Arguments:
//   - boxes: The source boxes.
//   - deltas: One delta per box.
//
// Returns:
//   - []images.Box: The predicted boxes, unclipped.
func TransformInv(boxes []images.Box, deltas [][4]float32) []images.Box {
	out := make([]images.Box, len(boxes))
	for i, b := range boxes {
		w := b.Width()
		h := b.Height()
		ctrX := b.X1 + 0.5*w
		ctrY := b.Y1 + 0.5*h

		d := deltas[i]
		predCtrX := d[0]*w + ctrX
		predCtrY := d[1]*h + ctrY
		predW := math32.Exp(d[2]) * w
		predH := math32.Exp(d[3]) * h

		out[i] = images.Box{
			X1: predCtrX - 0.5*predW,
			Y1: predCtrY - 0.5*predH,
			X2: predCtrX + 0.5*predW - 1,
			Y2: predCtrY + 0.5*predH - 1,
		}
	}
	return out
}

// ClipBoxes clips every box to [0, width-1] x [0, height-1] in place and returns the slice.
func ClipBoxes(boxes []images.Box, width, height int) []images.Box {
	for i := range boxes {
		boxes[i] = boxes[i].Clip(width, height)
	}
	return boxes
}

// UnflattenSequences splits the arena back into one box sequence per proposal.
func UnflattenSequences(boxes []images.Box, index SequenceIndex) [][]images.Box {
	out := make([][]images.Box, index.Count())
	for i := range out {
		from, to := index.Span(i)
		out[i] = boxes[from:to:to]
	}
	return out
}

// TransformSequences converts per-proposal delta sequences into clipped absolute box
// sequences. Every output sequence has the same length as its input sequence.
//
// Arguments:
//   - base: One base box per proposal in image coordinates.
//   - seqs: One delta sequence per proposal.
//   - width: The image width.
//   - height: The image height.
//
// Returns:
//   - [][]images.Box: The clipped box sequences.
//   - error: An error if base and seqs disagree on the proposal count.
func TransformSequences(base []images.Box, seqs [][][4]float32, width, height int) ([][]images.Box, error) {
	boxes, deltas, index, err := FlattenSequences(base, seqs)
	if err != nil {
		return nil, err
	}

	pred := ClipBoxes(TransformInv(boxes, deltas), width, height)

	return UnflattenSequences(pred, index), nil
}
