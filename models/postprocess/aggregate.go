package postprocess

import (
	"github.com/nvr-ai/go-densecap/images"
	"github.com/pkg/errors"
)

// ForegroundClass is the score column of the single foreground category.
const ForegroundClass = 1

// Captioner renders token ids as text.
type Captioner interface {
	Sentence(tokens []int) string
}

// AggregateConfig controls which captioned regions are emitted for an image.
type AggregateConfig struct {
	// Minimum foreground score, exclusive.
	ScoreThresh float32
	// Suppression applied to the last box of every surviving sequence.
	NMS *NMSConfig
	// Upper bound on emitted regions, 0 for no bound.
	MaxPerImage int
}

// Regions carries the per-proposal outputs of one decoded image.
type Regions struct {
	// Per proposal, per category scores. Column 0 is background.
	Scores [][]float32
	// Per proposal clipped box sequences, one box per token.
	Boxes [][]images.Box
	// Per proposal token sequences.
	Captions [][]int
	// Per proposal accumulated log-probabilities.
	LogProbs []float64
}

// Validate checks that every per-proposal slice has the same length.
func (r *Regions) Validate() error {
	n := len(r.Scores)
	if len(r.Boxes) != n || len(r.Captions) != n || len(r.LogProbs) != n {
		return errors.Errorf(
			"region outputs disagree: %d scores, %d box sequences, %d captions, %d log-probs",
			n, len(r.Boxes), len(r.Captions), len(r.LogProbs),
		)
	}
	for i := 0; i < n; i++ {
		if len(r.Boxes[i]) != len(r.Captions[i]) {
			return errors.Errorf(
				"proposal %d has %d boxes for %d tokens", i, len(r.Boxes[i]), len(r.Captions[i]),
			)
		}
		if len(r.Scores[i]) <= ForegroundClass {
			return errors.Errorf("proposal %d has no foreground score", i)
		}
	}
	return nil
}

// Aggregate filters decoded regions by foreground score, suppresses duplicates on their final
// box and builds one Detection per survivor, highest score first.
//
// Arguments:
//   - imageID: The image identifier stamped on every detection.
//   - regions: The decoded regions.
//   - vocab: Renders captions.
//   - config: Filtering configuration.
//
// Returns:
//   - []Detection: The surviving detections.
//   - error: An error if the region outputs are inconsistent.
func Aggregate(imageID int, regions *Regions, vocab Captioner, config AggregateConfig) ([]Detection, error) {
	if err := regions.Validate(); err != nil {
		return nil, err
	}

	candidates := make([]Result, 0, len(regions.Scores))
	proposals := make([]int, 0, len(regions.Scores))
	for i, scores := range regions.Scores {
		score := scores[ForegroundClass]
		if score <= config.ScoreThresh || len(regions.Boxes[i]) == 0 {
			continue
		}
		seq := regions.Boxes[i]
		candidates = append(candidates, Result{Box: seq[len(seq)-1], Score: score, Class: ForegroundClass})
		proposals = append(proposals, i)
	}

	nms := config.NMS
	if nms == nil {
		nms = DefaultNMSConfig(DefaultIoUThreshold)
	}
	keep := Suppress(candidates, nms)
	if config.MaxPerImage > 0 && len(keep) > config.MaxPerImage {
		keep = keep[:config.MaxPerImage]
	}

	detections := make([]Detection, 0, len(keep))
	for _, k := range keep {
		p := proposals[k]
		seq := regions.Boxes[p]

		locations := make([][4]float32, len(seq))
		for t, b := range seq {
			locations[t] = b.Array()
		}

		detections = append(detections, Detection{
			ImageID:     imageID,
			Caption:     vocab.Sentence(regions.Captions[p]),
			LocationSeq: locations,
			Location:    locations[len(locations)-1],
			Score:       candidates[k].Score,
			LogProb:     regions.LogProbs[p],
			Tokens:      regions.Captions[p],
		})
	}

	return detections, nil
}
