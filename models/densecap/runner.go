package densecap

import (
	"context"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/nvr-ai/go-densecap/models/postprocess"
	"github.com/nvr-ai/go-densecap/profiler"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Stage timer names.
const (
	TimerDetect = "im_detect"
	TimerMisc   = "misc"
)

// ImageEntry is one image to caption.
type ImageEntry struct {
	ID   int
	Path string
	// Proposals in image coordinates, ground truth excluded.
	Proposals []images.Box
}

// ImageDB lists the images of a run.
type ImageDB interface {
	Name() string
	Len() int
	Entry(i int) (ImageEntry, error)
}

// Evaluator consumes the results of a complete run.
type Evaluator interface {
	Evaluate(ctx context.Context, db ImageDB, results []postprocess.ImageResult, outputDir string) error
}

// LoadFunc reads an image from disk.
type LoadFunc func(path string) (*images.Pixels, error)

// RunnerConfig configures a test run.
type RunnerConfig struct {
	Aggregate postprocess.AggregateConfig
	// Directory receiving the result file, nothing is written when empty.
	OutputDir string
}

// Runner captions every image of an ImageDB.
type Runner struct {
	detector  *Detector
	vocab     postprocess.Captioner
	config    RunnerConfig
	load      LoadFunc
	evaluator Evaluator
	timers    *profiler.Profiler
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithLoader replaces the image loader.
func WithLoader(load LoadFunc) RunnerOption {
	return func(r *Runner) { r.load = load }
}

// WithEvaluator hands the final results to an evaluator.
func WithEvaluator(e Evaluator) RunnerOption {
	return func(r *Runner) { r.evaluator = e }
}

// NewRunner creates a runner.
//
// Arguments:
//   - detector: The per-image detector.
//   - vocab: Renders captions.
//   - config: The runner configuration.
//   - opts: Optional loader and evaluator.
//
// Returns:
//   - *Runner: The runner.
func NewRunner(detector *Detector, vocab postprocess.Captioner, config RunnerConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		detector: detector,
		vocab:    vocab,
		config:   config,
		load:     images.Load,
		timers:   profiler.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timers returns the stage timers.
func (r *Runner) Timers() *profiler.Profiler {
	return r.timers
}

// Run detects, captions and aggregates every image in order, then persists the results.
// The first failing image aborts the run.
//
// Arguments:
//   - ctx: Cancels the run.
//   - db: The images.
//
// Returns:
//   - []postprocess.ImageResult: One result per image.
//   - error: An error if an image fails or the results cannot be written.
func (r *Runner) Run(ctx context.Context, db ImageDB) ([]postprocess.ImageResult, error) {
	detect := r.timers.Timer(TimerDetect)
	misc := r.timers.Timer(TimerMisc)

	total := db.Len()
	results := make([]postprocess.ImageResult, 0, total)

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry, err := db.Entry(i)
		if err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
		im, err := r.load(entry.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "load image %d", entry.ID)
		}

		detect.Tic()
		regions, err := r.detector.Detect(ctx, im, entry.Proposals)
		if err != nil {
			return nil, errors.Wrapf(err, "detect image %d (%s)", entry.ID, entry.Path)
		}
		detect.Toc()

		misc.Tic()
		dets, err := postprocess.Aggregate(entry.ID, regions, r.vocab, r.config.Aggregate)
		if err != nil {
			return nil, errors.Wrapf(err, "aggregate image %d", entry.ID)
		}
		misc.Toc()

		results = append(results, postprocess.ImageResult{
			ImageID:          entry.ID,
			ImagePath:        entry.Path,
			CaptionLocations: dets,
		})

		log.Info().
			Int("image", i+1).
			Int("total", total).
			Int("regions", len(dets)).
			Dur(TimerDetect, detect.Average()).
			Dur(TimerMisc, misc.Average()).
			Msg("im_detect")
	}

	if r.config.OutputDir != "" {
		path, err := postprocess.WriteResults(r.config.OutputDir, results)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Int("images", len(results)).Msg("results written")
	}

	if r.evaluator != nil {
		if err := r.evaluator.Evaluate(ctx, db, results, r.config.OutputDir); err != nil {
			return nil, errors.Wrap(err, "evaluate")
		}
	}

	log.Info().
		Str("db", db.Name()).
		EmbedObject(r.timers).
		EmbedObject(profiler.ReadMemory()).
		Msg("run complete")

	return results, nil
}
