// Command densecap captions the regions of every image in a manifest or directory and writes
// generation_result.json.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-densecap/config"
	"github.com/nvr-ai/go-densecap/images"
	"github.com/nvr-ai/go-densecap/images/cv"
	"github.com/nvr-ai/go-densecap/inference"
	"github.com/nvr-ai/go-densecap/logger"
	"github.com/nvr-ai/go-densecap/models/densecap"
	"github.com/nvr-ai/go-densecap/util"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		configPath string
		manifest   string
		imageDir   string
		vocabPath  string
		outputDir  string
		resampler  string
		logLevel   string
		hasRPN     bool
		forceCPU   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&manifest, "manifest", "", "Path to a YAML image manifest with proposals")
	flag.StringVar(&imageDir, "images", "", "Directory of images to caption with the network's own proposals")
	flag.StringVar(&vocabPath, "vocab", "", "Vocabulary file, one word per line")
	flag.StringVar(&outputDir, "output-dir", "", "Output directory for generation_result.json")
	flag.StringVar(&resampler, "resampler", "", "Pyramid resampler: linear or opencv")
	flag.StringVar(&logLevel, "log-level", "", "Log level")
	flag.BoolVar(&hasRPN, "rpn", false, "The network generates its own proposals")
	flag.BoolVar(&forceCPU, "force-cpu", false, "Always run the serial NMS")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// Flags given on the command line win over the file and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "manifest":
			cfg.Manifest = manifest
		case "vocab":
			cfg.VocabPath = vocabPath
		case "output-dir":
			cfg.OutputDir = outputDir
		case "resampler":
			cfg.Resampler = resampler
		case "log-level":
			cfg.App.LogLevel = logLevel
		case "rpn":
			cfg.Detector.HasRPN = hasRPN
			cfg.Engine.Model.HasRPN = hasRPN
		case "force-cpu":
			cfg.Postprocess.NMS.ForceCPU = forceCPU
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if err := logger.InitLogger(cfg.App.LogLevel, cfg.App.Name); err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, imageDir); err != nil {
		log.Fatal().Err(err).Msg("densecap failed")
	}
}

func run(ctx context.Context, cfg *config.Config, imageDir string) error {
	db, err := openImageDB(cfg, imageDir)
	if err != nil {
		return err
	}

	vocab, err := densecap.LoadVocabulary(cfg.VocabPath)
	if err != nil {
		return err
	}

	engine, err := inference.NewEngineBuilder().
		WithProvider(cfg.Engine.Provider).
		WithModel(cfg.Engine.Model).
		Build()
	if err != nil {
		return errors.Wrap(err, "build engine")
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error().Err(err).Msg("close engine")
		}
	}()

	var (
		resampler images.Resampler = images.LinearResampler{}
		load      densecap.LoadFunc = images.Load
	)
	if cfg.Resampler == config.ResamplerOpenCV {
		resampler = cv.MatResampler{}
		load = cv.Load
	}

	detector, err := densecap.NewDetector(engine, cfg.Detector, resampler)
	if err != nil {
		return err
	}

	runner := densecap.NewRunner(detector, vocab, densecap.RunnerConfig{
		Aggregate: cfg.Postprocess.Aggregate(),
		OutputDir: cfg.OutputDir,
	}, densecap.WithLoader(load))

	log.Info().
		Str("db", db.Name()).
		Int("images", db.Len()).
		Int("vocabulary", vocab.Size()).
		Bool("has_rpn", cfg.Detector.HasRPN).
		Str("backend", string(cfg.Engine.Provider.Backend)).
		Msg("starting")

	_, err = runner.Run(ctx, db)
	return err
}

func openImageDB(cfg *config.Config, imageDir string) (densecap.ImageDB, error) {
	switch {
	case imageDir != "" && cfg.Manifest != "":
		return nil, errors.New("use either -images or -manifest")
	case imageDir != "":
		if !cfg.Detector.HasRPN {
			return nil, errors.New("-images has no proposals and requires -rpn")
		}
		return util.LoadDirectory(imageDir)
	case cfg.Manifest != "":
		return util.LoadManifest(cfg.Manifest)
	default:
		return nil, errors.New("one of -images or -manifest is required")
	}
}
