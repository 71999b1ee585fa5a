// Package config - Application configuration loaded from YAML and DENSECAP_* environment
// variables.
package config

import (
	"runtime"
	"strings"

	"github.com/nvr-ai/go-densecap/inference"
	"github.com/nvr-ai/go-densecap/inference/providers"
	"github.com/nvr-ai/go-densecap/models/densecap"
	"github.com/nvr-ai/go-densecap/models/postprocess"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DENSECAP"

// Resampler names accepted by Config.Resampler.
const (
	ResamplerLinear = "linear"
	ResamplerOpenCV = "opencv"
)

// AppConfig holds process settings.
type AppConfig struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// EngineConfig selects the runtime and the exported graphs.
type EngineConfig struct {
	Provider providers.Config      `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model    inference.ModelConfig `json:"model" yaml:"model" mapstructure:"model"`
}

// PostprocessConfig controls which regions are emitted.
type PostprocessConfig struct {
	ScoreThresh float32               `json:"score_thresh" yaml:"score_thresh" mapstructure:"score_thresh"`
	MaxPerImage int                   `json:"max_per_image" yaml:"max_per_image" mapstructure:"max_per_image"`
	NMS         postprocess.NMSConfig `json:"nms" yaml:"nms" mapstructure:"nms"`
}

// Aggregate returns the aggregation settings.
func (c PostprocessConfig) Aggregate() postprocess.AggregateConfig {
	nms := c.NMS
	return postprocess.AggregateConfig{
		ScoreThresh: c.ScoreThresh,
		NMS:         &nms,
		MaxPerImage: c.MaxPerImage,
	}
}

// Config is the complete application configuration.
type Config struct {
	App         AppConfig               `json:"app" yaml:"app" mapstructure:"app"`
	Detector    densecap.DetectorConfig `json:"detector" yaml:"detector" mapstructure:"detector"`
	Postprocess PostprocessConfig       `json:"postprocess" yaml:"postprocess" mapstructure:"postprocess"`
	Engine      EngineConfig            `json:"engine" yaml:"engine" mapstructure:"engine"`
	// Pyramid resampler, opencv (cv2 INTER_LINEAR) or linear (pure Go, softer when shrinking).
	Resampler string `json:"resampler" yaml:"resampler" mapstructure:"resampler"`
	// One word per line, line n is token n.
	VocabPath string `json:"vocab_path" yaml:"vocab_path" mapstructure:"vocab_path"`
	// Image manifest, see util.LoadManifest.
	Manifest  string `json:"manifest" yaml:"manifest" mapstructure:"manifest"`
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// Default returns the canonical single-scale test configuration.
func Default() Config {
	model := inference.ModelConfig{Names: inference.DefaultTensorNames()}
	return Config{
		App:      AppConfig{Name: "densecap", LogLevel: "info"},
		Detector: densecap.DefaultDetectorConfig(),
		Postprocess: PostprocessConfig{
			ScoreThresh: 0.05,
			MaxPerImage: 100,
			NMS: postprocess.NMSConfig{
				IoUThreshold:      postprocess.DefaultIoUThreshold,
				ParallelThreshold: postprocess.DefaultParallelThreshold,
				NumWorkers:        runtime.NumCPU(),
			},
		},
		Engine: EngineConfig{
			Provider: providers.DefaultConfig(),
			Model:    model,
		},
		Resampler: ResamplerOpenCV,
		OutputDir: "output",
	}
}

// Validate checks settings that cannot be checked by the components themselves.
func (c *Config) Validate() error {
	if err := c.Detector.Pyramid.Validate(); err != nil {
		return err
	}
	if c.Detector.HasRPN != c.Engine.Model.HasRPN {
		return errors.New("detector.has_rpn and engine.model.has_rpn disagree")
	}
	if c.Detector.MaxSteps < 0 {
		return errors.Errorf("max_steps must be positive, got %d", c.Detector.MaxSteps)
	}
	if c.Postprocess.NMS.IoUThreshold <= 0 || c.Postprocess.NMS.IoUThreshold > 1 {
		return errors.Errorf("nms iou_threshold must be in (0, 1], got %v", c.Postprocess.NMS.IoUThreshold)
	}
	switch c.Resampler {
	case ResamplerLinear, ResamplerOpenCV:
	default:
		return errors.Errorf("unknown resampler %q", c.Resampler)
	}
	return nil
}

// envKeys lists the keys that can be overridden from the environment.
var envKeys = []string{
	"app.name",
	"app.log_level",
	"detector.pyramid.scales",
	"detector.pyramid.max_size",
	"detector.has_rpn",
	"detector.max_steps",
	"detector.reference_area",
	"postprocess.score_thresh",
	"postprocess.max_per_image",
	"postprocess.nms.iou_threshold",
	"postprocess.nms.force_cpu",
	"postprocess.nms.parallel_threshold",
	"postprocess.nms.num_workers",
	"engine.provider.backend",
	"engine.provider.library_path",
	"engine.model.proposal_model",
	"engine.model.step_model",
	"engine.model.has_rpn",
	"resampler",
	"vocab_path",
	"manifest",
	"output_dir",
}

// Load reads the configuration file at path on top of Default, then applies environment
// overrides such as DENSECAP_DETECTOR_MAX_STEPS.
//
// Arguments:
//   - path: A YAML file, empty to use defaults and the environment only.
//
// Returns:
//   - *Config: The configuration.
//   - error: An error if the file cannot be read or the result is invalid.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "bind %s", key)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg := Default()
	if v.IsSet("detector.pyramid.scales") {
		cfg.Detector.Pyramid.Scales = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	// Either section may enable the RPN.
	rpn := cfg.Detector.HasRPN || cfg.Engine.Model.HasRPN
	cfg.Detector.HasRPN, cfg.Engine.Model.HasRPN = rpn, rpn

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

