// Package providers - ONNX Runtime optimization settings.
package providers

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Graph optimization levels accepted by OptimizationConfig.
const (
	GraphOptimizationDisabled = "disabled"
	GraphOptimizationBasic    = "basic"
	GraphOptimizationExtended = "extended"
	GraphOptimizationAll      = "all"
)

// OptimizationConfig contains ONNX Runtime optimization settings.
type OptimizationConfig struct {
	// GraphOptimization is one of disabled, basic, extended or all.
	GraphOptimization string `json:"graph_optimization" yaml:"graph_optimization" mapstructure:"graph_optimization"`

	// ParallelExecution runs independent graph nodes concurrently.
	ParallelExecution bool `json:"parallel_execution" yaml:"parallel_execution" mapstructure:"parallel_execution"`

	// IntraOpNumThreads sets threads for parallelizing ops, 0 lets ONNX Runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads" mapstructure:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops, 0 lets ONNX Runtime decide.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads" mapstructure:"inter_op_num_threads"`
}

// DefaultOptimizationConfig returns sequential execution with half the cores given to
// intra-op parallelism.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		GraphOptimization: GraphOptimizationExtended,
		ParallelExecution: false,
		IntraOpNumThreads: max(1, runtime.NumCPU()/2),
		InterOpNumThreads: 1,
	}
}

// graphOptimizationLevel maps the configured name to the runtime level.
func (c OptimizationConfig) graphOptimizationLevel() (ort.GraphOptimizationLevel, error) {
	switch c.GraphOptimization {
	case GraphOptimizationDisabled:
		return ort.GraphOptimizationLevelDisableAll, nil
	case GraphOptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic, nil
	case GraphOptimizationExtended, "":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case GraphOptimizationAll:
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, errors.Errorf("unknown graph optimization level %q", c.GraphOptimization)
	}
}

// OptimizedSessionOptions builds session options from the optimization config and registers
// the execution provider.
//
// Arguments:
//   - config: Optimization configuration to apply.
//   - provider: The execution provider to register.
//
// Returns:
//   - *ort.SessionOptions: Configured session options. The caller must destroy them.
//   - error: Configuration error if any.
func OptimizedSessionOptions(config OptimizationConfig, provider ExecutionProvider) (*ort.SessionOptions, error) {
	level, err := config.graphOptimizationLevel()
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	var mode ort.ExecutionMode = ort.ExecutionModeSequential
	if config.ParallelExecution {
		mode = ort.ExecutionModeParallel
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"graph optimization level", func() error { return options.SetGraphOptimizationLevel(level) }},
		{"execution mode", func() error { return options.SetExecutionMode(mode) }},
		{"intra-op threads", func() error { return options.SetIntraOpNumThreads(config.IntraOpNumThreads) }},
		{"inter-op threads", func() error { return options.SetInterOpNumThreads(config.InterOpNumThreads) }},
		{"execution provider", func() error { return provider.Apply(options) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			options.Destroy()
			return nil, errors.Wrapf(err, "set %s", step.name)
		}
	}

	return options, nil
}
