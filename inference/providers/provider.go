// Package providers - Execution providers and sessions for ONNX Runtime.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend names an ONNX Runtime execution provider.
type ProviderBackend string

const (
	// CPUProviderBackend uses the default ONNX Runtime CPU kernels.
	CPUProviderBackend ProviderBackend = "cpu"
)

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend returns the backend identifier.
	Backend() ProviderBackend
	// Options returns the provider-specific options.
	Options() ProviderOptions
	// Apply registers the provider on a set of session options.
	Apply(options *ort.SessionOptions) error
}

// Config selects and configures an execution provider.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// LibraryPath overrides the location of the ONNX Runtime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path" mapstructure:"library_path"`

	// Optimization controls graph optimization and threading.
	Optimization OptimizationConfig `json:"optimization" yaml:"optimization" mapstructure:"optimization"`

	// Backend specific options, only the one matching Backend is read.
	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"     mapstructure:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"   mapstructure:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino" mapstructure:"openvino"`
}

// DefaultConfig returns a CPU configuration with default optimization settings.
func DefaultConfig() Config {
	return Config{
		Backend:      CPUProviderBackend,
		Optimization: DefaultOptimizationConfig(),
	}
}

// NewProvider creates a new provider based on the required backend.
//
// Arguments:
//   - config: The provider configuration.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the backend is unknown.
func NewProvider(config Config) (ExecutionProvider, error) {
	switch config.Backend {
	case CPUProviderBackend, "":
		return NewCPUProvider(), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(config.CUDA), nil
	case CoreMLProviderBackend:
		return NewCoreMLProvider(config.CoreML), nil
	case OpenVINOProviderBackend:
		return NewOpenVINOProvider(config.OpenVINO), nil
	default:
		return nil, errors.Errorf("no matching provider backend registered: %s", config.Backend)
	}
}
