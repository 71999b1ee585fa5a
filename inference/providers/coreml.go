// Package providers - CoreML based execution provider.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML flags, see coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly              uint32 = 0x001
	coreMLFlagEnableOnSubgraph        uint32 = 0x002
	coreMLFlagOnlyEnableDeviceWithANE uint32 = 0x004
	coreMLFlagOnlyAllowStaticShapes   uint32 = 0x008
	coreMLFlagCreateMLProgram         uint32 = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpu_only" yaml:"cpu_only" mapstructure:"cpu_only"`
	// Run CoreML on subgraphs in the body of control flow operators.
	EnableOnSubgraphs bool `json:"enable_on_subgraphs" yaml:"enable_on_subgraphs" mapstructure:"enable_on_subgraphs"`
	// Only enable CoreML on devices with an Apple Neural Engine.
	RequireANE bool `json:"require_ane" yaml:"require_ane" mapstructure:"require_ane"`
	// Only allow nodes with static input shapes. The decode step model has a dynamic proposal
	// dimension, so this is usually left off.
	RequireStaticInputShapes bool `json:"require_static_input_shapes" yaml:"require_static_input_shapes" mapstructure:"require_static_input_shapes"`
	// Create an MLProgram format model instead of a NeuralNetwork one.
	MLProgram bool `json:"ml_program" yaml:"ml_program" mapstructure:"ml_program"`
}

func (CoreMLOptions) isProviderOptions() {}

// flags packs the options into the CoreML provider bit field.
func (o CoreMLOptions) flags() uint32 {
	var f uint32
	if o.CPUOnly {
		f |= coreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		f |= coreMLFlagEnableOnSubgraph
	}
	if o.RequireANE {
		f |= coreMLFlagOnlyEnableDeviceWithANE
	}
	if o.RequireStaticInputShapes {
		f |= coreMLFlagOnlyAllowStaticShapes
	}
	if o.MLProgram {
		f |= coreMLFlagCreateMLProgram
	}
	return f
}

// CoreMLProvider implements the ExecutionProvider interface.
type CoreMLProvider struct {
	options CoreMLOptions
}

// NewCoreMLProvider creates a new CoreML provider.
func NewCoreMLProvider(options CoreMLOptions) *CoreMLProvider {
	return &CoreMLProvider{options: options}
}

// Backend returns the backend of the CoreML provider.
func (p *CoreMLProvider) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Options returns the options of the CoreML provider.
func (p *CoreMLProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers CoreML on the session options.
func (p *CoreMLProvider) Apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderCoreML(p.options.flags()); err != nil {
		return errors.Wrap(err, "enable CoreML")
	}
	return nil
}
