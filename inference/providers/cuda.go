// Package providers - CUDA based execution provider.
package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"device_id" yaml:"device_id" mapstructure:"device_id"`
	// The size limit of the device memory arena in bytes, 0 for unlimited.
	GPUMemLimit int64 `json:"gpu_mem_limit" yaml:"gpu_mem_limit" mapstructure:"gpu_mem_limit"`
	// The strategy for extending the device memory arena: kNextPowerOfTwo or kSameAsRequested.
	ArenaExtendStrategy string `json:"arena_extend_strategy" yaml:"arena_extend_strategy" mapstructure:"arena_extend_strategy"`
	// The type of search done for cuDNN convolution algorithms: EXHAUSTIVE, HEURISTIC or DEFAULT.
	CudnnConvAlgoSearch string `json:"cudnn_conv_algo_search" yaml:"cudnn_conv_algo_search" mapstructure:"cudnn_conv_algo_search"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"do_copy_in_default_stream" yaml:"do_copy_in_default_stream" mapstructure:"do_copy_in_default_stream"`
	// Allow TF32 math on Ampere and newer GPUs.
	UseTF32 bool `json:"use_tf32" yaml:"use_tf32" mapstructure:"use_tf32"`
	// Prefer NHWC operators over NCHW.
	PreferNHWC bool `json:"prefer_nhwc" yaml:"prefer_nhwc" mapstructure:"prefer_nhwc"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (CUDAOptions) isProviderOptions() {}

// settings returns the ONNX Runtime option map, leaving unset fields at their defaults.
func (o CUDAOptions) settings() map[string]string {
	m := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"do_copy_in_default_stream": boolFlag(o.DoCopyInDefaultStream),
		"use_tf32":                  boolFlag(o.UseTF32),
		"prefer_nhwc":               boolFlag(o.PreferNHWC),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		m["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}
	return m
}

// CUDAProvider implements the ExecutionProvider interface.
type CUDAProvider struct {
	options CUDAOptions
}

// NewCUDAProvider creates a new CUDA provider.
func NewCUDAProvider(args CUDAOptions) *CUDAProvider {
	return &CUDAProvider{options: args}
}

// Backend returns the backend of the CUDA provider.
func (p *CUDAProvider) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Options returns the options of the CUDA provider.
func (p *CUDAProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers CUDA on the session options.
func (p *CUDAProvider) Apply(options *ort.SessionOptions) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return errors.Wrap(err, "create CUDA provider options")
	}
	defer cuda.Destroy()

	if err := cuda.Update(p.options.settings()); err != nil {
		return errors.Wrap(err, "update CUDA provider options")
	}
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return errors.Wrap(err, "enable CUDA")
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
