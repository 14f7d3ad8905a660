// Package providers - ONNX Runtime execution providers and session options.
package providers

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
)

// Backend names an ONNX Runtime execution provider.
type Backend string

const (
	// CPU is the default ONNX Runtime provider. It needs no registration.
	CPU Backend = "cpu"
	// CUDA uses NVIDIA CUDA for GPU acceleration.
	CUDA Backend = "cuda"
	// TensorRT uses NVIDIA TensorRT for optimized inference.
	TensorRT Backend = "tensorrt"
	// CoreML uses Apple CoreML for macOS and iOS acceleration.
	CoreML Backend = "coreml"
	// OpenVINO uses Intel OpenVINO for inference optimization.
	OpenVINO Backend = "openvino"
)

// Backends lists every supported provider.
var Backends = []Backend{CPU, CUDA, TensorRT, CoreML, OpenVINO}

// ParseBackend validates a provider name from configuration.
func ParseBackend(name string) (Backend, error) {
	for _, b := range Backends {
		if string(b) == name {
			return b, nil
		}
	}
	return "", errors.Wrapf(inference.ErrUnsupported, "execution provider %q", name)
}

// Provider is one execution provider entry of a session. Providers are registered in list
// order; ONNX Runtime assigns each graph node to the first provider that supports it.
type Provider struct {
	// Backend selects the provider.
	Backend Backend `json:"backend" yaml:"backend"`

	// Required fails session creation when the provider cannot be registered. Optional
	// providers are skipped with a warning.
	Required bool `json:"required" yaml:"required"`

	// CUDA holds the options of a CUDA provider.
	CUDA *CUDAOptions `json:"cuda,omitempty" yaml:"cuda,omitempty"`

	// CoreML holds the options of a CoreML provider.
	CoreML *CoreMLOptions `json:"coreml,omitempty" yaml:"coreml,omitempty"`

	// OpenVINO holds the options of an OpenVINO provider.
	OpenVINO *OpenVINOOptions `json:"openvino,omitempty" yaml:"openvino,omitempty"`

	// Options holds raw provider options, merged over the typed ones. TensorRT is configured
	// only through it.
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Config is everything the ONNX engine needs to build a session.
type Config struct {
	// Library is the path of the ONNX Runtime shared library. Empty means SharedLibPath().
	Library string `json:"library" yaml:"library"`

	// Providers are registered in order. An empty list runs on the CPU provider.
	Providers []Provider `json:"providers" yaml:"providers"`

	// Optimization tunes the session.
	Optimization OptimizationConfig `json:"optimization" yaml:"optimization"`
}

// DefaultConfig returns a CPU only configuration with the default optimization.
func DefaultConfig() Config {
	return Config{
		Optimization: DefaultOptimizationConfig(),
	}
}

// Validate checks the provider list.
func (c Config) Validate() error {
	for i, p := range c.Providers {
		if _, err := ParseBackend(string(p.Backend)); err != nil {
			return errors.Wrapf(err, "provider %d", i)
		}
	}
	return c.Optimization.Validate()
}

// merge copies raw over typed options.
func merge(typed, raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return typed
	}
	if typed == nil {
		typed = make(map[string]string, len(raw))
	}
	for k, v := range raw {
		typed[k] = v
	}
	return typed
}
