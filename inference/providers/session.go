package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/logger"
)

// NewSessionOptions builds ONNX Runtime session options from c: optimization first, then the
// execution providers in list order.
//
// Optional providers that fail to register are skipped with a warning so the session falls back
// to the providers after them, ending with the CPU.
//
// Arguments:
//   - c: The configuration.
//
// Returns:
//   - *ort.SessionOptions: The options. The caller destroys them once the session exists.
//   - error: An error if an option is rejected or a required provider cannot be registered.
//
// Example:
//
// ```go
//
//	options, err := providers.NewSessionOptions(providers.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer options.Destroy()
//
// ```
func NewSessionOptions(c Config) (*ort.SessionOptions, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrapf(inference.ErrBackend, "create session options: %v", err)
	}
	if err := c.Optimization.apply(options); err != nil {
		options.Destroy()
		return nil, errors.Wrapf(inference.ErrBackend, "session options: %v", err)
	}
	for _, p := range c.Providers {
		err := appendProvider(options, p)
		switch {
		case err == nil:
			logger.Log().Debug("execution provider registered", zap.String("provider", string(p.Backend)))
		case p.Required:
			options.Destroy()
			return nil, errors.Wrapf(inference.ErrUnsupported, "provider %s: %v", p.Backend, err)
		default:
			logger.Log().Warn("execution provider skipped", zap.String("provider", string(p.Backend)), zap.Error(err))
		}
	}
	return options, nil
}

func appendProvider(options *ort.SessionOptions, p Provider) error {
	switch p.Backend {
	case CPU:
		return nil
	case CUDA:
		var typed CUDAOptions
		if p.CUDA != nil {
			typed = *p.CUDA
		}
		cuda, err := typed.ToNativeProviderOptions(p.Options)
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		return options.AppendExecutionProviderCUDA(cuda)
	case TensorRT:
		trt, err := ort.NewTensorRTProviderOptions()
		if err != nil {
			return err
		}
		defer trt.Destroy()
		if len(p.Options) > 0 {
			if err := trt.Update(p.Options); err != nil {
				return err
			}
		}
		return options.AppendExecutionProviderTensorRT(trt)
	case CoreML:
		var typed CoreMLOptions
		if p.CoreML != nil {
			typed = *p.CoreML
		}
		return options.AppendExecutionProviderCoreML(typed.Flags())
	case OpenVINO:
		var typed OpenVINOOptions
		if p.OpenVINO != nil {
			typed = *p.OpenVINO
		}
		return options.AppendExecutionProviderOpenVINO(merge(typed.Map(), p.Options))
	}
	return errors.Wrapf(inference.ErrUnsupported, "execution provider %q", p.Backend)
}
