package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// CUDAOptions contains arguments for the CUDA provider. Zero values keep the ONNX Runtime
// defaults.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID"              yaml:"deviceID"`
	// The size limit of the device memory arena in bytes. This size limit is only for the execution
	// provider's arena. The total device memory usage may be higher.
	GPUMemLimit int64 `json:"gpuMemLimit"           yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena: kNextPowerOfTwo or kSameAsRequested.
	ArenaExtendStrategy string `json:"arenaExtendStrategy"   yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms: EXHAUSTIVE, HEURISTIC or DEFAULT.
	CudnnConvAlgoSearch string `json:"cudnnConvAlgoSearch"   yaml:"cudnnConvAlgoSearch"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream"`
	// Capture the graph with CUDA Graphs. Requires static input shapes.
	EnableCudaGraph bool `json:"enableCudaGraph"       yaml:"enableCudaGraph"`
	// TF32 math on Ampere and later tensor cores.
	UseTF32 bool `json:"useTF32"               yaml:"useTF32"`
	// If this option is enabled, the execution provider prefers NHWC operators over NCHW.
	PreferNHWC bool `json:"preferNHWC"            yaml:"preferNHWC"`
}

// Map converts the options to ONNX Runtime provider option keys.
func (o CUDAOptions) Map() map[string]string {
	m := map[string]string{
		"device_id": strconv.Itoa(o.DeviceID),
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
	if o.DoCopyInDefaultStream {
		m["do_copy_in_default_stream"] = "1"
	}
	if o.EnableCudaGraph {
		m["enable_cuda_graph"] = "1"
	}
	if o.UseTF32 {
		m["use_tf32"] = "1"
	}
	if o.PreferNHWC {
		m["prefer_nhwc"] = "1"
	}
	return m
}

// ToNativeProviderOptions converts the options to CUDA provider options. The caller destroys
// the result.
//
// Arguments:
//   - raw: Extra option keys merged over the typed ones.
//
// Returns:
//   - *ort.CUDAProviderOptions: The native options.
//   - error: An error if ONNX Runtime rejects an option.
func (o CUDAOptions) ToNativeProviderOptions(raw map[string]string) (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create CUDA options")
	}
	if err := opts.Update(merge(o.Map(), raw)); err != nil {
		opts.Destroy()
		return nil, errors.Wrap(err, "update CUDA options")
	}
	return opts, nil
}
