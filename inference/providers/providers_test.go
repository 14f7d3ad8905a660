package providers

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/edge-vision/inference"
)

func TestParseBackend(t *testing.T) {
	for _, b := range Backends {
		got, err := ParseBackend(string(b))
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
	_, err := ParseBackend("dnnl")
	assert.True(t, errors.Is(err, inference.ErrUnsupported))
}

func TestCUDAOptions(t *testing.T) {
	assert.Equal(t, map[string]string{"device_id": "0"}, CUDAOptions{}.Map())

	opts := CUDAOptions{
		DeviceID:            1,
		GPUMemLimit:         2 << 30,
		ArenaExtendStrategy: "kSameAsRequested",
		CudnnConvAlgoSearch: "HEURISTIC",
		UseTF32:             true,
	}
	assert.Equal(t, map[string]string{
		"device_id":              "1",
		"gpu_mem_limit":          "2147483648",
		"arena_extend_strategy":  "kSameAsRequested",
		"cudnn_conv_algo_search": "HEURISTIC",
		"use_tf32":               "1",
	}, opts.Map())

	merged := merge(opts.Map(), map[string]string{"device_id": "3", "tunable_op_enable": "1"})
	assert.Equal(t, "3", merged["device_id"])
	assert.Equal(t, "1", merged["tunable_op_enable"])
}

func TestCoreMLFlags(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts CoreMLOptions
		want uint32
	}{
		{name: "default", want: 0},
		{name: "cpu only", opts: CoreMLOptions{MLComputeUnits: "CPUOnly"}, want: 0x001},
		{name: "ane", opts: CoreMLOptions{MLComputeUnits: "CPUAndNeuralEngine"}, want: 0x004},
		{
			name: "program static",
			opts: CoreMLOptions{MLProgram: true, RequireStaticInputShapes: true, EnableOnSubgraphs: true},
			want: 0x010 | 0x008 | 0x002,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.opts.Flags())
		})
	}
}

func TestOpenVINOOptions(t *testing.T) {
	assert.Empty(t, OpenVINOOptions{}.Map())
	assert.Equal(t, map[string]string{
		"device_type":    "GPU",
		"precision":      "FP16",
		"num_of_threads": "4",
		"cache_dir":      "/tmp/ov",
	}, OpenVINOOptions{DeviceType: "GPU", Precision: "FP16", NumOfThreads: 4, CacheDir: "/tmp/ov"}.Map())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Optimization: LowLatencyConfig()}.Validate())

	c := DefaultConfig()
	c.Providers = []Provider{{Backend: CUDA}, {Backend: "npu"}}
	assert.True(t, errors.Is(c.Validate(), inference.ErrUnsupported))

	c = DefaultConfig()
	c.Optimization.GraphOptimization = "aggressive"
	assert.True(t, errors.Is(c.Validate(), inference.ErrInvalidArgument))

	c = DefaultConfig()
	c.Optimization.IntraOpNumThreads = -1
	assert.True(t, errors.Is(c.Validate(), inference.ErrInvalidArgument))
}

func TestOptimizationModes(t *testing.T) {
	c := DefaultOptimizationConfig()
	var mode ort.ExecutionMode = c.executionMode()
	assert.Equal(t, ort.ExecutionMode(ort.ExecutionModeSequential), mode)
	c.Parallel = true
	assert.Equal(t, ort.ExecutionMode(ort.ExecutionModeParallel), c.executionMode())

	for name, want := range map[string]ort.GraphOptimizationLevel{
		"disabled": ort.GraphOptimizationLevelDisableAll,
		"basic":    ort.GraphOptimizationLevelEnableBasic,
		"":         ort.GraphOptimizationLevelEnableExtended,
		"all":      ort.GraphOptimizationLevelEnableAll,
	} {
		got, err := graphLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestSharedLibPath(t *testing.T) {
	assert.Equal(t, "./third_party/onnxruntime.so", libraryFor("linux", "amd64"))
	assert.Equal(t, "./third_party/onnxruntime_arm64.so", libraryFor("linux", "arm64"))
	assert.Equal(t, "./third_party/onnxruntime.dll", libraryFor("windows", "amd64"))

	t.Setenv(LibraryEnv, "/opt/ort/libonnxruntime.so")
	assert.Equal(t, "/opt/ort/libonnxruntime.so", SharedLibPath())
}
