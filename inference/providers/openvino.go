package providers

import "strconv"

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type (CPU, GPU, NPU, or a HETERO/MULTI/AUTO list).
	DeviceType string `json:"deviceType"           yaml:"deviceType"`
	// Inference precision: FP32, FP16 or ACCURACY. Empty uses the device default.
	Precision string `json:"precision"            yaml:"precision"`
	// Overrides the number of inference threads.
	NumOfThreads int `json:"numOfThreads"         yaml:"numOfThreads"`
	// Overrides the number of inference streams.
	NumStreams int `json:"numStreams"           yaml:"numStreams"`
	// Rewrite dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes"`
	// Directory where compiled blobs are cached between runs.
	CacheDir string `json:"cacheDir"             yaml:"cacheDir"`
}

// Map converts the options to ONNX Runtime provider option keys. Unset options are left out.
func (o OpenVINOOptions) Map() map[string]string {
	m := map[string]string{}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		m["num_streams"] = strconv.Itoa(o.NumStreams)
	}
	if o.DisableDynamicShapes {
		m["disable_dynamic_shapes"] = "true"
	}
	if o.CacheDir != "" {
		m["cache_dir"] = o.CacheDir
	}
	return m
}
