package providers

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/edge-vision/inference"
)

// OptimizationConfig contains ONNX Runtime session tuning.
type OptimizationConfig struct {
	// GraphOptimization is the graph rewrite level: disabled, basic, extended or all.
	GraphOptimization string `json:"graph_optimization" yaml:"graph_optimization"`

	// Parallel runs independent graph nodes concurrently.
	Parallel bool `json:"parallel" yaml:"parallel"`

	// IntraOpNumThreads sets threads for parallelizing ops. 0 lets ONNX Runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops. Only used when Parallel
	// is set.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
}

// DefaultOptimizationConfig returns extended graph optimization, sequential execution and half
// of the CPUs for intra-op parallelism.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		GraphOptimization: "extended",
		IntraOpNumThreads: max(1, runtime.NumCPU()/2),
	}
}

// LowLatencyConfig returns a configuration optimized for minimal and predictable latency on a
// single camera stream.
func LowLatencyConfig() OptimizationConfig {
	return OptimizationConfig{
		GraphOptimization: "all",
		IntraOpNumThreads: 1,
		InterOpNumThreads: 1,
	}
}

// Validate checks the level name and thread counts.
func (c OptimizationConfig) Validate() error {
	if _, err := graphLevel(c.GraphOptimization); err != nil {
		return err
	}
	if c.IntraOpNumThreads < 0 || c.InterOpNumThreads < 0 {
		return errors.Wrapf(inference.ErrInvalidArgument, "negative thread count %d/%d", c.IntraOpNumThreads, c.InterOpNumThreads)
	}
	return nil
}

func graphLevel(name string) (ort.GraphOptimizationLevel, error) {
	switch name {
	case "disabled":
		return ort.GraphOptimizationLevelDisableAll, nil
	case "basic":
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "extended", "":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case "all":
		return ort.GraphOptimizationLevelEnableAll, nil
	}
	return 0, errors.Wrapf(inference.ErrInvalidArgument, "graph optimization %q", name)
}

// executionMode picks parallel execution across graph branches when Parallel is set.
func (c OptimizationConfig) executionMode() ort.ExecutionMode {
	if c.Parallel {
		return ort.ExecutionModeParallel
	}
	return ort.ExecutionModeSequential
}

func (c OptimizationConfig) apply(options *ort.SessionOptions) error {
	level, err := graphLevel(c.GraphOptimization)
	if err != nil {
		return err
	}
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		return errors.Wrap(err, "graph optimization level")
	}
	if err := options.SetExecutionMode(c.executionMode()); err != nil {
		return errors.Wrap(err, "execution mode")
	}
	if err := options.SetIntraOpNumThreads(c.IntraOpNumThreads); err != nil {
		return errors.Wrap(err, "intra-op threads")
	}
	if c.Parallel {
		if err := options.SetInterOpNumThreads(c.InterOpNumThreads); err != nil {
			return errors.Wrap(err, "inter-op threads")
		}
	}
	return nil
}
