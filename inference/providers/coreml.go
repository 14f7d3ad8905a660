package providers

// CoreML provider flags, as defined by coreml_provider_factory.h.
const (
	coreMLUseCPUOnly       uint32 = 0x001
	coreMLEnableOnSubgraph uint32 = 0x002
	coreMLOnlyWithANE      uint32 = 0x004
	coreMLOnlyStaticShapes uint32 = 0x008
	coreMLCreateMLProgram  uint32 = 0x010
	coreMLUseCPUAndGPU     uint32 = 0x020
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Create an MLProgram format model instead of a NeuralNetwork. Requires Core ML 5 or later
	// (iOS 15+ or macOS 12+).
	MLProgram bool `json:"mlProgram"                yaml:"mlProgram"`
	// Compute units: ALL (default), CPUOnly, CPUAndGPU or CPUAndNeuralEngine.
	MLComputeUnits string `json:"mlComputeUnits"           yaml:"mlComputeUnits"`
	// Only allow the CoreML EP to take nodes with inputs that have static shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Enable the CoreML EP on subgraphs in the body of control flow operators.
	EnableOnSubgraphs bool `json:"enableOnSubgraphs"        yaml:"enableOnSubgraphs"`
}

// Flags converts the options to the flag word of AppendExecutionProviderCoreML.
func (o CoreMLOptions) Flags() uint32 {
	var f uint32
	switch o.MLComputeUnits {
	case "CPUOnly":
		f |= coreMLUseCPUOnly
	case "CPUAndGPU":
		f |= coreMLUseCPUAndGPU
	case "CPUAndNeuralEngine":
		f |= coreMLOnlyWithANE
	}
	if o.MLProgram {
		f |= coreMLCreateMLProgram
	}
	if o.RequireStaticInputShapes {
		f |= coreMLOnlyStaticShapes
	}
	if o.EnableOnSubgraphs {
		f |= coreMLEnableOnSubgraph
	}
	return f
}
