package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CoreMLProviderBackend uses Apple CoreML on darwin.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML provider flags from coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly              uint32 = 0x001
	coreMLFlagEnableOnSubgraph        uint32 = 0x002
	coreMLFlagOnlyEnableDeviceWithANE uint32 = 0x004
)

// CoreMLOptions contains arguments for the CoreML provider.
type CoreMLOptions struct {
	// CPUOnly restricts CoreML to the CPU.
	CPUOnly bool `json:"cpuOnly" yaml:"cpuOnly"`
	// EnableOnSubgraph lets CoreML run inside control flow subgraphs.
	EnableOnSubgraph bool `json:"enableOnSubgraph" yaml:"enableOnSubgraph"`
	// RequireANE only enables CoreML on devices with a Neural Engine.
	RequireANE bool `json:"requireANE" yaml:"requireANE"`
}

func (CoreMLOptions) isProviderOptions() {}

// DefaultCoreMLOptions returns the default CoreML options.
func DefaultCoreMLOptions() CoreMLOptions {
	return CoreMLOptions{}
}

// Flags returns the options as a CoreML flag word.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.CPUOnly {
		flags |= coreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraph {
		flags |= coreMLFlagEnableOnSubgraph
	}
	if o.RequireANE {
		flags |= coreMLFlagOnlyEnableDeviceWithANE
	}
	return flags
}

// CoreMLProvider implements the ExecutionProvider interface.
type CoreMLProvider struct {
	options CoreMLOptions
}

// Backend returns the backend.
func (p *CoreMLProvider) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Options returns the options.
func (p *CoreMLProvider) Options() ProviderOptions {
	return p.options
}

// Apply appends the CoreML provider to the session options.
func (p *CoreMLProvider) Apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderCoreML(p.options.Flags()); err != nil {
		return errors.Wrap(err, "failed to append CoreML provider")
	}
	return nil
}
