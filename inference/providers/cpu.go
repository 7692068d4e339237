package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CPUProviderBackend runs inference on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)

// CPUOptions contains arguments for the CPU provider.
type CPUOptions struct {
	// UseArena enables the CPU memory arena.
	UseArena bool `json:"useArena" yaml:"useArena"`
}

func (CPUOptions) isProviderOptions() {}

// DefaultCPUOptions returns the default CPU options.
func DefaultCPUOptions() CPUOptions {
	return CPUOptions{UseArena: true}
}

// CPUProvider implements the ExecutionProvider interface.
type CPUProvider struct {
	options CPUOptions
}

// Backend returns the backend.
func (p *CPUProvider) Backend() ProviderBackend {
	return CPUProviderBackend
}

// Options returns the options.
func (p *CPUProvider) Options() ProviderOptions {
	return p.options
}

// Apply configures the CPU arena; the CPU provider itself is always registered by the runtime.
func (p *CPUProvider) Apply(options *ort.SessionOptions) error {
	if err := options.SetCpuMemArena(p.options.UseArena); err != nil {
		return errors.Wrap(err, "failed to configure CPU memory arena")
	}
	return nil
}
