// Package providers - Execution provider selection for ONNX Runtime sessions.
package providers

import (
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend names an ONNX Runtime execution provider.
type ProviderBackend string

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider attaches a backend to session options.
type ExecutionProvider interface {
	// Backend returns the provider backend.
	Backend() ProviderBackend
	// Options returns the provider-specific options.
	Options() ProviderOptions
	// Apply appends the provider to the session options.
	Apply(options *ort.SessionOptions) error
}

// Backends lists every supported backend.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
}

// ParseBackend resolves a case-insensitive backend name; "" selects the CPU.
//
// Arguments:
//   - name: The backend name.
//
// Returns:
//   - ProviderBackend: The backend.
//   - error: An error if the name is unknown.
func ParseBackend(name string) (ProviderBackend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CPUProviderBackend, nil
	}
	for _, b := range Backends {
		if string(b) == name {
			return b, nil
		}
	}
	return "", errors.Errorf("unknown execution provider %q", name)
}

// NewProvider creates an execution provider from its options.
//
// Arguments:
//   - options: One of CPUOptions, CUDAOptions, CoreMLOptions or OpenVINOOptions; nil selects the CPU.
//
// Returns:
//   - ExecutionProvider: The provider.
//   - error: An error if the options type is unknown.
func NewProvider(options ProviderOptions) (ExecutionProvider, error) {
	switch o := options.(type) {
	case nil:
		return &CPUProvider{options: DefaultCPUOptions()}, nil
	case CPUOptions:
		return &CPUProvider{options: o}, nil
	case CUDAOptions:
		return &CUDAProvider{options: o}, nil
	case CoreMLOptions:
		return &CoreMLProvider{options: o}, nil
	case OpenVINOOptions:
		return &OpenVINOProvider{options: o}, nil
	default:
		return nil, errors.Errorf("unsupported provider options %T", options)
	}
}

// NewProviderForBackend creates a provider with default options for a backend.
//
// Arguments:
//   - backend: The backend name.
//   - deviceID: The accelerator index used by cuda and openvino.
//
// Returns:
//   - ExecutionProvider: The provider.
//   - error: An error if the backend is unknown.
func NewProviderForBackend(backend string, deviceID int) (ExecutionProvider, error) {
	b, err := ParseBackend(backend)
	if err != nil {
		return nil, err
	}

	switch b {
	case CUDAProviderBackend:
		o := DefaultCUDAOptions()
		o.DeviceID = deviceID
		return NewProvider(o)
	case CoreMLProviderBackend:
		return NewProvider(DefaultCoreMLOptions())
	case OpenVINOProviderBackend:
		o := DefaultOpenVINOOptions()
		if deviceID > 0 {
			o.DeviceID = deviceID
		}
		return NewProvider(o)
	default:
		return NewProvider(DefaultCPUOptions())
	}
}
