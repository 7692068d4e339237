package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// OpenVINOProviderBackend uses Intel OpenVINO.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html
type OpenVINOOptions struct {
	// DeviceType is CPU, GPU or NPU.
	DeviceType string `json:"deviceType" yaml:"deviceType"`
	// DeviceID selects GPU.<id> when DeviceType is GPU.
	DeviceID int `json:"deviceID" yaml:"deviceID"`
	// Precision is FP32, FP16 or ACCURACY.
	Precision string `json:"precision" yaml:"precision"`
	// NumThreads overrides the OpenVINO thread count when positive.
	NumThreads int `json:"numThreads" yaml:"numThreads"`
	// CacheDir enables the compiled blob cache.
	CacheDir string `json:"cacheDir" yaml:"cacheDir"`
}

func (OpenVINOOptions) isProviderOptions() {}

// DefaultOpenVINOOptions returns the default OpenVINO options.
func DefaultOpenVINOOptions() OpenVINOOptions {
	return OpenVINOOptions{
		DeviceType: "CPU",
		Precision:  "FP32",
	}
}

// Map returns the options as ONNX Runtime provider keys.
func (o OpenVINOOptions) Map() map[string]string {
	device := o.DeviceType
	if device == "" {
		device = "CPU"
	}
	if device == "GPU" && o.DeviceID > 0 {
		device = "GPU." + strconv.Itoa(o.DeviceID)
	}

	m := map[string]string{"device_type": device}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumThreads > 0 {
		m["num_of_threads"] = strconv.Itoa(o.NumThreads)
	}
	if o.CacheDir != "" {
		m["cache_dir"] = o.CacheDir
	}
	return m
}

// OpenVINOProvider implements the ExecutionProvider interface.
type OpenVINOProvider struct {
	options OpenVINOOptions
}

// Backend returns the backend.
func (p *OpenVINOProvider) Backend() ProviderBackend {
	return OpenVINOProviderBackend
}

// Options returns the options.
func (p *OpenVINOProvider) Options() ProviderOptions {
	return p.options
}

// Apply appends the OpenVINO provider to the session options.
func (p *OpenVINOProvider) Apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderOpenVINO(p.options.Map()); err != nil {
		return errors.Wrap(err, "failed to append OpenVINO provider")
	}
	return nil
}
