// Package config - Layered service configuration (defaults, YAML file, environment).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/metal-classifier/models/metal"
)

// Config is the complete service configuration.
type Config struct {
	Server  Server  `json:"server"  yaml:"server"`
	Model   Model   `json:"model"   yaml:"model"`
	Runtime Runtime `json:"runtime" yaml:"runtime"`
	Fetch   Fetch   `json:"fetch"   yaml:"fetch"`
	Log     Log     `json:"log"     yaml:"log"`
}

// Server configures the HTTP listener.
type Server struct {
	// Host is the interface to bind.
	Host string `json:"host" yaml:"host"`
	// Port is the TCP port to bind.
	Port int `json:"port" yaml:"port"`
	// MaxUploadBytes caps request bodies and downloaded images.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AllowOrigins is the CORS origin allow list.
	AllowOrigins []string `json:"allow_origins" yaml:"allow_origins"`
}

// Model configures the frozen classifier.
type Model struct {
	// Name selects the model implementation from the registry.
	Name string `json:"name" yaml:"name"`
	// Path is the ONNX model file.
	Path string `json:"path" yaml:"path"`
	// MetadataPath is an optional JSON file overriding shapes, names and classes.
	MetadataPath string `json:"metadata_path" yaml:"metadata_path"`
	// ImageSize is the square input edge in pixels.
	ImageSize int `json:"image_size" yaml:"image_size"`
	// Classes are the labels in model output order.
	Classes []string `json:"classes" yaml:"classes"`
	// TopK is the number of predictions returned.
	TopK int `json:"top_k" yaml:"top_k"`
	// ApplySoftmax converts raw logits to probabilities.
	ApplySoftmax bool `json:"apply_softmax" yaml:"apply_softmax"`
	// AutoOrient applies EXIF orientation before preprocessing.
	AutoOrient bool `json:"auto_orient" yaml:"auto_orient"`
	// MaxPixels rejects decoded images larger than this many pixels.
	MaxPixels int `json:"max_pixels" yaml:"max_pixels"`
}

// Runtime configures ONNX Runtime.
type Runtime struct {
	// LibraryPath points to the onnxruntime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// Provider is the execution provider backend (cpu, cuda, coreml, openvino).
	Provider string `json:"provider" yaml:"provider"`
	// PoolSize is the number of concurrent sessions.
	PoolSize int `json:"pool_size" yaml:"pool_size"`
	// IntraOpThreads parallelizes work inside graph nodes; 0 lets the runtime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes independent graph nodes; 0 lets the runtime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// DeviceID selects the accelerator for cuda and openvino.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// Warmup is the number of inference runs performed at startup.
	Warmup int `json:"warmup" yaml:"warmup"`
}

// Fetch configures image downloads for URL submissions.
type Fetch struct {
	// Timeout bounds a single download attempt.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// MaxElapsed bounds all retries of one download.
	MaxElapsed time.Duration `json:"max_elapsed" yaml:"max_elapsed"`
	// UserAgent is sent with every download.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// Log configures logging.
type Log struct {
	// Level is a logrus level name.
	Level string `json:"level" yaml:"level"`
	// Format is "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
//
// Returns:
//   - Config: The default configuration.
func Default() Config {
	return Config{
		Server: Server{
			Host:            "0.0.0.0",
			Port:            5001,
			MaxUploadBytes:  10 << 20,
			ShutdownTimeout: 10 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Model: Model{
			Name:      "metal-mobilenetv3",
			Path:      "model/metal_model.onnx",
			ImageSize: 224,
			Classes:   append([]string(nil), metal.Classes...),
			TopK:      3,
			MaxPixels: 50_000_000,
		},
		Runtime: Runtime{
			Provider: "cpu",
			PoolSize: 1,
			Warmup:   1,
		},
		Fetch: Fetch{
			Timeout:    10 * time.Second,
			MaxElapsed: 15 * time.Second,
			UserAgent:  "metal-classifier/1.0",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
//
// A ".env" file in the working directory is loaded first when present.
//
// Arguments:
//   - path: The YAML file to read, or "" to skip.
//
// Returns:
//   - Config: The resolved configuration.
//   - error: An error if the file cannot be read or a value is invalid.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "failed to load .env")
	}

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", key)
		}
		*dst = n
		return nil
	}

	str("HOST", &c.Server.Host)
	str("MODEL_PATH", &c.Model.Path)
	str("MODEL_METADATA_PATH", &c.Model.MetadataPath)
	str("ONNXRUNTIME_LIB", &c.Runtime.LibraryPath)
	str("EXECUTION_PROVIDER", &c.Runtime.Provider)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	for key, dst := range map[string]*int{
		"PORT":              &c.Server.Port,
		"SESSION_POOL_SIZE": &c.Runtime.PoolSize,
		"TOP_K":             &c.Model.TopK,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("FETCH_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "invalid FETCH_TIMEOUT")
		}
		c.Fetch.Timeout = d
	}

	if v, ok := lookup("CORS_ALLOW_ORIGINS"); ok && v != "" {
		c.Server.AllowOrigins = strings.Split(v, ",")
	}

	return nil
}

// Validate checks that the configuration can be used to start the service.
//
// Returns:
//   - error: The first problem found, or nil.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Errorf("port must be within 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.Errorf("max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}
	if c.Model.Path == "" {
		return errors.New("model path is required")
	}
	if c.Model.ImageSize <= 0 {
		return errors.Errorf("image_size must be positive, got %d", c.Model.ImageSize)
	}
	if len(c.Model.Classes) == 0 {
		return errors.New("at least one class is required")
	}
	if c.Model.TopK < 1 {
		return errors.Errorf("top_k must be at least 1, got %d", c.Model.TopK)
	}
	if c.Model.TopK > len(c.Model.Classes) {
		return errors.Errorf("top_k %d exceeds the %d configured classes", c.Model.TopK, len(c.Model.Classes))
	}
	if c.Runtime.PoolSize < 1 {
		return errors.Errorf("pool_size must be at least 1, got %d", c.Runtime.PoolSize)
	}
	switch c.Runtime.Provider {
	case "cpu", "cuda", "coreml", "openvino":
	default:
		return errors.Errorf("unknown execution provider %q", c.Runtime.Provider)
	}
	if c.Fetch.Timeout <= 0 {
		return errors.Errorf("fetch timeout must be positive, got %s", c.Fetch.Timeout)
	}
	return nil
}

// Addr returns the host:port listen address.
func (s Server) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
