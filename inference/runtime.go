package inference

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/metal-classifier/inference/providers"
)

var runtimeMu sync.Mutex

// InitializeRuntime loads the onnxruntime shared library once per process.
//
// Arguments:
//   - libraryPath: The shared library, or "" to use ONNXRUNTIME_LIB or the platform default.
//
// Returns:
//   - error: An error if the library is missing or the environment cannot be created.
func InitializeRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	path, err := providers.ResolveLibraryPath(libraryPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", path)
	}

	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize onnxruntime environment")
	}
	if err := ort.SetEnvironmentLogLevel(ort.LoggingLevelWarning); err != nil {
		return errors.Wrap(err, "failed to set onnxruntime log level")
	}

	return nil
}

// DestroyRuntime releases the onnxruntime environment if it was initialized.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
