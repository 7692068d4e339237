package providers

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// LibraryEnv is the environment variable that overrides the shared library path.
const LibraryEnv = "ONNXRUNTIME_LIB"

// GetSharedLibPath returns the conventional onnxruntime shared library path for this platform.
//
// Returns:
//   - string: The path relative to the working directory.
//   - error: An error if the platform has no known library name.
func GetSharedLibPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return filepath.Join("third_party", "onnxruntime.dll"), nil
		}
	case "darwin":
		return filepath.Join("third_party", "libonnxruntime.dylib"), nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return filepath.Join("third_party", "onnxruntime_arm64.so"), nil
		}
		return filepath.Join("third_party", "onnxruntime.so"), nil
	}
	return "", errors.Errorf("no onnxruntime library known for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// ResolveLibraryPath picks the shared library: the explicit path, then ONNXRUNTIME_LIB, then
// the platform default.
//
// Arguments:
//   - explicit: A configured path, or "".
//
// Returns:
//   - string: The path to load.
//   - error: An error if no path can be determined.
func ResolveLibraryPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(LibraryEnv); env != "" {
		return env, nil
	}
	return GetSharedLibPath()
}
