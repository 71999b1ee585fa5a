// Package providers - Utility functions.
package providers

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
)

// SharedLibraryEnv overrides the shared library location when set.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// GetSharedLibPath returns the path to the shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library.
//   - error: An error if the platform has no known library.
func GetSharedLibPath() (string, error) {
	if p := os.Getenv(SharedLibraryEnv); p != "" {
		return p, nil
	}

	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.1.23.0.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}

	return "", errors.Errorf(
		"unable to find a version of the onnxruntime library supporting %s/%s",
		runtime.GOOS, runtime.GOARCH,
	)
}
