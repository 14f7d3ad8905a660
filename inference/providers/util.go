package providers

import (
	"os"
	"runtime"
)

// LibraryEnv overrides the ONNX Runtime shared library location.
const LibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// SharedLibPath returns the path to the ONNX Runtime shared library for the current platform.
//
// Returns:
//   - string: The value of LibraryEnv when set, otherwise the bundled library under
//     ./third_party.
func SharedLibPath() string {
	if p := os.Getenv(LibraryEnv); p != "" {
		return p
	}
	return libraryFor(runtime.GOOS, runtime.GOARCH)
}

func libraryFor(goos, goarch string) string {
	switch goos {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.1.23.0.dylib"
	}
	if goarch == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}
