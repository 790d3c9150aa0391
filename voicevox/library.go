package voicevox

import "runtime"

// DefaultLibraryName is the file name dlopen searches for when no explicit
// path was given to LoadLibrary.
func DefaultLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libvoicevox_core.dylib"
	case "windows":
		return "voicevox_core.dll"
	default:
		return "libvoicevox_core.so"
	}
}

// LoadLibrary loads libvoicevox_core from path, or from the default library
// search path when path is empty. Only the first successful load has any
// effect; later calls are no-ops.
func LoadLibrary(path string) error {
	if path == "" {
		path = DefaultLibraryName()
	}
	return lib.load(path)
}

func ensureLoaded() error {
	if lib.loaded() {
		return nil
	}
	return LoadLibrary("")
}
