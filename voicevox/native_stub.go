//go:build !cgo || !(linux || darwin)

// Stubs so the package still builds with CGO_ENABLED=0 or on platforms without
// dlopen. Loading always fails, so no Core can be constructed.

package voicevox

import "fmt"

type stubLibrary struct{}

func newPlatformLibrary() nativeLibrary {
	return stubLibrary{}
}

func (stubLibrary) load(path string) error {
	return fmt.Errorf("%w: %s: built without cgo support", ErrLibraryNotLoaded, path)
}

func (stubLibrary) loaded() bool { return false }

func (stubLibrary) defaultInitializeOptions() nativeInitializeOptions {
	return nativeInitializeOptions{}
}

func (stubLibrary) defaultAudioQueryOptions() AudioQueryOptions { return AudioQueryOptions{} }
func (stubLibrary) defaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{EnableInterrogativeUpspeak: true}
}
func (stubLibrary) defaultTTSOptions() TTSOptions {
	return TTSOptions{EnableInterrogativeUpspeak: true}
}

func (stubLibrary) initialize(nativeInitializeOptions) ResultCode { return resultLibraryUnavailable }
func (stubLibrary) finalize()                                     {}

func (stubLibrary) version() string              { return "" }
func (stubLibrary) metasJSON() string            { return "[]" }
func (stubLibrary) supportedDevicesJSON() string { return "{}" }

func (stubLibrary) loadModel(uint32) ResultCode { return resultLibraryUnavailable }
func (stubLibrary) isModelLoaded(uint32) bool   { return false }
func (stubLibrary) isGPUMode() bool             { return false }

func (stubLibrary) audioQuery(string, uint32, AudioQueryOptions) (string, ResultCode) {
	return "", resultLibraryUnavailable
}

func (stubLibrary) synthesis(string, uint32, SynthesisOptions) ([]byte, ResultCode) {
	return nil, resultLibraryUnavailable
}

func (stubLibrary) tts(string, uint32, TTSOptions) ([]byte, ResultCode) {
	return nil, resultLibraryUnavailable
}

func (stubLibrary) errorMessage(ResultCode) string { return "voicevox core library unavailable" }
