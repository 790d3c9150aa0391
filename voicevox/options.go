package voicevox

import (
	"fmt"
	"strings"
)

// AccelerationMode selects the inference device.
type AccelerationMode int32

const (
	// AccelerationAuto lets the library pick GPU when one is usable.
	AccelerationAuto AccelerationMode = iota
	// AccelerationCPU forces CPU inference.
	AccelerationCPU
	// AccelerationGPU forces GPU inference.
	AccelerationGPU
)

// String returns the lowercase name used in config files and flags.
func (m AccelerationMode) String() string {
	switch m {
	case AccelerationCPU:
		return "cpu"
	case AccelerationGPU:
		return "gpu"
	default:
		return "auto"
	}
}

// ParseAccelerationMode parses "auto", "cpu" or "gpu" (case-insensitive).
func ParseAccelerationMode(s string) (AccelerationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return AccelerationAuto, nil
	case "cpu":
		return AccelerationCPU, nil
	case "gpu":
		return AccelerationGPU, nil
	default:
		return AccelerationAuto, fmt.Errorf("unknown acceleration mode %q (want auto, cpu or gpu)", s)
	}
}

// accelerationFromNative maps unknown native values to Auto.
func accelerationFromNative(v int32) AccelerationMode {
	switch AccelerationMode(v) {
	case AccelerationCPU, AccelerationGPU:
		return AccelerationMode(v)
	default:
		return AccelerationAuto
	}
}

// InitializeOptions configures engine construction. It is consumed once, by New.
type InitializeOptions struct {
	AccelerationMode AccelerationMode
	// CPUNumThreads of 0 lets the library decide.
	CPUNumThreads uint16
	// LoadAllModels loads every voice model up front instead of on demand.
	LoadAllModels bool
	// OpenJTalkDictDir is the Open JTalk dictionary directory. There is no
	// default; the caller has to supply it.
	OpenJTalkDictDir string
}

// DefaultInitializeOptions returns the library's own defaults for the numeric
// and boolean fields. OpenJTalkDictDir is always empty.
//
// If the library cannot be loaded the documented defaults (auto, library-chosen
// thread count, lazy model loading) are returned instead.
func DefaultInitializeOptions() InitializeOptions {
	if err := ensureLoaded(); err != nil {
		return InitializeOptions{AccelerationMode: AccelerationAuto}
	}

	n := lib.defaultInitializeOptions()
	return InitializeOptions{
		AccelerationMode: accelerationFromNative(n.AccelerationMode),
		CPUNumThreads:    n.CPUNumThreads,
		LoadAllModels:    n.LoadAllModels,
	}
}

func (o InitializeOptions) toNative() (nativeInitializeOptions, error) {
	if strings.IndexByte(o.OpenJTalkDictDir, 0) >= 0 {
		return nativeInitializeOptions{}, ErrInvalidPath
	}
	return nativeInitializeOptions{
		AccelerationMode: int32(o.AccelerationMode),
		CPUNumThreads:    o.CPUNumThreads,
		LoadAllModels:    o.LoadAllModels,
		OpenJTalkDictDir: o.OpenJTalkDictDir,
	}, nil
}

// AudioQueryOptions mirrors the per-call options of the audio query entry point.
type AudioQueryOptions struct {
	// Kana treats the input as AquesTalk-style kana instead of plain text.
	Kana bool
}

// SynthesisOptions mirrors the per-call options of the synthesis entry point.
type SynthesisOptions struct {
	// EnableInterrogativeUpspeak raises the pitch at the end of questions.
	EnableInterrogativeUpspeak bool
}

// TTSOptions mirrors the per-call options of the one-shot text-to-speech entry point.
type TTSOptions struct {
	Kana                       bool
	EnableInterrogativeUpspeak bool
}

// DefaultAudioQueryOptions returns the library's defaults for AudioQuery.
func DefaultAudioQueryOptions() AudioQueryOptions {
	if err := ensureLoaded(); err != nil {
		return AudioQueryOptions{}
	}
	return lib.defaultAudioQueryOptions()
}

// DefaultSynthesisOptions returns the library's defaults for Synthesis.
func DefaultSynthesisOptions() SynthesisOptions {
	if err := ensureLoaded(); err != nil {
		return SynthesisOptions{EnableInterrogativeUpspeak: true}
	}
	return lib.defaultSynthesisOptions()
}

// DefaultTTSOptions returns the library's defaults for TTS.
func DefaultTTSOptions() TTSOptions {
	if err := ensureLoaded(); err != nil {
		return TTSOptions{EnableInterrogativeUpspeak: true}
	}
	return lib.defaultTTSOptions()
}
