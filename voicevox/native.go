package voicevox

// nativeInitializeOptions mirrors VoicevoxInitializeOptions.
type nativeInitializeOptions struct {
	AccelerationMode int32
	CPUNumThreads    uint16
	LoadAllModels    bool
	OpenJTalkDictDir string
}

// nativeLibrary is the foreign call surface of libvoicevox_core.
//
// Implementations copy every native-owned buffer into Go memory and release it
// before returning; no pointer into library memory ever crosses this interface.
// Strings handed in are already checked for embedded NUL bytes.
type nativeLibrary interface {
	load(path string) error
	loaded() bool

	defaultInitializeOptions() nativeInitializeOptions
	defaultAudioQueryOptions() AudioQueryOptions
	defaultSynthesisOptions() SynthesisOptions
	defaultTTSOptions() TTSOptions

	initialize(opts nativeInitializeOptions) ResultCode
	finalize()

	version() string
	metasJSON() string
	supportedDevicesJSON() string

	loadModel(speakerID uint32) ResultCode
	isModelLoaded(speakerID uint32) bool
	isGPUMode() bool

	audioQuery(text string, speakerID uint32, opts AudioQueryOptions) (string, ResultCode)
	synthesis(queryJSON string, speakerID uint32, opts SynthesisOptions) ([]byte, ResultCode)
	tts(text string, speakerID uint32, opts TTSOptions) ([]byte, ResultCode)

	errorMessage(code ResultCode) string
}

// lib is the process-wide native binding. Tests swap it for a fake.
var lib nativeLibrary = newPlatformLibrary()
