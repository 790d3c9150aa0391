package voicevox

import "fmt"

// ResultCode is the status returned by every fallible native call.
// Zero means success; any other value is passed through to the caller as-is.
type ResultCode int32

// Result codes documented by the core library. The list is informational only,
// the binding never branches on anything but ResultOK.
const (
	ResultOK                      ResultCode = 0
	ResultNotLoadedOpenJTalkDict  ResultCode = 1
	ResultLoadModel               ResultCode = 2
	ResultGetSupportedDevices     ResultCode = 3
	ResultGPUSupport              ResultCode = 4
	ResultLoadMetas               ResultCode = 5
	ResultUninitializedStatus     ResultCode = 6
	ResultInvalidSpeakerID        ResultCode = 7
	ResultInvalidModelIndex       ResultCode = 8
	ResultInference               ResultCode = 9
	ResultExtractFullContextLabel ResultCode = 10
	ResultInvalidUTF8Input        ResultCode = 11
	ResultParseKana               ResultCode = 12
	ResultInvalidAudioQuery       ResultCode = 13
)

// resultLibraryUnavailable is reported by the stub when no library can be loaded.
const resultLibraryUnavailable ResultCode = -1

var resultNames = map[ResultCode]string{
	ResultOK:                      "OK",
	ResultNotLoadedOpenJTalkDict:  "NOT_LOADED_OPENJTALK_DICT",
	ResultLoadModel:               "LOAD_MODEL",
	ResultGetSupportedDevices:     "GET_SUPPORTED_DEVICES",
	ResultGPUSupport:              "GPU_SUPPORT",
	ResultLoadMetas:               "LOAD_METAS",
	ResultUninitializedStatus:     "UNINITIALIZED_STATUS",
	ResultInvalidSpeakerID:        "INVALID_SPEAKER_ID",
	ResultInvalidModelIndex:       "INVALID_MODEL_INDEX",
	ResultInference:               "INFERENCE",
	ResultExtractFullContextLabel: "EXTRACT_FULL_CONTEXT_LABEL",
	ResultInvalidUTF8Input:        "INVALID_UTF8_INPUT",
	ResultParseKana:               "PARSE_KANA",
	ResultInvalidAudioQuery:       "INVALID_AUDIO_QUERY",
	resultLibraryUnavailable:      "LIBRARY_UNAVAILABLE",
}

// String returns the symbolic name of the code, or its number if unknown.
func (c ResultCode) String() string {
	if name, ok := resultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("RESULT_%d", int32(c))
}

// OK reports whether the code signals success.
func (c ResultCode) OK() bool {
	return c == ResultOK
}
