package voicevox

import (
	"errors"
	"fmt"
)

// Common binding errors.
var (
	// Native status failures. A *ResultError unwraps to one of these.
	ErrEngineInit = errors.New("voicevox: initialize failed")
	ErrModelLoad  = errors.New("voicevox: load model failed")
	ErrQuery      = errors.New("voicevox: audio query failed")
	ErrSynthesis  = errors.New("voicevox: synthesis failed")

	// Schema mismatch between this binding and the JSON the library emits or accepts.
	ErrQueryDecode = errors.New("voicevox: cannot decode audio query")
	ErrQueryEncode = errors.New("voicevox: cannot encode audio query")
	ErrMetasDecode = errors.New("voicevox: cannot decode speaker metadata")

	// Strings bound for a NUL-terminated C buffer.
	ErrInvalidText = errors.New("voicevox: text contains a NUL byte")
	ErrInvalidPath = errors.New("voicevox: path contains a NUL byte")

	// Handle state.
	ErrAlreadyInitialized = errors.New("voicevox: a core is already live in this process")
	ErrFinalized          = errors.New("voicevox: core has been finalized")

	ErrLibraryNotLoaded = errors.New("voicevox: core library is not loaded")
)

// ResultError carries a non-zero native status code.
type ResultError struct {
	Kind    error
	Code    ResultCode
	Message string
}

// Error implements the error interface.
func (e *ResultError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s (%d): %s", e.Kind, e.Code, int32(e.Code), e.Message)
	}
	return fmt.Sprintf("%v: %s (%d)", e.Kind, e.Code, int32(e.Code))
}

// Unwrap returns the failure kind so errors.Is works against the sentinels.
func (e *ResultError) Unwrap() error {
	return e.Kind
}

// CodeOf extracts the native status code from err, if it carries one.
func CodeOf(err error) (ResultCode, bool) {
	var re *ResultError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return ResultOK, false
}
