// Package audio inspects and decodes the WAV data produced by the engine and
// defines the Player interface used for local playback. The oto-backed
// implementation lives in the player subpackage so this package stays free of
// audio-device dependencies.
package audio
