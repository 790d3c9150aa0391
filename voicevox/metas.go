package voicevox

import (
	"encoding/json"
	"fmt"
)

// Style is one voice style of a speaker. Its ID is the speaker ID passed to
// LoadModel, AudioQuery, Synthesis and TTS.
type Style struct {
	Name string `json:"name" yaml:"name"`
	ID   uint32 `json:"id" yaml:"id"`
}

// SpeakerMeta describes a speaker bundled with the loaded library.
type SpeakerMeta struct {
	Name        string  `json:"name" yaml:"name"`
	Styles      []Style `json:"styles" yaml:"styles"`
	SpeakerUUID string  `json:"speaker_uuid" yaml:"speaker_uuid"`
	Version     string  `json:"version" yaml:"version"`
}

// SupportedDevices reports which inference backends the library can use.
type SupportedDevices struct {
	CPU  bool `json:"cpu" yaml:"cpu"`
	CUDA bool `json:"cuda" yaml:"cuda"`
	DML  bool `json:"dml" yaml:"dml"`
}

func decodeMetas(data string) ([]SpeakerMeta, error) {
	var metas []SpeakerMeta
	if err := json.Unmarshal([]byte(data), &metas); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetasDecode, err)
	}
	return metas, nil
}

func decodeSupportedDevices(data string) (SupportedDevices, error) {
	var d SupportedDevices
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return SupportedDevices{}, fmt.Errorf("%w: %w", ErrMetasDecode, err)
	}
	return d, nil
}

// FindStyle looks up a style ID across metas.
func FindStyle(metas []SpeakerMeta, id uint32) (SpeakerMeta, Style, bool) {
	for _, m := range metas {
		for _, s := range m.Styles {
			if s.ID == id {
				return m, s, true
			}
		}
	}
	return SpeakerMeta{}, Style{}, false
}
