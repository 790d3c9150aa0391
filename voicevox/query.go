package voicevox

import (
	"encoding/json"
	"fmt"
)

// Mora is a single phonetic unit.
type Mora struct {
	Text            string   `json:"text" yaml:"text"`
	Consonant       *string  `json:"consonant" yaml:"consonant"`
	ConsonantLength *float32 `json:"consonant_length" yaml:"consonant_length"`
	Vowel           string   `json:"vowel" yaml:"vowel"`
	VowelLength     float32  `json:"vowel_length" yaml:"vowel_length"`
	Pitch           float32  `json:"pitch" yaml:"pitch"`
}

// AccentPhrase is a run of moras sharing one accent nucleus.
type AccentPhrase struct {
	Moras           []Mora `json:"moras" yaml:"moras"`
	Accent          int    `json:"accent" yaml:"accent"`
	PauseMora       *Mora  `json:"pause_mora" yaml:"pause_mora"`
	IsInterrogative bool   `json:"is_interrogative" yaml:"is_interrogative"`
}

// AudioQuery is the prosody and intonation plan for one utterance. It is
// produced by Core.AudioQuery, may be edited, and is consumed by Core.Synthesis.
//
// Numeric prosody fields are float32 because the engine stores them in single
// precision; wider types would round differently on the way back in.
type AudioQuery struct {
	AccentPhrases      []AccentPhrase `json:"accent_phrases" yaml:"accent_phrases"`
	SpeedScale         float32        `json:"speed_scale" yaml:"speed_scale"`
	PitchScale         float32        `json:"pitch_scale" yaml:"pitch_scale"`
	IntonationScale    float32        `json:"intonation_scale" yaml:"intonation_scale"`
	VolumeScale        float32        `json:"volume_scale" yaml:"volume_scale"`
	PrePhonemeLength   float32        `json:"pre_phoneme_length" yaml:"pre_phoneme_length"`
	PostPhonemeLength  float32        `json:"post_phoneme_length" yaml:"post_phoneme_length"`
	OutputSamplingRate int            `json:"output_sampling_rate" yaml:"output_sampling_rate"`
	OutputStereo       bool           `json:"output_stereo" yaml:"output_stereo"`
	Kana               string         `json:"kana" yaml:"kana"`
}

// DecodeAudioQuery parses the engine's audio query JSON.
func DecodeAudioQuery(data []byte) (*AudioQuery, error) {
	var q AudioQuery
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryDecode, err)
	}
	if q.AccentPhrases == nil {
		q.AccentPhrases = []AccentPhrase{}
	}
	return &q, nil
}

// Encode renders q in the engine's audio query JSON.
func (q *AudioQuery) Encode() ([]byte, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: nil query", ErrQueryEncode)
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryEncode, err)
	}
	return data, nil
}

// Clone returns a deep copy of q.
func (q *AudioQuery) Clone() *AudioQuery {
	if q == nil {
		return nil
	}
	c := *q
	c.AccentPhrases = make([]AccentPhrase, len(q.AccentPhrases))
	for i, ap := range q.AccentPhrases {
		c.AccentPhrases[i] = ap.clone()
	}
	return &c
}

func (ap AccentPhrase) clone() AccentPhrase {
	c := ap
	c.Moras = make([]Mora, len(ap.Moras))
	for i, m := range ap.Moras {
		c.Moras[i] = m.clone()
	}
	if ap.PauseMora != nil {
		pm := ap.PauseMora.clone()
		c.PauseMora = &pm
	}
	return c
}

func (m Mora) clone() Mora {
	c := m
	if m.Consonant != nil {
		s := *m.Consonant
		c.Consonant = &s
	}
	if m.ConsonantLength != nil {
		l := *m.ConsonantLength
		c.ConsonantLength = &l
	}
	return c
}

// Adjustments are optional overrides applied to a query before synthesis.
// Nil fields leave the query untouched.
type Adjustments struct {
	SpeedScale        *float32
	PitchScale        *float32
	IntonationScale   *float32
	VolumeScale       *float32
	PrePhonemeLength  *float32
	PostPhonemeLength *float32
	OutputStereo      *bool
}

// Empty reports whether a carries no overrides.
func (a Adjustments) Empty() bool {
	return a.SpeedScale == nil && a.PitchScale == nil && a.IntonationScale == nil &&
		a.VolumeScale == nil && a.PrePhonemeLength == nil && a.PostPhonemeLength == nil &&
		a.OutputStereo == nil
}

// Apply writes the set overrides into q.
func (a Adjustments) Apply(q *AudioQuery) {
	if q == nil {
		return
	}
	set := func(dst *float32, v *float32) {
		if v != nil {
			*dst = *v
		}
	}
	set(&q.SpeedScale, a.SpeedScale)
	set(&q.PitchScale, a.PitchScale)
	set(&q.IntonationScale, a.IntonationScale)
	set(&q.VolumeScale, a.VolumeScale)
	set(&q.PrePhonemeLength, a.PrePhonemeLength)
	set(&q.PostPhonemeLength, a.PostPhonemeLength)
	if a.OutputStereo != nil {
		q.OutputStereo = *a.OutputStereo
	}
}
