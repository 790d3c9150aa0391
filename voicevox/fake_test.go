package voicevox

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"os"
	"sync"
	"testing"
)

const sampleQueryJSON = `{"accent_phrases":[{"moras":[` +
	`{"text":"コ","consonant":"k","consonant_length":0.0556,"vowel":"o","vowel_length":0.0887,"pitch":5.77},` +
	`{"text":"ン","consonant":null,"consonant_length":null,"vowel":"N","vowel_length":0.0578,"pitch":5.88},` +
	`{"text":"ニ","consonant":"n","consonant_length":0.0331,"vowel":"i","vowel_length":0.0578,"pitch":5.98},` +
	`{"text":"チ","consonant":"ch","consonant_length":0.0636,"vowel":"i","vowel_length":0.0594,"pitch":5.96},` +
	`{"text":"ワ","consonant":"w","consonant_length":0.0592,"vowel":"a","vowel_length":0.1929,"pitch":5.92}],` +
	`"accent":5,"pause_mora":null,"is_interrogative":false}],` +
	`"speed_scale":1.0,"pitch_scale":0.0,"intonation_scale":1.0,"volume_scale":1.0,` +
	`"pre_phoneme_length":0.1,"post_phoneme_length":0.1,"output_sampling_rate":24000,` +
	`"output_stereo":false,"kana":"コンニチワ'"}`

// fakeLibrary stands in for libvoicevox_core.
type fakeLibrary struct {
	mu sync.Mutex

	defaults nativeInitializeOptions
	initOpts nativeInitializeOptions

	initCalls     int
	finalizeCalls int
	nativeCalls   int

	models map[uint32]bool
	gpu    bool

	queryJSON string
	queryCode ResultCode
	synthCode ResultCode
	ttsCode   ResultCode

	lastSynthesisJSON string
	lastQueryOptions  AudioQueryOptions
	lastTTSOptions    TTSOptions
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		defaults:  nativeInitializeOptions{AccelerationMode: int32(AccelerationAuto), CPUNumThreads: 4},
		models:    make(map[uint32]bool),
		queryJSON: sampleQueryJSON,
	}
}

// useFake installs a fake library for the duration of the test.
func useFake(t *testing.T) *fakeLibrary {
	t.Helper()
	f := newFakeLibrary()
	prev := lib
	lib = f
	t.Cleanup(func() {
		lib = prev
		releaseSlot()
	})
	return f
}

func (f *fakeLibrary) touch() {
	f.mu.Lock()
	f.nativeCalls++
	f.mu.Unlock()
}

func (f *fakeLibrary) load(string) error { return nil }
func (f *fakeLibrary) loaded() bool      { return true }

func (f *fakeLibrary) defaultInitializeOptions() nativeInitializeOptions { return f.defaults }
func (f *fakeLibrary) defaultAudioQueryOptions() AudioQueryOptions       { return AudioQueryOptions{} }
func (f *fakeLibrary) defaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{EnableInterrogativeUpspeak: true}
}
func (f *fakeLibrary) defaultTTSOptions() TTSOptions {
	return TTSOptions{EnableInterrogativeUpspeak: true}
}

func (f *fakeLibrary) initialize(opts nativeInitializeOptions) ResultCode {
	f.initCalls++
	f.initOpts = opts
	if st, err := os.Stat(opts.OpenJTalkDictDir); err != nil || !st.IsDir() {
		return ResultNotLoadedOpenJTalkDict
	}
	f.gpu = AccelerationMode(opts.AccelerationMode) == AccelerationGPU
	f.models = make(map[uint32]bool)
	return ResultOK
}

func (f *fakeLibrary) finalize() {
	f.finalizeCalls++
}

func (f *fakeLibrary) version() string {
	f.touch()
	return "0.14.4"
}

func (f *fakeLibrary) metasJSON() string {
	f.touch()
	return `[{"name":"四国めたん","styles":[{"name":"ノーマル","id":2},{"name":"あまあま","id":0}],` +
		`"speaker_uuid":"7ffcb7ce-00ec-4bdc-82cd-45a8889e43ff","version":"0.14.4"},` +
		`{"name":"ずんだもん","styles":[{"name":"ノーマル","id":3},{"name":"あまあま","id":1}],` +
		`"speaker_uuid":"388f246b-8c41-4ac1-8e2d-5d79f3ff56d9","version":"0.14.4"}]`
}

func (f *fakeLibrary) supportedDevicesJSON() string {
	f.touch()
	return `{"cpu":true,"cuda":false,"dml":false}`
}

func (f *fakeLibrary) loadModel(speakerID uint32) ResultCode {
	f.touch()
	if speakerID >= 100 {
		return ResultInvalidSpeakerID
	}
	f.models[speakerID] = true
	return ResultOK
}

func (f *fakeLibrary) isModelLoaded(speakerID uint32) bool {
	f.touch()
	return f.models[speakerID]
}

func (f *fakeLibrary) isGPUMode() bool {
	f.touch()
	return f.gpu
}

func (f *fakeLibrary) audioQuery(text string, speakerID uint32, opts AudioQueryOptions) (string, ResultCode) {
	f.touch()
	f.lastQueryOptions = opts
	if f.queryCode != ResultOK {
		return "", f.queryCode
	}
	if !f.models[speakerID] {
		return "", ResultInvalidSpeakerID
	}
	return f.queryJSON, ResultOK
}

func (f *fakeLibrary) synthesis(queryJSON string, speakerID uint32, _ SynthesisOptions) ([]byte, ResultCode) {
	f.touch()
	f.lastSynthesisJSON = queryJSON
	if f.synthCode != ResultOK {
		return nil, f.synthCode
	}
	var q AudioQuery
	if err := json.Unmarshal([]byte(queryJSON), &q); err != nil {
		return nil, ResultInvalidAudioQuery
	}
	return fakeWAV(queryJSON), ResultOK
}

func (f *fakeLibrary) tts(text string, speakerID uint32, opts TTSOptions) ([]byte, ResultCode) {
	f.touch()
	f.lastTTSOptions = opts
	if f.ttsCode != ResultOK {
		return nil, f.ttsCode
	}
	if !f.models[speakerID] {
		return nil, ResultInvalidSpeakerID
	}
	return fakeWAV("tts|" + text), ResultOK
}

func (f *fakeLibrary) errorMessage(code ResultCode) string {
	return "fake: " + code.String()
}

// fakeWAV returns a 16-bit mono 24kHz WAV whose samples depend on seed.
func fakeWAV(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	pcm := sum[:]

	le := binary.LittleEndian
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, le, uint32(36+len(pcm)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, le, uint32(16))
	_ = binary.Write(&b, le, uint16(1))
	_ = binary.Write(&b, le, uint16(1))
	_ = binary.Write(&b, le, uint32(24000))
	_ = binary.Write(&b, le, uint32(48000))
	_ = binary.Write(&b, le, uint16(2))
	_ = binary.Write(&b, le, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, le, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}
