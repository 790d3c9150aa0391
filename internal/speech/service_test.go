package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/vvtts/internal/audio"
	"github.com/dgnsrekt/vvtts/internal/cache"
	"github.com/dgnsrekt/vvtts/internal/history"
	"github.com/dgnsrekt/vvtts/voicevox"
)

// testWAV returns a 24kHz mono 16-bit WAV with n samples derived from seed.
func testWAV(seed string, n int) []byte {
	pcm := make([]byte, n*2)
	for i := range pcm {
		pcm[i] = seed[i%len(seed)]
	}

	le := binary.LittleEndian
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, le, uint32(36+len(pcm)))
	b.WriteString("WAVEfmt ")
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

type fakeEngine struct {
	mu sync.Mutex

	loaded map[uint32]bool

	loadCalls  int
	queryCalls int
	synthCalls int
	ttsCalls   int

	lastText    string
	lastQuery   *voicevox.AudioQuery
	lastTTSOpts voicevox.TTSOptions

	err error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{loaded: make(map[uint32]bool)}
}

func (f *fakeEngine) LoadModel(id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	f.loaded[id] = true
	return nil
}

func (f *fakeEngine) IsModelLoaded(id uint32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[id], nil
}

func (f *fakeEngine) AudioQueryWithOptions(text string, id uint32, _ voicevox.AudioQueryOptions) (*voicevox.AudioQuery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	return &voicevox.AudioQuery{
		AccentPhrases:      []voicevox.AccentPhrase{},
		SpeedScale:         1,
		IntonationScale:    1,
		VolumeScale:        1,
		OutputSamplingRate: 24000,
		Kana:               "コンニチワ'",
	}, nil
}

func (f *fakeEngine) SynthesisWithOptions(q *voicevox.AudioQuery, id uint32, _ voicevox.SynthesisOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthCalls++
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	data, _ := q.Encode()
	return testWAV(string(data), 2400), nil
}

func (f *fakeEngine) TTSWithOptions(text string, id uint32, opts voicevox.TTSOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttsCalls++
	f.lastText = text
	f.lastTTSOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return testWAV(text, 4800), nil
}

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(cache.Config{MemoryCapacity: 1 << 20, DiskCapacity: 1 << 20, DiskPath: t.TempDir()})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSpeak_UsesTTSWithoutAdjustments(t *testing.T) {
	engine := newFakeEngine()
	svc := New(engine, Options{})

	res, err := svc.Speak(context.Background(), Request{Text: "こんにちは", SpeakerID: 1})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if engine.ttsCalls != 1 || engine.queryCalls != 0 {
		t.Errorf("expected one TTS call, got tts=%d query=%d", engine.ttsCalls, engine.queryCalls)
	}
	if engine.loadCalls != 1 {
		t.Errorf("expected the model to be loaded once, got %d", engine.loadCalls)
	}
	if !engine.lastTTSOpts.EnableInterrogativeUpspeak {
		t.Error("upspeak should be on by default")
	}
	if res.Info.SampleRate != 24000 || res.Info.Frames != 4800 {
		t.Errorf("unexpected info %+v", res.Info)
	}
	if res.Info.Duration.Milliseconds() != 200 {
		t.Errorf("expected 200ms, got %v", res.Info.Duration)
	}
}

func TestSpeak_AppliesAdjustments(t *testing.T) {
	engine := newFakeEngine()
	svc := New(engine, Options{})

	speed := float32(1.3)
	pitch := float32(0.1)
	res, err := svc.Speak(context.Background(), Request{
		Text:      "こんにちは",
		SpeakerID: 1,
		Adjust:    voicevox.Adjustments{SpeedScale: &speed, PitchScale: &pitch},
	})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if engine.queryCalls != 1 || engine.synthCalls != 1 || engine.ttsCalls != 0 {
		t.Errorf("expected query+synthesis, got query=%d synth=%d tts=%d",
			engine.queryCalls, engine.synthCalls, engine.ttsCalls)
	}
	if engine.lastQuery.SpeedScale != speed || engine.lastQuery.PitchScale != pitch {
		t.Errorf("adjustments not applied: %+v", engine.lastQuery)
	}
	if res.Query == nil || res.Query.Kana == "" {
		t.Error("result should carry the query")
	}
}

func TestSpeak_CacheHitSkipsEngine(t *testing.T) {
	engine := newFakeEngine()
	svc := New(engine, Options{Cache: newTestCache(t)})
	req := Request{Text: "こんにちは", SpeakerID: 1}

	first, err := svc.Speak(context.Background(), req)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	second, err := svc.Speak(context.Background(), req)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	if engine.ttsCalls != 1 {
		t.Errorf("engine called %d times, want 1", engine.ttsCalls)
	}
	if first.CacheHit || !second.CacheHit {
		t.Errorf("unexpected cache flags: %v, %v", first.CacheHit, second.CacheHit)
	}
	if !bytes.Equal(first.WAV, second.WAV) {
		t.Error("cached audio differs")
	}

	// Different speaker must not share the entry.
	_, _ = svc.Speak(context.Background(), Request{Text: "こんにちは", SpeakerID: 2})
	if engine.ttsCalls != 2 {
		t.Errorf("speaker change served from cache")
	}

	stats := svc.Stats()
	if stats.Requests != 3 || stats.CacheHits != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSpeak_NormalizesText(t *testing.T) {
	engine := newFakeEngine()
	svc := New(engine, Options{Cache: newTestCache(t)})

	// "が" written as か + combining voiced mark.
	decomposed := "  \u304b\u3099  "
	if _, err := svc.Speak(context.Background(), Request{Text: decomposed, SpeakerID: 1}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if engine.lastText != "が" {
		t.Errorf("expected NFC text, got %q", engine.lastText)
	}

	res, err := svc.Speak(context.Background(), Request{Text: "が", SpeakerID: 1})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if !res.CacheHit {
		t.Error("composed and decomposed input should share a cache entry")
	}
}

func TestSpeak_Errors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		svc := New(newFakeEngine(), Options{})
		if _, err := svc.Speak(context.Background(), Request{Text: "   "}); !errors.Is(err, ErrEmptyText) {
			t.Errorf("expected ErrEmptyText, got %v", err)
		}
	})

	t.Run("nul byte", func(t *testing.T) {
		engine := newFakeEngine()
		svc := New(engine, Options{})
		if _, err := svc.Speak(context.Background(), Request{Text: "a\x00b", SpeakerID: 1}); !errors.Is(err, voicevox.ErrInvalidText) {
			t.Errorf("expected ErrInvalidText, got %v", err)
		}
		if engine.lastText != "" {
			t.Errorf("engine was called with %q", engine.lastText)
		}
	})

	t.Run("too long", func(t *testing.T) {
		svc := New(newFakeEngine(), Options{MaxTextRunes: 3})
		if _, err := svc.Speak(context.Background(), Request{Text: "こんにちは"}); !errors.Is(err, ErrTextTooLong) {
			t.Errorf("expected ErrTextTooLong, got %v", err)
		}
	})

	t.Run("engine failure", func(t *testing.T) {
		engine := newFakeEngine()
		engine.err = &voicevox.ResultError{Kind: voicevox.ErrSynthesis, Code: voicevox.ResultInference}
		svc := New(engine, Options{})

		_, err := svc.Speak(context.Background(), Request{Text: "こんにちは", SpeakerID: 1})
		if !errors.Is(err, voicevox.ErrSynthesis) {
			t.Errorf("expected ErrSynthesis, got %v", err)
		}
		if code, ok := voicevox.CodeOf(err); !ok || code != voicevox.ResultInference {
			t.Errorf("native code lost: %v %v", code, ok)
		}
		if svc.Stats().Errors != 1 {
			t.Error("error not counted")
		}
	})
}

func TestSpeak_CancelledContext(t *testing.T) {
	engine := newFakeEngine()
	svc := New(engine, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Speak(ctx, Request{Text: "こんにちは", SpeakerID: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if engine.ttsCalls != 0 || engine.loadCalls != 0 {
		t.Error("engine reached with a cancelled context")
	}
}

func TestRender(t *testing.T) {
	engine := newFakeEngine()
	svc := New(engine, Options{Cache: newTestCache(t)})

	q, err := svc.Query(context.Background(), "こんにちは", 1, false)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	base, err := svc.Render(context.Background(), q, 1, true, "")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	q.SpeedScale += 0.3
	tuned, err := svc.Render(context.Background(), q, 1, true, "")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if tuned.CacheHit {
		t.Error("edited query served from cache")
	}
	if bytes.Equal(base.WAV, tuned.WAV) {
		t.Error("edited query rendered identical audio")
	}

	again, _ := svc.Render(context.Background(), q, 1, true, "")
	if !again.CacheHit {
		t.Error("identical query not served from cache")
	}
	if engine.synthCalls != 2 {
		t.Errorf("expected 2 synthesis calls, got %d", engine.synthCalls)
	}
}

func TestSpeak_RecordsHistory(t *testing.T) {
	hist, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer hist.Close()

	svc := New(newFakeEngine(), Options{History: hist})
	if _, err := svc.Speak(context.Background(), Request{Text: "こんにちは", SpeakerID: 3, Output: "out.wav"}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	records, err := hist.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Kind != "tts" || r.SpeakerID != 3 || r.Text != "こんにちは" || r.Output != "out.wav" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Bytes == 0 || r.Duration == 0 {
		t.Errorf("audio size not recorded: %+v", r)
	}
}

func TestPlay(t *testing.T) {
	svc := New(newFakeEngine(), Options{})
	if err := svc.Play(context.Background(), testWAV("x", 10)); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("expected ErrNoPlayer, got %v", err)
	}

	player := audio.NewMockPlayer()
	svc = New(newFakeEngine(), Options{Player: player})

	if err := svc.Play(context.Background(), testWAV("abc", 2400)); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	clips := player.Clips()
	if len(clips) != 1 || clips[0].Format.SampleRate != 24000 || len(clips[0].PCM) != 4800 {
		t.Errorf("unexpected clips %+v", clips)
	}

	if err := svc.Play(context.Background(), []byte("not audio")); !errors.Is(err, audio.ErrNotWAV) {
		t.Errorf("expected ErrNotWAV, got %v", err)
	}
}

func TestRequestOptions(t *testing.T) {
	speed := float32(1.5)
	stereo := true
	got := requestOptions(Request{Kana: true, Adjust: voicevox.Adjustments{SpeedScale: &speed, OutputStereo: &stereo}})
	for _, part := range []string{"kana=true", "upspeak=true", "speed=1.5", "stereo=true"} {
		if !strings.Contains(got, part) {
			t.Errorf("%q missing %q", got, part)
		}
	}
	if strings.Contains(got, "pitch") {
		t.Errorf("unset field rendered: %q", got)
	}
}
