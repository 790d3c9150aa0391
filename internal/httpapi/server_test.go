package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/vvtts/internal/audio"
	"github.com/dgnsrekt/vvtts/internal/bus"
	"github.com/dgnsrekt/vvtts/internal/speech"
	"github.com/dgnsrekt/vvtts/voicevox"
)

type fakeService struct {
	err error

	lastSpeak  speech.Request
	lastRender *voicevox.AudioQuery
	upspeak    bool
}

func (f *fakeService) Speak(_ context.Context, req speech.Request) (*speech.Result, error) {
	f.lastSpeak = req
	if f.err != nil {
		return nil, f.err
	}
	return &speech.Result{WAV: []byte("RIFF-tts"), Info: audio.Info{Duration: time.Second}}, nil
}

func (f *fakeService) Render(_ context.Context, q *voicevox.AudioQuery, _ uint32, upspeak bool, _ string) (*speech.Result, error) {
	f.lastRender = q
	f.upspeak = upspeak
	if f.err != nil {
		return nil, f.err
	}
	return &speech.Result{WAV: []byte("RIFF-synthesis"), CacheHit: true}, nil
}

func (f *fakeService) Query(_ context.Context, text string, _ uint32, kana bool) (*voicevox.AudioQuery, error) {
	if f.err != nil {
		return nil, f.err
	}
	if text == "" {
		return nil, speech.ErrEmptyText
	}
	if kana {
		text = "kana:" + text
	}
	return &voicevox.AudioQuery{
		AccentPhrases:      []voicevox.AccentPhrase{},
		SpeedScale:         1,
		OutputSamplingRate: 24000,
		Kana:               text,
	}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) Version() (string, error) { return "0.14.0", nil }

func (fakeCatalog) Metas() ([]voicevox.SpeakerMeta, error) {
	return []voicevox.SpeakerMeta{{Name: "ずんだもん", Styles: []voicevox.Style{{Name: "ノーマル", ID: 3}}}}, nil
}

func (fakeCatalog) SupportedDevices() (voicevox.SupportedDevices, error) {
	return voicevox.SupportedDevices{CPU: true}, nil
}

func do(t *testing.T, svc Service, method, target, body string) (*http.Response, string) {
	t.Helper()
	app := New(svc, fakeCatalog{}, time.Second)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(data)
}

func TestMetadataRoutes(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/health", "ok"},
		{"/version", `"0.14.0"`},
		{"/speakers", `"name":"ずんだもん"`},
		{"/supported_devices", `"cpu":true`},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp, body := do(t, &fakeService{}, http.MethodGet, tt.target, "")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("body %q missing %q", body, tt.want)
			}
		})
	}
}

func TestAudioQuery(t *testing.T) {
	resp, body := do(t, &fakeService{}, http.MethodPost, "/audio_query?speaker=1&kana=true&text=%E3%81%82", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	q, err := voicevox.DecodeAudioQuery([]byte(body))
	if err != nil {
		t.Fatalf("response is not an audio query: %v", err)
	}
	if q.Kana != "kana:あ" || q.OutputSamplingRate != 24000 {
		t.Errorf("query = %+v", q)
	}
}

func TestAudioQuery_BadInput(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing speaker", "/audio_query?text=a", http.StatusBadRequest},
		{"bad speaker", "/audio_query?text=a&speaker=-1", http.StatusBadRequest},
		{"empty text", "/audio_query?speaker=1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, &fakeService{}, http.MethodPost, tt.target, "")
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.status, body)
			}
		})
	}
}

func TestSynthesis(t *testing.T) {
	f := &fakeService{}
	query := `{"accent_phrases":[],"speed_scale":1.3,"pitch_scale":0,"intonation_scale":1,"volume_scale":1,"pre_phoneme_length":0.1,"post_phoneme_length":0.1,"output_sampling_rate":24000,"output_stereo":false,"kana":""}`
	resp, body := do(t, f, http.MethodPost, "/synthesis?speaker=1&enable_interrogative_upspeak=false", query)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if body != "RIFF-synthesis" {
		t.Errorf("body = %q", body)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/wav" {
		t.Errorf("content type = %q", got)
	}
	if got := resp.Header.Get(bus.HeaderCacheHit); got != "true" {
		t.Errorf("cache hit = %q", got)
	}
	if f.lastRender == nil || f.lastRender.SpeedScale != 1.3 {
		t.Errorf("rendered query = %+v", f.lastRender)
	}
	if f.upspeak {
		t.Error("upspeak should be disabled")
	}

	resp, _ = do(t, f, http.MethodPost, "/synthesis?speaker=1", `{"accent_phrases":{}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed query status = %d", resp.StatusCode)
	}
}

func TestTTS(t *testing.T) {
	f := &fakeService{}
	resp, body := do(t, f, http.MethodPost, "/tts", `{"text":"こんにちは","speaker_id":2,"adjustments":{"pitch_scale":0.1}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if body != "RIFF-tts" {
		t.Errorf("body = %q", body)
	}
	if got := resp.Header.Get(bus.HeaderDuration); got != "1000" {
		t.Errorf("duration = %q", got)
	}
	if f.lastSpeak.SpeakerID != 2 || f.lastSpeak.Output != "http" {
		t.Errorf("request = %+v", f.lastSpeak)
	}
	if p := f.lastSpeak.Adjust.PitchScale; p == nil || *p != 0.1 {
		t.Errorf("pitch adjustment = %v", p)
	}

	resp, _ = do(t, f, http.MethodPost, "/tts", `{"text":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid json status = %d", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"text too long", speech.ErrTextTooLong, http.StatusBadRequest, "INVALID_TEXT"},
		{"nul byte", fmt.Errorf("tts: %w", voicevox.ErrInvalidText), http.StatusBadRequest, "INVALID_TEXT"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"finalized", voicevox.ErrFinalized, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{
			"unknown speaker",
			&voicevox.ResultError{Kind: voicevox.ErrQuery, Code: voicevox.ResultInvalidSpeakerID},
			http.StatusUnprocessableEntity,
			"INVALID_SPEAKER_ID",
		},
		{
			"inference",
			&voicevox.ResultError{Kind: voicevox.ErrSynthesis, Code: voicevox.ResultInference},
			http.StatusInternalServerError,
			"INFERENCE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, &fakeService{err: tt.err}, http.MethodPost, "/tts", `{"text":"a"}`)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if got := resp.Header.Get(bus.HeaderErrorCode); got != tt.code {
				t.Errorf("error code header = %q, want %q", got, tt.code)
			}
			var payload map[string]string
			if err := json.Unmarshal([]byte(body), &payload); err != nil {
				t.Fatalf("error body %q is not JSON: %v", body, err)
			}
			if payload["code"] != tt.code || payload["error"] == "" {
				t.Errorf("payload = %v", payload)
			}
		})
	}
}

// unreachableEngine fails every call; requests must be rejected before it.
type unreachableEngine struct{}

var errUnreachable = errors.New("engine should not be called")

func (unreachableEngine) LoadModel(uint32) error             { return errUnreachable }
func (unreachableEngine) IsModelLoaded(uint32) (bool, error) { return false, errUnreachable }
func (unreachableEngine) AudioQueryWithOptions(string, uint32, voicevox.AudioQueryOptions) (*voicevox.AudioQuery, error) {
	return nil, errUnreachable
}
func (unreachableEngine) SynthesisWithOptions(*voicevox.AudioQuery, uint32, voicevox.SynthesisOptions) ([]byte, error) {
	return nil, errUnreachable
}
func (unreachableEngine) TTSWithOptions(string, uint32, voicevox.TTSOptions) ([]byte, error) {
	return nil, errUnreachable
}

func TestTTS_NULText(t *testing.T) {
	svc := speech.New(unreachableEngine{}, speech.Options{})
	resp, body := do(t, svc, http.MethodPost, "/tts", `{"text":"a\u0000b","speaker_id":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d: %s", resp.StatusCode, http.StatusBadRequest, body)
	}
	if got := resp.Header.Get(bus.HeaderErrorCode); got != "INVALID_TEXT" {
		t.Errorf("error code = %q, want INVALID_TEXT", got)
	}
}

func TestMountMetrics(t *testing.T) {
	app := New(&fakeService{}, fakeCatalog{}, time.Second)
	MountMetrics(app, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = io.WriteString(w, "vvtts_synthesis_requests_total 1\n")
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "vvtts_synthesis_requests_total 1") {
		t.Errorf("unexpected body %q", body)
	}
}
