// Package speech puts caching, history and playback around a VOICEVOX engine.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"

	"github.com/dgnsrekt/vvtts/internal/audio"
	"github.com/dgnsrekt/vvtts/internal/cache"
	"github.com/dgnsrekt/vvtts/internal/history"
	"github.com/dgnsrekt/vvtts/voicevox"
)

// Common service errors.
var (
	ErrEmptyText   = errors.New("speech: text is empty")
	ErrTextTooLong = errors.New("speech: text is too long")
	ErrNoPlayer    = errors.New("speech: no audio player configured")
)

// Engine is the subset of *voicevox.Core the service drives.
type Engine interface {
	LoadModel(speakerID uint32) error
	IsModelLoaded(speakerID uint32) (bool, error)
	AudioQueryWithOptions(text string, speakerID uint32, opts voicevox.AudioQueryOptions) (*voicevox.AudioQuery, error)
	SynthesisWithOptions(query *voicevox.AudioQuery, speakerID uint32, opts voicevox.SynthesisOptions) ([]byte, error)
	TTSWithOptions(text string, speakerID uint32, opts voicevox.TTSOptions) ([]byte, error)
}

var _ Engine = (*voicevox.Core)(nil)

// Options wires optional collaborators into a Service. Nil fields disable
// the corresponding feature.
type Options struct {
	Cache   *cache.Store
	History *history.Store
	Player  audio.Player

	// MaxTextRunes rejects longer input. Zero means no limit.
	MaxTextRunes int
}

// Service renders speech through an Engine.
type Service struct {
	engine Engine
	opts   Options

	mu     sync.Mutex
	loaded map[uint32]bool
	stats  Stats
}

// New returns a Service around engine.
func New(engine Engine, opts Options) *Service {
	return &Service{
		engine: engine,
		opts:   opts,
		loaded: make(map[uint32]bool),
	}
}

// Request describes one utterance.
type Request struct {
	Text      string
	SpeakerID uint32

	// Kana treats Text as AquesTalk-style kana.
	Kana bool
	// DisableUpspeak turns off the rising pitch on questions.
	DisableUpspeak bool
	// Adjust overrides prosody fields. When empty the one-shot TTS call is used.
	Adjust voicevox.Adjustments

	// Output is recorded in the history only.
	Output string
}

// Result is a rendered utterance.
type Result struct {
	WAV      []byte
	Info     audio.Info
	CacheHit bool
	Elapsed  time.Duration
	// Query is the plan that was rendered, when one was built.
	Query *voicevox.AudioQuery
}

// Stats counts requests handled by a Service.
type Stats struct {
	Requests  int64
	CacheHits int64
	Errors    int64
	Audio     time.Duration
}

// Stats returns a snapshot of the counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// NormalizeText applies NFC normalization and trims surrounding space.
func NormalizeText(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

func (s *Service) checkText(text string) (string, error) {
	text = NormalizeText(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if strings.ContainsRune(text, 0) {
		return "", voicevox.ErrInvalidText
	}
	if s.opts.MaxTextRunes > 0 {
		if n := len([]rune(text)); n > s.opts.MaxTextRunes {
			return "", fmt.Errorf("%w: %d runes (limit %d)", ErrTextTooLong, n, s.opts.MaxTextRunes)
		}
	}
	return text, nil
}

// EnsureModel loads the model for speakerID unless it is already loaded.
func (s *Service) EnsureModel(ctx context.Context, speakerID uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	done := s.loaded[speakerID]
	s.mu.Unlock()
	if done {
		return nil
	}

	loaded, err := s.engine.IsModelLoaded(speakerID)
	if err != nil {
		return err
	}
	if !loaded {
		log.Debug("Loading voice model", "speaker", speakerID)
		if err := s.engine.LoadModel(speakerID); err != nil {
			return fmt.Errorf("load model for speaker %d: %w", speakerID, err)
		}
	}

	s.mu.Lock()
	s.loaded[speakerID] = true
	s.mu.Unlock()
	return nil
}

// Query builds the audio query for text.
func (s *Service) Query(ctx context.Context, text string, speakerID uint32, kana bool) (*voicevox.AudioQuery, error) {
	text, err := s.checkText(text)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureModel(ctx, speakerID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := s.engine.AudioQueryWithOptions(text, speakerID, voicevox.AudioQueryOptions{Kana: kana})
	if err != nil {
		return nil, fmt.Errorf("audio query: %w", err)
	}
	return q, nil
}

// Speak renders req, serving it from the cache when possible.
func (s *Service) Speak(ctx context.Context, req Request) (*Result, error) {
	text, err := s.checkText(req.Text)
	if err != nil {
		return nil, err
	}

	key := cache.Key(cache.KindTTS, req.SpeakerID, requestOptions(req), []byte(text))
	m := startSynthesis("tts", req.SpeakerID, text)

	res, err := s.cached(ctx, key, func() (*Result, error) {
		if err := s.EnsureModel(ctx, req.SpeakerID); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if req.Adjust.Empty() {
			wav, err := s.engine.TTSWithOptions(text, req.SpeakerID, voicevox.TTSOptions{
				Kana:                       req.Kana,
				EnableInterrogativeUpspeak: !req.DisableUpspeak,
			})
			if err != nil {
				return nil, fmt.Errorf("tts: %w", err)
			}
			return &Result{WAV: wav}, nil
		}

		q, err := s.engine.AudioQueryWithOptions(text, req.SpeakerID, voicevox.AudioQueryOptions{Kana: req.Kana})
		if err != nil {
			return nil, fmt.Errorf("audio query: %w", err)
		}
		req.Adjust.Apply(q)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wav, err := s.engine.SynthesisWithOptions(q, req.SpeakerID, voicevox.SynthesisOptions{
			EnableInterrogativeUpspeak: !req.DisableUpspeak,
		})
		if err != nil {
			return nil, fmt.Errorf("synthesis: %w", err)
		}
		return &Result{WAV: wav, Query: q}, nil
	})
	s.finish(ctx, m, "tts", req.SpeakerID, text, kanaOf(res), req.Output, res, err)
	return res, err
}

// Render synthesizes an existing query, serving it from the cache when possible.
func (s *Service) Render(ctx context.Context, q *voicevox.AudioQuery, speakerID uint32, upspeak bool, output string) (*Result, error) {
	data, err := q.Encode()
	if err != nil {
		return nil, err
	}

	key := cache.Key(cache.KindSynthesis, speakerID, fmt.Sprintf("upspeak=%t", upspeak), data)
	m := startSynthesis("synthesis", speakerID, q.Kana)

	res, err := s.cached(ctx, key, func() (*Result, error) {
		if err := s.EnsureModel(ctx, speakerID); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wav, err := s.engine.SynthesisWithOptions(q, speakerID, voicevox.SynthesisOptions{EnableInterrogativeUpspeak: upspeak})
		if err != nil {
			return nil, fmt.Errorf("synthesis: %w", err)
		}
		return &Result{WAV: wav, Query: q}, nil
	})
	s.finish(ctx, m, "synthesis", speakerID, q.Kana, q.Kana, output, res, err)
	return res, err
}

// cached returns the entry for key or runs render and stores its output.
func (s *Service) cached(ctx context.Context, key string, render func() (*Result, error)) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	if s.opts.Cache != nil {
		if wav, level, ok := s.opts.Cache.Get(key); ok {
			log.Debug("Cache hit", "key", key, "level", level, "size", len(wav))
			return s.describe(&Result{WAV: wav, CacheHit: true}, start), nil
		}
		log.Debug("Cache miss", "key", key)
	}

	res, err := render()
	if err != nil {
		return nil, err
	}
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Put(key, res.WAV); err != nil {
			log.Warn("Failed to cache audio", "key", key, "error", err)
		}
	}
	return s.describe(res, start), nil
}

func (s *Service) describe(res *Result, start time.Time) *Result {
	res.Elapsed = time.Since(start)
	info, err := audio.Inspect(res.WAV)
	if err != nil {
		log.Warn("Engine output is not a readable WAV", "bytes", len(res.WAV), "error", err)
	}
	res.Info = info
	return res
}

func (s *Service) finish(ctx context.Context, m *metrics, kind string, speakerID uint32, text, kana, output string, res *Result, err error) {
	s.mu.Lock()
	s.stats.Requests++
	if err != nil {
		s.stats.Errors++
	} else {
		s.stats.Audio += res.Info.Duration
		if res.CacheHit {
			s.stats.CacheHits++
		}
	}
	s.mu.Unlock()

	if err != nil {
		m.end(ctx, 0, false, err)
		return
	}
	m.end(ctx, len(res.WAV), res.CacheHit, nil)

	if s.opts.History == nil {
		return
	}
	// Record even when the caller's context was cancelled after rendering.
	_, herr := s.opts.History.Append(context.WithoutCancel(ctx), history.Record{
		Kind:      kind,
		SpeakerID: speakerID,
		Text:      text,
		Kana:      kana,
		Bytes:     len(res.WAV),
		Duration:  res.Info.Duration,
		Elapsed:   res.Elapsed,
		CacheHit:  res.CacheHit,
		Output:    output,
	})
	if herr != nil {
		log.Warn("Failed to record history", "error", herr)
	}
}

// Play decodes wav and plays it on the configured player.
func (s *Service) Play(ctx context.Context, wav []byte) error {
	if s.opts.Player == nil {
		return ErrNoPlayer
	}
	clip, err := audio.Decode(wav)
	if err != nil {
		return err
	}
	log.Debug("Playing audio", "duration", clip.Duration(), "sampleRate", clip.Format.SampleRate)
	return s.opts.Player.Play(ctx, clip)
}

func kanaOf(res *Result) string {
	if res == nil || res.Query == nil {
		return ""
	}
	return res.Query.Kana
}

// requestOptions renders everything besides text and speaker that changes the output.
func requestOptions(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "kana=%t,upspeak=%t", req.Kana, !req.DisableUpspeak)
	a := req.Adjust
	for _, f := range []struct {
		name string
		v    *float32
	}{
		{"speed", a.SpeedScale},
		{"pitch", a.PitchScale},
		{"intonation", a.IntonationScale},
		{"volume", a.VolumeScale},
		{"pre", a.PrePhonemeLength},
		{"post", a.PostPhonemeLength},
	} {
		if f.v != nil {
			fmt.Fprintf(&b, ",%s=%g", f.name, *f.v)
		}
	}
	if a.OutputStereo != nil {
		fmt.Fprintf(&b, ",stereo=%t", *a.OutputStereo)
	}
	return b.String()
}
