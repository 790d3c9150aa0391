package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/dgnsrekt/vvtts/internal/speech"
	"github.com/dgnsrekt/vvtts/voicevox"
)

// Reply headers.
const (
	HeaderContentType = "Content-Type"
	HeaderCacheHit    = "Vvtts-Cache-Hit"
	HeaderDuration    = "Vvtts-Duration-Ms"
	HeaderError       = "Vvtts-Error"
	HeaderErrorCode   = "Vvtts-Error-Code"
)

// ErrBadRequest marks a request that could not be decoded.
var ErrBadRequest = errors.New("bus: bad request")

// Speaker renders speech. *speech.Service satisfies it.
type Speaker interface {
	Speak(ctx context.Context, req speech.Request) (*speech.Result, error)
	Render(ctx context.Context, q *voicevox.AudioQuery, speakerID uint32, upspeak bool, output string) (*speech.Result, error)
}

var _ Speaker = (*speech.Service)(nil)

// Request is the JSON body of a synthesis request.
//
// When Query is set it is rendered as-is and Text, Kana and Adjust are ignored.
type Request struct {
	Text           string          `json:"text"`
	SpeakerID      uint32          `json:"speaker_id"`
	Kana           bool            `json:"kana,omitempty"`
	DisableUpspeak bool            `json:"disable_upspeak,omitempty"`
	Adjust         Adjustments     `json:"adjustments,omitzero"`
	Query          json.RawMessage `json:"query,omitempty"`
}

// Adjustments mirrors voicevox.Adjustments on the wire.
type Adjustments struct {
	SpeedScale        *float32 `json:"speed_scale,omitempty"`
	PitchScale        *float32 `json:"pitch_scale,omitempty"`
	IntonationScale   *float32 `json:"intonation_scale,omitempty"`
	VolumeScale       *float32 `json:"volume_scale,omitempty"`
	PrePhonemeLength  *float32 `json:"pre_phoneme_length,omitempty"`
	PostPhonemeLength *float32 `json:"post_phoneme_length,omitempty"`
	OutputStereo      *bool    `json:"output_stereo,omitempty"`
}

func (a Adjustments) native() voicevox.Adjustments {
	return voicevox.Adjustments{
		SpeedScale:        a.SpeedScale,
		PitchScale:        a.PitchScale,
		IntonationScale:   a.IntonationScale,
		VolumeScale:       a.VolumeScale,
		PrePhonemeLength:  a.PrePhonemeLength,
		PostPhonemeLength: a.PostPhonemeLength,
		OutputStereo:      a.OutputStereo,
	}
}

// Worker answers synthesis requests on a subject.
type Worker struct {
	speaker Speaker
	subject string
	queue   string
	timeout time.Duration

	mu  sync.Mutex
	sub *nats.Subscription
	ctx context.Context
}

// NewWorker returns a Worker using cfg's subject, queue and request timeout.
func NewWorker(speaker Speaker, cfg Config) *Worker {
	w := &Worker{
		speaker: speaker,
		subject: cfg.Subject,
		queue:   cfg.Queue,
		timeout: cfg.RequestTimeout,
	}
	if w.subject == "" {
		w.subject = DefaultSubject
	}
	if w.queue == "" {
		w.queue = DefaultQueue
	}
	return w
}

// Subject returns the subject the worker listens on.
func (w *Worker) Subject() string { return w.subject }

// Start subscribes on conn. Requests are handled one at a time; ctx bounds
// every request.
func (w *Worker) Start(ctx context.Context, conn *nats.Conn) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub != nil {
		return errors.New("bus: worker already started")
	}

	w.ctx = ctx
	sub, err := conn.QueueSubscribe(w.subject, w.queue, w.onMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", w.subject, err)
	}
	w.sub = sub

	log.Info("Speech worker listening", "subject", w.subject, "queue", w.queue)
	return nil
}

// Close drains the subscription.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub == nil {
		return nil
	}
	err := w.sub.Drain()
	w.sub = nil
	return err
}

func (w *Worker) onMessage(msg *nats.Msg) {
	if msg.Reply == "" {
		log.Warn("Dropping request without reply subject", "subject", msg.Subject)
		return
	}

	ctx := w.ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	reply := w.handle(ctx, msg.Data)
	if err := msg.RespondMsg(reply); err != nil {
		log.Error("Failed to send reply", "subject", msg.Subject, "error", err)
	}
}

// handle turns one request body into a reply message.
func (w *Worker) handle(ctx context.Context, data []byte) *nats.Msg {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorReply(fmt.Errorf("%w: %v", ErrBadRequest, err))
	}

	res, err := Dispatch(ctx, w.speaker, req, "nats")
	if err != nil {
		return errorReply(err)
	}

	reply := nats.NewMsg("")
	reply.Data = res.WAV
	reply.Header.Set(HeaderContentType, "audio/wav")
	reply.Header.Set(HeaderCacheHit, strconv.FormatBool(res.CacheHit))
	reply.Header.Set(HeaderDuration, strconv.FormatInt(res.Info.Duration.Milliseconds(), 10))
	return reply
}

// Dispatch renders req on speaker. A request carrying a query is rendered
// as-is; otherwise its text goes through Speak. output is recorded in history.
func Dispatch(ctx context.Context, speaker Speaker, req Request, output string) (*speech.Result, error) {
	if len(req.Query) > 0 {
		q, err := voicevox.DecodeAudioQuery(req.Query)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return speaker.Render(ctx, q, req.SpeakerID, !req.DisableUpspeak, output)
	}
	return speaker.Speak(ctx, speech.Request{
		Text:           req.Text,
		SpeakerID:      req.SpeakerID,
		Kana:           req.Kana,
		DisableUpspeak: req.DisableUpspeak,
		Adjust:         req.Adjust.native(),
		Output:         output,
	})
}

func errorReply(err error) *nats.Msg {
	log.Warn("Speech request failed", "error", err)
	reply := nats.NewMsg("")
	reply.Header.Set(HeaderError, err.Error())
	reply.Header.Set(HeaderErrorCode, ErrorCode(err))
	return reply
}

// ErrorCode classifies err for clients: BAD_REQUEST, INVALID_TEXT, TIMEOUT,
// UNAVAILABLE, the native result code name, or INTERNAL.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return "BAD_REQUEST"
	case errors.Is(err, speech.ErrEmptyText), errors.Is(err, speech.ErrTextTooLong),
		errors.Is(err, voicevox.ErrInvalidText):
		return "INVALID_TEXT"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, voicevox.ErrFinalized):
		return "UNAVAILABLE"
	}
	if code, ok := voicevox.CodeOf(err); ok {
		return code.String()
	}
	return "INTERNAL"
}

// Synthesize sends req to subject and returns the WAV reply. It is the client
// side of Worker.
func Synthesize(ctx context.Context, conn *nats.Conn, subject string, req Request) ([]byte, nats.Header, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	msg, err := conn.RequestWithContext(ctx, subject, body)
	if err != nil {
		return nil, nil, fmt.Errorf("request %s: %w", subject, err)
	}
	if e := msg.Header.Get(HeaderError); e != "" {
		return nil, msg.Header, fmt.Errorf("%s: %s", msg.Header.Get(HeaderErrorCode), e)
	}
	return msg.Data, msg.Header, nil
}
