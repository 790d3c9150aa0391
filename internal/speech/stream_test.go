package speech

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStream_InOrder(t *testing.T) {
	engine := newFakeEngine()
	svc := New(engine, Options{})

	texts := []string{"一つ目。", "二つ目。", "三つ目。", "四つ目。"}
	reqs := make([]Request, len(texts))
	for i, text := range texts {
		reqs[i] = Request{Text: text, SpeakerID: 1}
	}

	var got []int
	err := svc.Stream(context.Background(), reqs, 2, func(i int, res *Result) error {
		got = append(got, i)
		if len(res.WAV) == 0 {
			t.Errorf("sentence %d has no audio", i)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(got) != 4 || got[0] != 0 || got[3] != 3 {
		t.Errorf("handled %v, want 0..3 in order", got)
	}
	if engine.ttsCalls != 4 {
		t.Errorf("ttsCalls = %d, want 4", engine.ttsCalls)
	}
}

func TestStream_StopsOnRenderError(t *testing.T) {
	svc := New(newFakeEngine(), Options{})
	reqs := []Request{{Text: "一つ目", SpeakerID: 1}, {Text: "  ", SpeakerID: 1}, {Text: "三つ目", SpeakerID: 1}}

	handled := 0
	err := svc.Stream(context.Background(), reqs, 1, func(int, *Result) error {
		handled++
		return nil
	})
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if !strings.HasPrefix(err.Error(), "sentence 2:") {
		t.Errorf("error should name the sentence: %v", err)
	}
	if handled != 1 {
		t.Errorf("handled %d sentences, want 1", handled)
	}
}

func TestStream_StopsOnHandlerError(t *testing.T) {
	svc := New(newFakeEngine(), Options{})
	reqs := []Request{{Text: "一つ目", SpeakerID: 1}, {Text: "二つ目", SpeakerID: 1}, {Text: "三つ目", SpeakerID: 1}}

	stop := errors.New("stop")
	err := svc.Stream(context.Background(), reqs, 3, func(i int, _ *Result) error {
		if i == 1 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want stop", err)
	}
}

func TestStream_Cancelled(t *testing.T) {
	svc := New(newFakeEngine(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Stream(ctx, []Request{{Text: "一つ目", SpeakerID: 1}}, 1, func(int, *Result) error {
		t.Error("handler called with a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
