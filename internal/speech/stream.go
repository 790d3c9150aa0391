package speech

import (
	"context"
	"fmt"
)

// Stream speaks reqs in order and hands each result to fn on the calling
// goroutine. Up to lookahead requests are rendered ahead of the one fn is
// handling, so playback of one sentence overlaps synthesis of the next.
// The first error stops the stream.
func (s *Service) Stream(ctx context.Context, reqs []Request, lookahead int, fn func(i int, res *Result) error) error {
	if lookahead < 1 {
		lookahead = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type rendered struct {
		index int
		res   *Result
		err   error
	}
	results := make(chan rendered, lookahead)

	go func() {
		defer close(results)
		for i, req := range reqs {
			res, err := s.Speak(ctx, req)
			select {
			case results <- rendered{index: i, res: res, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for r := range results {
		if r.err != nil {
			return fmt.Errorf("sentence %d: %w", r.index+1, r.err)
		}
		if err := fn(r.index, r.res); err != nil {
			return err
		}
	}
	return ctx.Err()
}
