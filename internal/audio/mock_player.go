package audio

import (
	"context"
	"errors"
	"sync"
)

// Player plays a decoded clip to completion.
type Player interface {
	// Play blocks until the clip has finished or ctx is done.
	Play(ctx context.Context, clip *Clip) error
	Close() error
}

// ErrPlayerClosed is returned by Play after Close.
var ErrPlayerClosed = errors.New("audio: player is closed")

// MockPlayer records clips instead of producing sound.
type MockPlayer struct {
	mu     sync.Mutex
	clips  []*Clip
	closed bool

	// Err, when set, is returned from every Play call.
	Err error
	// OnPlay is called with each clip before Play returns.
	OnPlay func(*Clip)
}

// NewMockPlayer returns an empty MockPlayer.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play implements Player.
func (mp *MockPlayer) Play(ctx context.Context, clip *Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.closed {
		return ErrPlayerClosed
	}
	if mp.Err != nil {
		return mp.Err
	}
	mp.clips = append(mp.clips, clip)
	if mp.OnPlay != nil {
		mp.OnPlay(clip)
	}
	return nil
}

// Close implements Player.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.closed = true
	return nil
}

// Clips returns the clips played so far.
func (mp *MockPlayer) Clips() []*Clip {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]*Clip(nil), mp.clips...)
}
