//go:build !nocgo
// +build !nocgo

// Package player plays audio clips on the default output device through oto.
package player

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/vvtts/internal/audio"
)

// oto allows a single context per process, fixed to one format.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat struct{ rate, channels int }
	otoErr    error
)

func device(rate, channels int) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if otoErr != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", otoErr)
			return
		}
		<-ready
		otoFormat.rate, otoFormat.channels = rate, channels
		log.Debug("Audio context ready", "sampleRate", rate, "channels", channels)
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat.rate != rate || otoFormat.channels != channels {
		return nil, fmt.Errorf("audio device opened at %d Hz/%d ch, clip is %d Hz/%d ch",
			otoFormat.rate, otoFormat.channels, rate, channels)
	}
	return otoCtx, nil
}

// Player implements audio.Player on the system output device.
type Player struct {
	mu     sync.Mutex
	volume float64
	closed bool
}

// New returns a Player at the given volume (0.0 to 1.0).
func New(volume float64) (*Player, error) {
	if volume < 0 || volume > 1 {
		return nil, fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	return &Player{volume: volume}, nil
}

// Play implements audio.Player.
func (p *Player) Play(ctx context.Context, clip *audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return audio.ErrPlayerClosed
	}
	if len(clip.PCM) == 0 {
		return nil
	}

	c, err := device(clip.Format.SampleRate, clip.Format.NumChannels)
	if err != nil {
		return err
	}

	// The reader keeps clip.PCM reachable until playback ends.
	op := c.NewPlayer(bytes.NewReader(clip.PCM))
	defer op.Close()
	op.SetVolume(p.volume)
	op.Play()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for op.IsPlaying() {
		select {
		case <-ctx.Done():
			op.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Close implements audio.Player. The shared device stays open for the
// lifetime of the process.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
