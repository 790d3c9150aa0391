//go:build nocgo
// +build nocgo

// Package player plays audio clips on the default output device through oto.
package player

import (
	"context"
	"errors"

	"github.com/dgnsrekt/vvtts/internal/audio"
)

// ErrUnavailable is returned when the binary was built without audio output.
var ErrUnavailable = errors.New("audio not available in nocgo build")

// Player is a stub for builds without audio output.
type Player struct{}

// New always fails in nocgo builds.
func New(float64) (*Player, error) {
	return nil, ErrUnavailable
}

// Play implements audio.Player.
func (*Player) Play(context.Context, *audio.Clip) error { return ErrUnavailable }

// Close implements audio.Player.
func (*Player) Close() error { return nil }
