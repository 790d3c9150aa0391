package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/vvtts/internal/audio"
	"github.com/dgnsrekt/vvtts/internal/audio/player"
	"github.com/dgnsrekt/vvtts/internal/cache"
	"github.com/dgnsrekt/vvtts/internal/config"
	"github.com/dgnsrekt/vvtts/internal/history"
	"github.com/dgnsrekt/vvtts/internal/speech"
	"github.com/dgnsrekt/vvtts/voicevox"
)

// app holds everything a command may need. Fields are nil when the command
// did not ask for them or the feature is disabled.
type app struct {
	cfg     config.Config
	core    *voicevox.Core
	cache   *cache.Store
	history *history.Store
	player  audio.Player
	svc     *speech.Service
}

type appOptions struct {
	core    bool
	cache   bool
	history bool
	player  bool
}

// loadConfig returns the resolved and validated configuration.
func loadConfig() (config.Config, error) {
	cfg := config.FromViper(viper.GetViper())
	if err := cfg.Resolve(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if opts.core {
		if err := voicevox.LoadLibrary(cfg.Core.Library); err != nil {
			return nil, fmt.Errorf("unable to load VOICEVOX core: %w", err)
		}
		initOpts, err := cfg.InitializeOptions(voicevox.DefaultInitializeOptions(), viper.IsSet)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		a.core, err = voicevox.New(initOpts)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize VOICEVOX core: %w", err)
		}
		log.Info("VOICEVOX core initialized",
			"dict", cfg.Core.DictDir,
			"acceleration", initOpts.AccelerationMode,
			"duration", time.Since(start))
	}

	if opts.cache && cfg.Cache.Enabled {
		a.cache, err = cache.Open(cfg.CacheStore())
		if err != nil {
			return nil, fmt.Errorf("unable to open cache: %w", err)
		}
	}

	if opts.history && cfg.History.Enabled {
		a.history, err = history.Open(ctx, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("unable to open history: %w", err)
		}
		if keep := cfg.HistoryRetention(); keep > 0 {
			if n, err := a.history.Prune(ctx, time.Now().Add(-keep)); err != nil {
				log.Warn("Failed to prune history", "error", err)
			} else if n > 0 {
				log.Debug("Pruned history", "records", n)
			}
		}
	}

	if opts.player {
		p, err := player.New(cfg.Player.Volume)
		if err != nil {
			return nil, fmt.Errorf("unable to open audio device: %w", err)
		}
		a.player = p
	}

	if a.core != nil {
		a.svc = speech.New(a.core, speech.Options{
			Cache:        a.cache,
			History:      a.history,
			Player:       a.player,
			MaxTextRunes: cfg.MaxTextRunes,
		})
	}
	return a, nil
}

// Close releases everything in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	if a.player != nil {
		errs = append(errs, a.player.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.core != nil {
		errs = append(errs, a.core.Close())
	}
	return errors.Join(errs...)
}
