package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// logConfig is read from the environment before flags are parsed so that
// config loading itself can be logged.
type logConfig struct {
	Level  string `env:"VVTTS_LOG_LEVEL" envDefault:"info"`
	File   string `env:"VVTTS_LOG_FILE"`
	Stderr bool   `env:"VVTTS_LOG_STDERR"`
}

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "vvtts").CacheDir()
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return filepath.Join(dir, "vvtts.log"), nil
}

func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("VVTTS_LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if cfg.Stderr {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	// Log to file, if possible
	log.SetOutput(io.Discard)
	logFile := cfg.File
	if logFile == "" {
		logFile, err = getLogFilePath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		// log disabled
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		// log disabled
		return func() error { return nil }, nil
	}
	log.SetOutput(f)
	return f.Close, nil
}
