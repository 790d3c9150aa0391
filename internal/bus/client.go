// Package bus exposes the speech service over NATS request/reply.
package bus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// Config holds the connection settings.
type Config struct {
	Servers        []string      `yaml:"servers"`
	Subject        string        `yaml:"subject"`
	Queue          string        `yaml:"queue"`
	Token          string        `yaml:"token"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Embedded starts an in-process server on EmbeddedPort instead of dialing Servers.
	Embedded     bool `yaml:"embedded"`
	EmbeddedPort int  `yaml:"embedded_port"`
}

// Defaults for an unset Config.
const (
	DefaultSubject = "voicevox.tts"
	DefaultQueue   = "vvtts"
)

// Connect dials the configured servers.
func Connect(cfg Config) (*nats.Conn, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("vvtts"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("Disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("Reconnected to NATS", "server", c.ConnectedUrl())
		}),
	}
	if cfg.ConnectTimeout > 0 {
		options = append(options, nats.Timeout(cfg.ConnectTimeout))
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("Connected to NATS", "servers", url)
	return conn, nil
}
