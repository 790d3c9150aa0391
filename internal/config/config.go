// Package config is the typed view of the vvtts configuration file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/vvtts/internal/bus"
	"github.com/dgnsrekt/vvtts/internal/cache"
	"github.com/dgnsrekt/vvtts/voicevox"
)

// AppName names the config, cache and data directories.
const AppName = "vvtts"

// CoreConfig controls how the VOICEVOX core is loaded and initialized.
type CoreConfig struct {
	Library       string `yaml:"library"`
	DictDir       string `yaml:"dict_dir"`
	Acceleration  string `yaml:"acceleration"`
	CPUThreads    int    `yaml:"cpu_threads"`
	LoadAllModels bool   `yaml:"load_all_models"`
}

// CacheConfig controls the synthesized audio cache.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Dir              string `yaml:"dir"`
	MemoryMB         int    `yaml:"memory_mb"`
	DiskMB           int    `yaml:"disk_mb"`
	CompressionLevel int    `yaml:"compression_level"`
	TTLDays          int    `yaml:"ttl_days"`
}

// HistoryConfig controls the synthesis history database.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// BusConfig controls the NATS worker started by `vvtts serve`.
type BusConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Embedded         bool     `yaml:"embedded"`
	Port             int      `yaml:"port"`
	Servers          []string `yaml:"servers"`
	Subject          string   `yaml:"subject"`
	Queue            string   `yaml:"queue"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	Token            string   `yaml:"token"`
	ConnectTimeoutMS int      `yaml:"connect_timeout_ms"`
	RequestTimeoutMS int      `yaml:"request_timeout_ms"`
}

// HTTPConfig controls the HTTP API started by `vvtts serve`.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// Metrics exposes Prometheus metrics on GET /metrics.
	Metrics bool `yaml:"metrics"`
}

// PlayerConfig controls local playback.
type PlayerConfig struct {
	Volume float64 `yaml:"volume"`
}

// Config is the full configuration.
type Config struct {
	Speaker      uint32        `yaml:"speaker"`
	MaxTextRunes int           `yaml:"max_text_runes"`
	Core         CoreConfig    `yaml:"core"`
	Cache        CacheConfig   `yaml:"cache"`
	History      HistoryConfig `yaml:"history"`
	Bus          BusConfig     `yaml:"bus"`
	HTTP         HTTPConfig    `yaml:"http"`
	Player       PlayerConfig  `yaml:"player"`
}

// Default returns the built-in configuration. Paths left empty are filled in
// by Resolve.
func Default() Config {
	return Config{
		Speaker:      1,
		MaxTextRunes: 1000,
		Core: CoreConfig{
			DictDir:      "./voicevox_core/open_jtalk_dic_utf_8-1.11",
			Acceleration: "auto",
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemoryMB:         64,
			DiskMB:           512,
			CompressionLevel: 3,
			TTLDays:          30,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Bus: BusConfig{
			Enabled:          true,
			Port:             4222,
			Servers:          []string{"nats://localhost:4222"},
			Subject:          bus.DefaultSubject,
			Queue:            bus.DefaultQueue,
			ConnectTimeoutMS: 2000,
			RequestTimeoutMS: 30000,
		},
		HTTP: HTTPConfig{
			Listen:  "127.0.0.1:50021",
			Metrics: true,
		},
		Player: PlayerConfig{
			Volume: 1.0,
		},
	}
}

// SetDefaults registers Default() with v so unset keys fall back to it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("speaker", d.Speaker)
	v.SetDefault("max_text_runes", d.MaxTextRunes)

	v.SetDefault("core.library", d.Core.Library)
	v.SetDefault("core.dict_dir", d.Core.DictDir)
	// core.acceleration, core.cpu_threads and core.load_all_models have no
	// viper default: IsSet must stay false so the library's own defaults apply.

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", d.Cache.DiskMB)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)
	v.SetDefault("cache.ttl_days", d.Cache.TTLDays)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.retention_days", d.History.RetentionDays)

	v.SetDefault("bus.enabled", d.Bus.Enabled)
	v.SetDefault("bus.embedded", d.Bus.Embedded)
	v.SetDefault("bus.port", d.Bus.Port)
	v.SetDefault("bus.servers", d.Bus.Servers)
	v.SetDefault("bus.subject", d.Bus.Subject)
	v.SetDefault("bus.queue", d.Bus.Queue)
	v.SetDefault("bus.username", d.Bus.Username)
	v.SetDefault("bus.password", d.Bus.Password)
	v.SetDefault("bus.token", d.Bus.Token)
	v.SetDefault("bus.connect_timeout_ms", d.Bus.ConnectTimeoutMS)
	v.SetDefault("bus.request_timeout_ms", d.Bus.RequestTimeoutMS)

	v.SetDefault("http.enabled", d.HTTP.Enabled)
	v.SetDefault("http.listen", d.HTTP.Listen)
	v.SetDefault("http.metrics", d.HTTP.Metrics)

	v.SetDefault("player.volume", d.Player.Volume)
}

// FromViper reads a Config out of v. Keys v does not know keep their
// Default() values.
func FromViper(v *viper.Viper) Config {
	cfg := Default()

	setUint32(v, "speaker", &cfg.Speaker)
	setInt(v, "max_text_runes", &cfg.MaxTextRunes)

	setString(v, "core.library", &cfg.Core.Library)
	setString(v, "core.dict_dir", &cfg.Core.DictDir)
	setString(v, "core.acceleration", &cfg.Core.Acceleration)
	setInt(v, "core.cpu_threads", &cfg.Core.CPUThreads)
	setBool(v, "core.load_all_models", &cfg.Core.LoadAllModels)

	setBool(v, "cache.enabled", &cfg.Cache.Enabled)
	setString(v, "cache.dir", &cfg.Cache.Dir)
	setInt(v, "cache.memory_mb", &cfg.Cache.MemoryMB)
	setInt(v, "cache.disk_mb", &cfg.Cache.DiskMB)
	setInt(v, "cache.compression_level", &cfg.Cache.CompressionLevel)
	setInt(v, "cache.ttl_days", &cfg.Cache.TTLDays)

	setBool(v, "history.enabled", &cfg.History.Enabled)
	setString(v, "history.path", &cfg.History.Path)
	setInt(v, "history.retention_days", &cfg.History.RetentionDays)

	setBool(v, "bus.enabled", &cfg.Bus.Enabled)
	setBool(v, "bus.embedded", &cfg.Bus.Embedded)
	setInt(v, "bus.port", &cfg.Bus.Port)
	if v.IsSet("bus.servers") {
		cfg.Bus.Servers = splitList(v.GetStringSlice("bus.servers"))
	}
	setString(v, "bus.subject", &cfg.Bus.Subject)
	setString(v, "bus.queue", &cfg.Bus.Queue)
	setString(v, "bus.username", &cfg.Bus.Username)
	setString(v, "bus.password", &cfg.Bus.Password)
	setString(v, "bus.token", &cfg.Bus.Token)
	setInt(v, "bus.connect_timeout_ms", &cfg.Bus.ConnectTimeoutMS)
	setInt(v, "bus.request_timeout_ms", &cfg.Bus.RequestTimeoutMS)

	setBool(v, "http.enabled", &cfg.HTTP.Enabled)
	setString(v, "http.listen", &cfg.HTTP.Listen)
	setBool(v, "http.metrics", &cfg.HTTP.Metrics)

	if v.IsSet("player.volume") {
		cfg.Player.Volume = v.GetFloat64("player.volume")
	}
	return cfg
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setUint32(v *viper.Viper, key string, dst *uint32) {
	if v.IsSet(key) {
		*dst = v.GetUint32(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

// splitList accepts both YAML lists and the comma separated form environment
// variables arrive in.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Resolve expands ~ in every path and fills empty cache and history paths
// with the per-user defaults.
func (c *Config) Resolve() error {
	var err error
	if c.Core.Library, err = homedir.Expand(c.Core.Library); err != nil {
		return fmt.Errorf("core.library: %w", err)
	}
	if c.Core.DictDir, err = homedir.Expand(c.Core.DictDir); err != nil {
		return fmt.Errorf("core.dict_dir: %w", err)
	}

	scope := gap.NewScope(gap.User, AppName)
	if c.Cache.Dir == "" {
		dir, err := scope.CacheDir()
		if err != nil {
			return fmt.Errorf("locate cache directory: %w", err)
		}
		c.Cache.Dir = filepath.Join(dir, "audio")
	} else if c.Cache.Dir, err = homedir.Expand(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}

	if c.History.Path == "" {
		p, err := scope.DataPath("history.db")
		if err != nil {
			return fmt.Errorf("locate data directory: %w", err)
		}
		c.History.Path = p
	} else if c.History.Path, err = homedir.Expand(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Core.DictDir == "" {
		return errors.New("core.dict_dir must not be empty")
	}
	if _, err := voicevox.ParseAccelerationMode(c.Core.Acceleration); err != nil {
		return fmt.Errorf("core.acceleration: %w", err)
	}
	if c.Core.CPUThreads < 0 || c.Core.CPUThreads > 0xffff {
		return fmt.Errorf("core.cpu_threads must be between 0 and 65535, got %d", c.Core.CPUThreads)
	}
	if c.MaxTextRunes < 0 {
		return errors.New("max_text_runes must be >= 0")
	}

	if c.Cache.Enabled {
		if c.Cache.MemoryMB < 0 || c.Cache.DiskMB < 0 {
			return errors.New("cache.memory_mb and cache.disk_mb must be >= 0")
		}
		if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
			return fmt.Errorf("cache.compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
		}
		if c.Cache.TTLDays < 0 {
			return errors.New("cache.ttl_days must be >= 0")
		}
	}
	if c.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}

	if c.Bus.Embedded {
		if c.Bus.Port < -1 || c.Bus.Port == 0 || c.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 (or -1 for a random port) when embedded mode is enabled")
		}
	} else if len(c.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if c.Bus.Subject == "" {
		return errors.New("bus.subject must not be empty")
	}

	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return errors.New("http.listen must not be empty when the HTTP API is enabled")
	}

	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		return fmt.Errorf("player.volume must be between 0 and 1, got %.2f", c.Player.Volume)
	}
	return nil
}

// InitializeOptions converts the core section into engine options, starting
// from base (normally voicevox.DefaultInitializeOptions). Only keys for which
// set reports true override base; a nil set overrides all of them.
func (c Config) InitializeOptions(base voicevox.InitializeOptions, set func(key string) bool) (voicevox.InitializeOptions, error) {
	if set == nil {
		set = func(string) bool { return true }
	}
	opts := base
	opts.OpenJTalkDictDir = c.Core.DictDir
	if set("core.acceleration") {
		mode, err := voicevox.ParseAccelerationMode(c.Core.Acceleration)
		if err != nil {
			return voicevox.InitializeOptions{}, err
		}
		opts.AccelerationMode = mode
	}
	if set("core.cpu_threads") {
		opts.CPUNumThreads = uint16(c.Core.CPUThreads) //nolint:gosec
	}
	if set("core.load_all_models") {
		opts.LoadAllModels = c.Core.LoadAllModels
	}
	return opts, nil
}

// CacheStore converts the cache section. A disabled cache has both tiers off.
func (c Config) CacheStore() cache.Config {
	if !c.Cache.Enabled {
		return cache.Config{}
	}
	cfg := cache.Config{
		MemoryCapacity:   int64(c.Cache.MemoryMB) << 20,
		DiskCapacity:     int64(c.Cache.DiskMB) << 20,
		CompressionLevel: c.Cache.CompressionLevel,
		TTL:              time.Duration(c.Cache.TTLDays) * 24 * time.Hour,
	}
	if cfg.DiskCapacity > 0 {
		cfg.DiskPath = c.Cache.Dir
	}
	return cfg
}

// BusClient converts the bus section.
func (c Config) BusClient() bus.Config {
	return bus.Config{
		Servers:        c.Bus.Servers,
		Subject:        c.Bus.Subject,
		Queue:          c.Bus.Queue,
		Token:          c.Bus.Token,
		Username:       c.Bus.Username,
		Password:       c.Bus.Password,
		ConnectTimeout: time.Duration(c.Bus.ConnectTimeoutMS) * time.Millisecond,
		RequestTimeout: time.Duration(c.Bus.RequestTimeoutMS) * time.Millisecond,
		Embedded:       c.Bus.Embedded,
		EmbeddedPort:   c.Bus.Port,
	}
}

// HistoryRetention is the age past which history records are pruned. Zero
// keeps everything.
func (c Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
