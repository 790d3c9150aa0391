package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/vvtts/voicevox"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("vvtts")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if yaml != "" {
		path := filepath.Join(t.TempDir(), "vvtts.yml")
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatal(err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			t.Fatalf("ReadInConfig() error = %v", err)
		}
	}
	return v
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestFromViper_Defaults(t *testing.T) {
	cfg := FromViper(newViper(t, ""))
	d := Default()
	if cfg.Speaker != d.Speaker || cfg.Core.DictDir != d.Core.DictDir {
		t.Errorf("FromViper() = %+v, want defaults", cfg)
	}
	if len(cfg.Bus.Servers) != 1 || cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Errorf("servers = %v", cfg.Bus.Servers)
	}
	if cfg.Player.Volume != 1.0 {
		t.Errorf("volume = %v", cfg.Player.Volume)
	}
}

func TestFromViper_File(t *testing.T) {
	cfg := FromViper(newViper(t, `
speaker: 3
core:
  dict_dir: /opt/dict
  acceleration: gpu
  cpu_threads: 4
cache:
  enabled: false
bus:
  servers: [nats://a:4222, nats://b:4222]
  subject: speech.ja
http:
  enabled: true
  listen: ":8080"
player:
  volume: 0.5
`))

	if cfg.Speaker != 3 {
		t.Errorf("speaker = %d, want 3", cfg.Speaker)
	}
	if cfg.Core.DictDir != "/opt/dict" || cfg.Core.Acceleration != "gpu" || cfg.Core.CPUThreads != 4 {
		t.Errorf("core = %+v", cfg.Core)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled")
	}
	if cfg.Cache.MemoryMB != 64 {
		t.Errorf("unset cache.memory_mb = %d, want default 64", cfg.Cache.MemoryMB)
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Subject != "speech.ja" {
		t.Errorf("bus = %+v", cfg.Bus)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Listen != ":8080" {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.Player.Volume != 0.5 {
		t.Errorf("volume = %v", cfg.Player.Volume)
	}
}

func TestFromViper_EnvOverrides(t *testing.T) {
	t.Setenv("VVTTS_SPEAKER", "8")
	t.Setenv("VVTTS_CORE_ACCELERATION", "cpu")
	t.Setenv("VVTTS_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VVTTS_CACHE_TTL_DAYS", "7")

	cfg := FromViper(newViper(t, "speaker: 2\n"))

	if cfg.Speaker != 8 {
		t.Errorf("speaker = %d, want env value 8", cfg.Speaker)
	}
	if cfg.Core.Acceleration != "cpu" {
		t.Errorf("acceleration = %q", cfg.Core.Acceleration)
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Servers[1] != "nats://two:4222" {
		t.Errorf("servers = %q", cfg.Bus.Servers)
	}
	if cfg.Cache.TTLDays != 7 {
		t.Errorf("ttl_days = %d", cfg.Cache.TTLDays)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty dict dir", func(c *Config) { c.Core.DictDir = "" }, "core.dict_dir"},
		{"bad acceleration", func(c *Config) { c.Core.Acceleration = "tpu" }, "core.acceleration"},
		{"too many threads", func(c *Config) { c.Core.CPUThreads = 70000 }, "core.cpu_threads"},
		{"negative text limit", func(c *Config) { c.MaxTextRunes = -1 }, "max_text_runes"},
		{"compression level", func(c *Config) { c.Cache.CompressionLevel = 30 }, "cache.compression_level"},
		{"negative ttl", func(c *Config) { c.Cache.TTLDays = -1 }, "cache.ttl_days"},
		{"negative retention", func(c *Config) { c.History.RetentionDays = -2 }, "history.retention_days"},
		{"no servers", func(c *Config) { c.Bus.Servers = nil }, "bus.servers"},
		{"embedded bad port", func(c *Config) { c.Bus.Embedded = true; c.Bus.Port = 0 }, "bus.port"},
		{"empty subject", func(c *Config) { c.Bus.Subject = "" }, "bus.subject"},
		{"http without listen", func(c *Config) { c.HTTP.Enabled = true; c.HTTP.Listen = "" }, "http.listen"},
		{"loud", func(c *Config) { c.Player.Volume = 1.5 }, "player.volume"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}

	t.Run("disabled cache skips cache checks", func(t *testing.T) {
		cfg := Default()
		cfg.Cache.Enabled = false
		cfg.Cache.CompressionLevel = 99
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})

	t.Run("embedded ignores servers", func(t *testing.T) {
		cfg := Default()
		cfg.Bus.Embedded = true
		cfg.Bus.Servers = nil
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestResolve(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	cfg := Default()
	cfg.Core.DictDir = "~/dict"
	cfg.Cache.Dir = "~/cache"
	cfg.History.Path = "/var/lib/vvtts/history.db"
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if cfg.Core.DictDir != filepath.Join(home, "dict") {
		t.Errorf("dict dir = %q", cfg.Core.DictDir)
	}
	if cfg.Cache.Dir != filepath.Join(home, "cache") {
		t.Errorf("cache dir = %q", cfg.Cache.Dir)
	}
	if cfg.History.Path != "/var/lib/vvtts/history.db" {
		t.Errorf("history path = %q", cfg.History.Path)
	}

	empty := Default()
	if err := empty.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if empty.Cache.Dir == "" || empty.History.Path == "" {
		t.Errorf("Resolve() left default paths empty: %+v %+v", empty.Cache, empty.History)
	}
	if filepath.Base(empty.History.Path) != "history.db" {
		t.Errorf("history path = %q", empty.History.Path)
	}
}

func TestInitializeOptions_KeepsLibraryDefaults(t *testing.T) {
	base := voicevox.InitializeOptions{
		AccelerationMode: voicevox.AccelerationGPU,
		CPUNumThreads:    4,
		LoadAllModels:    true,
	}

	v := newViper(t, "core:\n  cpu_threads: 2\n")
	cfg := FromViper(v)
	opts, err := cfg.InitializeOptions(base, v.IsSet)
	if err != nil {
		t.Fatalf("InitializeOptions() error = %v", err)
	}
	want := voicevox.InitializeOptions{
		AccelerationMode: voicevox.AccelerationGPU,
		CPUNumThreads:    2,
		LoadAllModels:    true,
		OpenJTalkDictDir: cfg.Core.DictDir,
	}
	if opts != want {
		t.Errorf("InitializeOptions() = %+v, want %+v", opts, want)
	}

	t.Setenv("VVTTS_CORE_ACCELERATION", "cpu")
	v = newViper(t, "")
	opts, err = FromViper(v).InitializeOptions(base, v.IsSet)
	if err != nil {
		t.Fatalf("InitializeOptions() error = %v", err)
	}
	if opts.AccelerationMode != voicevox.AccelerationCPU || opts.CPUNumThreads != 4 || !opts.LoadAllModels {
		t.Errorf("env override: InitializeOptions() = %+v", opts)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Core.Acceleration = "GPU"
	cfg.Core.CPUThreads = 2
	cfg.Cache.Dir = "/tmp/vvtts-cache"

	opts, err := cfg.InitializeOptions(voicevox.InitializeOptions{}, nil)
	if err != nil {
		t.Fatalf("InitializeOptions() error = %v", err)
	}
	if opts.AccelerationMode != voicevox.AccelerationGPU || opts.CPUNumThreads != 2 || opts.OpenJTalkDictDir != cfg.Core.DictDir {
		t.Errorf("InitializeOptions() = %+v", opts)
	}

	cc := cfg.CacheStore()
	if cc.MemoryCapacity != 64<<20 || cc.DiskCapacity != 512<<20 || cc.DiskPath != "/tmp/vvtts-cache" {
		t.Errorf("CacheStore() = %+v", cc)
	}
	if cc.TTL != 30*24*time.Hour {
		t.Errorf("TTL = %v", cc.TTL)
	}

	cfg.Cache.Enabled = false
	if cc := cfg.CacheStore(); cc.MemoryCapacity != 0 || cc.DiskCapacity != 0 {
		t.Errorf("disabled CacheStore() = %+v", cc)
	}

	bc := cfg.BusClient()
	if bc.ConnectTimeout != 2*time.Second || bc.RequestTimeout != 30*time.Second || bc.Subject != "voicevox.tts" {
		t.Errorf("BusClient() = %+v", bc)
	}

	if got := cfg.HistoryRetention(); got != 90*24*time.Hour {
		t.Errorf("HistoryRetention() = %v", got)
	}
}
