package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# default speaker (style) ID; see "vvtts speakers"
speaker: 1
# reject longer input (0 disables the limit)
max_text_runes: 1000

# VOICEVOX core
core:
  # path to libvoicevox_core; empty uses the system library search path
  library: ""
  # Open JTalk dictionary directory
  dict_dir: "./voicevox_core/open_jtalk_dic_utf_8-1.11"
  # the keys below default to the core library's own settings
  # inference device: auto, cpu or gpu
  # acceleration: "auto"
  # CPU threads (0 lets the library decide)
  # cpu_threads: 0
  # load every voice model at startup instead of on first use
  # load_all_models: false

# synthesized audio cache
cache:
  enabled: true
  # empty uses the per-user cache directory
  dir: ""
  memory_mb: 64
  disk_mb: 512
  # zstd level for the disk tier (0 stores raw WAV)
  compression_level: 3
  ttl_days: 30

# synthesis history
history:
  enabled: true
  # empty uses the per-user data directory
  path: ""
  retention_days: 90

# NATS request/reply worker ("vvtts serve")
bus:
  enabled: true
  # run an in-process NATS server on "port" instead of dialing "servers"
  embedded: false
  port: 4222
  servers: ["nats://localhost:4222"]
  subject: "voicevox.tts"
  queue: "vvtts"
  connect_timeout_ms: 2000
  request_timeout_ms: 30000

# HTTP API ("vvtts serve")
http:
  enabled: false
  listen: "127.0.0.1:50021"
  # Prometheus metrics on GET /metrics
  metrics: true

# local playback (--play)
player:
  # 0.0 to 1.0
  volume: 1.0
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the vvtts config file",
	Long:    paragraph(fmt.Sprintf("\n%s the vvtts config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("vvtts config\nvvtts config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("vvtts", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  paragraph(fmt.Sprintf("\n%s the configuration after merging the config file, VVTTS_* environment variables and flags.", keyword("Print"))),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("unable to encode config: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
