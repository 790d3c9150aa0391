// Package main provides the entry point for the vvtts CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/vvtts/internal/config"
	"github.com/dgnsrekt/vvtts/internal/speech"
	"github.com/dgnsrekt/vvtts/voicevox"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	output     string
	play       bool
	kana       bool
	noUpspeak  bool
	noCache    bool

	speedScale        float32
	pitchScale        float32
	intonationScale   float32
	volumeScale       float32
	prePhonemeLength  float32
	postPhonemeLength float32
	stereo            bool

	rootCmd = &cobra.Command{
		Use:   "vvtts [TEXT]",
		Short: "Japanese text-to-speech on the CLI, powered by VOICEVOX",
		Long: paragraph(
			fmt.Sprintf("\nSpeak Japanese text with the %s engine. Text is read from the arguments or from stdin.", keyword("VOICEVOX core")),
		),
		Example: paragraph(
			"vvtts こんにちは\n" +
				"vvtts -s 3 -o hello.wav こんにちは\n" +
				"echo ずんだもんなのだ | vvtts --play --speed 1.2",
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}
	if noCache {
		viper.Set("cache.enabled", false)
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// readText joins args, or reads stdin when there are none.
func readText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if yes, err := stdinIsPipe(); err != nil {
		return "", err
	} else if !yes {
		return "", errors.New("no text given: pass it as an argument or pipe it to stdin")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("unable to read from stdin: %w", err)
	}
	return string(b), nil
}

// adjustments collects the prosody flags the user actually set.
func adjustments(cmd *cobra.Command) voicevox.Adjustments {
	var a voicevox.Adjustments
	flags := cmd.Flags()
	pick := func(name string, v *float32) *float32 {
		if flags.Changed(name) {
			return v
		}
		return nil
	}
	a.SpeedScale = pick("speed", &speedScale)
	a.PitchScale = pick("pitch", &pitchScale)
	a.IntonationScale = pick("intonation", &intonationScale)
	a.VolumeScale = pick("volume", &volumeScale)
	a.PrePhonemeLength = pick("pre-phoneme", &prePhonemeLength)
	a.PostPhonemeLength = pick("post-phoneme", &postPhonemeLength)
	if flags.Changed("stereo") {
		a.OutputStereo = &stereo
	}
	return a
}

func execute(cmd *cobra.Command, args []string) error {
	text, err := readText(args)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), appOptions{core: true, cache: true, history: true, player: play})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	res, err := a.svc.Speak(cmd.Context(), speech.Request{
		Text:           text,
		SpeakerID:      a.cfg.Speaker,
		Kana:           kana,
		DisableUpspeak: noUpspeak,
		Adjust:         adjustments(cmd),
		Output:         output,
	})
	if err != nil {
		return err
	}
	return deliver(cmd, a, res)
}

// deliver writes and/or plays a rendered result.
func deliver(cmd *cobra.Command, a *app, res *speech.Result) error {
	if output != "" {
		if err := writeWAV(cmd, output, res.WAV); err != nil {
			return err
		}
		if output != "-" {
			cached := ""
			if res.CacheHit {
				cached = faint(" (cached)")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s: %s, %s%s\n",
				keyword(output), res.Info, humanize.Bytes(uint64(len(res.WAV))), cached) //nolint:gosec
		}
	}
	if play {
		return a.svc.Play(cmd.Context(), res.WAV)
	}
	return nil
}

func writeWAV(cmd *cobra.Command, path string, wav []byte) error {
	if path == "-" {
		if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec
			return errors.New("refusing to write WAV data to a terminal; redirect stdout or use --output FILE")
		}
		if _, err := cmd.OutOrStdout().Write(wav); err != nil {
			return fmt.Errorf("unable to write to stdout: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, wav, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// A .env next to the working directory may carry VVTTS_* settings.
	_ = godotenv.Load()
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	pf.Uint32P("speaker", "s", 1, "speaker (style) ID")
	pf.String("dict", "", "Open JTalk dictionary directory")
	pf.String("library", "", "path to libvoicevox_core (default: system search path)")
	pf.String("acceleration", "auto", "inference device: auto, cpu or gpu")
	pf.Int("threads", 0, "CPU threads for inference (0 lets the library decide)")
	pf.Bool("load-all", false, "load every voice model at startup")
	pf.BoolVar(&noCache, "no-cache", false, "bypass the audio cache")

	f := rootCmd.Flags()
	f.StringVarP(&output, "output", "o", "output.wav", `WAV output file ("-" for stdout, "" to skip)`)
	f.BoolVarP(&play, "play", "p", false, "play the audio")
	f.BoolVarP(&kana, "kana", "k", false, "treat the input as AquesTalk-style kana")
	f.BoolVar(&noUpspeak, "no-upspeak", false, "do not raise the pitch at the end of questions")
	f.Float32Var(&speedScale, "speed", 1, "speed scale")
	f.Float32Var(&pitchScale, "pitch", 0, "pitch scale")
	f.Float32Var(&intonationScale, "intonation", 1, "intonation scale")
	f.Float32Var(&volumeScale, "volume", 1, "volume scale")
	f.Float32Var(&prePhonemeLength, "pre-phoneme", 0.1, "silence before the utterance, in seconds")
	f.Float32Var(&postPhonemeLength, "post-phoneme", 0.1, "silence after the utterance, in seconds")
	f.BoolVar(&stereo, "stereo", false, "output stereo audio")

	// Config bindings
	_ = viper.BindPFlag("speaker", pf.Lookup("speaker"))
	_ = viper.BindPFlag("core.dict_dir", pf.Lookup("dict"))
	_ = viper.BindPFlag("core.library", pf.Lookup("library"))
	_ = viper.BindPFlag("core.acceleration", pf.Lookup("acceleration"))
	_ = viper.BindPFlag("core.cpu_threads", pf.Lookup("threads"))
	_ = viper.BindPFlag("core.load_all_models", pf.Lookup("load-all"))

	rootCmd.AddCommand(
		synthesisCmd,
		queryCmd,
		readCmd,
		speakersCmd,
		devicesCmd,
		versionCmd,
		infoCmd,
		historyCmd,
		cacheCmd,
		serveCmd,
		configCmd,
		manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, config.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}

	if c := os.Getenv("VVTTS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	config.SetDefaults(viper.GetViper())
	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], config.AppName+".yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
