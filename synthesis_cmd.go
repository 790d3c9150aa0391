package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/vvtts/voicevox"
)

var (
	watchQuery bool

	synthesisCmd = &cobra.Command{
		Use:   "synthesis QUERY",
		Short: "Render an audio query JSON file to WAV",
		Long: paragraph(fmt.Sprintf("\n%s an audio query, as produced by %s and possibly hand-edited, into WAV audio. Use - to read the query from stdin.",
			keyword("Render"), keyword("vvtts query"))),
		Example: paragraph("vvtts query こんにちは > q.json\nvvtts synthesis q.json -o hello.wav\nvvtts synthesis q.json --watch --play"),
		Args:    cobra.ExactArgs(1),
		RunE:    runSynthesis,
	}
)

func readQuery(path string) (*voicevox.AudioQuery, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read query: %w", err)
	}
	return voicevox.DecodeAudioQuery(data)
}

func runSynthesis(cmd *cobra.Command, args []string) error {
	path := args[0]
	if watchQuery && path == "-" {
		return fmt.Errorf("--watch needs a query file, not stdin")
	}

	a, err := openApp(cmd.Context(), appOptions{core: true, cache: true, history: true, player: play})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	render := func() error {
		q, err := readQuery(path)
		if err != nil {
			return err
		}
		res, err := a.svc.Render(cmd.Context(), q, a.cfg.Speaker, !noUpspeak, output)
		if err != nil {
			return err
		}
		return deliver(cmd, a, res)
	}

	if err := render(); err != nil {
		return err
	}
	if !watchQuery {
		return nil
	}
	return watchFile(cmd.Context(), path, func() {
		if err := render(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	})
}

// watchFile calls fn whenever path is written, at most twice a second, until
// ctx is done.
func watchFile(ctx context.Context, path string, fn func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Editors often replace the file, so watch its directory.
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}
	log.Info("fsnotify watching dir", "dir", dir)

	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			if err := limiter.Wait(ctx); err != nil {
				return nil //nolint:nilerr
			}
			fn()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func init() {
	f := synthesisCmd.Flags()
	f.StringVarP(&output, "output", "o", "output.wav", `WAV output file ("-" for stdout, "" to skip)`)
	f.BoolVarP(&play, "play", "p", false, "play the audio")
	f.BoolVar(&noUpspeak, "no-upspeak", false, "do not raise the pitch at the end of questions")
	f.BoolVarP(&watchQuery, "watch", "w", false, "re-render whenever the query file changes")
}
