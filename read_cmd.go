package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/vvtts/internal/audio"
	"github.com/dgnsrekt/vvtts/internal/document"
	"github.com/dgnsrekt/vvtts/internal/speech"
)

var (
	readOutput    string
	readMarkdown  bool
	readCode      bool
	readLookahead int
	readMaxRunes  int
	readList      bool
	readPlay      bool

	readCmd = &cobra.Command{
		Use:   "read [FILE]",
		Short: "Read a text or markdown document aloud, sentence by sentence",
		Long: paragraph(fmt.Sprintf("\n%s a document aloud. Markdown is reduced to its prose, split into sentences and synthesized ahead of playback. With --output the sentences are also joined into one WAV file.",
			keyword("Read"))),
		Example: paragraph("vvtts read README.md\nvvtts read -s 3 -o chapter1.wav chapter1.txt\ncat notes.md | vvtts read --markdown --list"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runRead,
	}
)

func readDocument(args []string) (string, bool, error) {
	if len(args) == 0 || args[0] == "-" {
		text, err := readText(nil)
		return text, readMarkdown, err
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", false, fmt.Errorf("unable to read %s: %w", args[0], err)
	}
	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".md", ".markdown", ".mdown", ".mkdn":
		return string(b), true, nil
	}
	return string(b), readMarkdown, nil
}

func runRead(cmd *cobra.Command, args []string) error {
	source, markdown, err := readDocument(args)
	if err != nil {
		return err
	}

	parser := document.NewParser(document.WithMaxRunes(readMaxRunes), document.WithCodeBlocks(readCode))
	sentences := parser.Parse(source, markdown)
	if len(sentences) == 0 {
		return errors.New("nothing to read: the document has no speakable text")
	}

	w := cmd.OutOrStdout()
	if readList {
		for _, s := range sentences {
			fmt.Fprintf(w, "%s %s\n", faint(fmt.Sprintf("%4d", s.Index+1)), s.Text)
		}
		return nil
	}

	playing := readPlay
	if !playing && readOutput == "" {
		return errors.New("nothing to do: pass --output or leave playback on")
	}

	a, err := openApp(cmd.Context(), appOptions{core: true, cache: true, history: true, player: playing})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	reqs := make([]speech.Request, len(sentences))
	for i, s := range sentences {
		reqs[i] = speech.Request{
			Text:           s.Text,
			SpeakerID:      a.cfg.Speaker,
			DisableUpspeak: noUpspeak,
			Output:         readOutput,
		}
	}

	var clips []*audio.Clip
	err = a.svc.Stream(cmd.Context(), reqs, readLookahead, func(i int, res *speech.Result) error {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n",
			faint(fmt.Sprintf("[%d/%d]", i+1, len(sentences))),
			runewidth.Truncate(sentences[i].Text, 60, "…"))
		if readOutput != "" {
			clip, err := audio.Decode(res.WAV)
			if err != nil {
				return err
			}
			clips = append(clips, clip)
		}
		if playing {
			return a.svc.Play(cmd.Context(), res.WAV)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if readOutput == "" {
		return nil
	}
	joined, err := audio.Join(clips...)
	if err != nil {
		return err
	}
	wav, err := audio.Encode(joined)
	if err != nil {
		return err
	}
	if err := writeWAV(cmd, readOutput, wav); err != nil {
		return err
	}
	log.Debug("Joined sentences", "count", len(clips), "duration", joined.Duration())
	if readOutput != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s: %d sentences, %.2fs\n",
			keyword(readOutput), len(clips), joined.Duration().Seconds())
	}
	return nil
}

func init() {
	f := readCmd.Flags()
	f.StringVarP(&readOutput, "output", "o", "", `also write the joined audio to this WAV file ("-" for stdout)`)
	f.BoolVarP(&readPlay, "play", "p", true, "play each sentence as it is ready (--play=false to only write --output)")
	f.BoolVar(&noUpspeak, "no-upspeak", false, "do not raise the pitch at the end of questions")
	f.BoolVarP(&readMarkdown, "markdown", "m", false, "parse the input as markdown (implied for .md files)")
	f.BoolVar(&readCode, "code", false, "also read code blocks")
	f.IntVar(&readLookahead, "lookahead", 2, "sentences to synthesize ahead of playback")
	f.IntVar(&readMaxRunes, "max-sentence", 200, "split sentences longer than this many characters")
	f.BoolVarP(&readList, "list", "l", false, "print the sentences instead of reading them")
}
