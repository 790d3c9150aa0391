package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/vvtts/voicevox"
)

var (
	queryFormat string
	queryCopy   bool

	queryCmd = &cobra.Command{
		Use:   "query [TEXT]",
		Short: "Print the audio query for some text",
		Long: paragraph(fmt.Sprintf("\n%s the prosody plan the engine builds for the text. Edit it and render it with %s.",
			keyword("Print"), keyword("vvtts synthesis"))),
		Example: paragraph("vvtts query こんにちは > q.json\nvvtts query --format yaml -s 3 おはよう\nvvtts query --kana --copy \"コンニチワ'\""),
		RunE:    runQuery,
	}
)

func encodeQuery(q *voicevox.AudioQuery, format string) ([]byte, error) {
	switch format {
	case "json":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(q); err != nil {
			return nil, fmt.Errorf("unable to encode query: %w", err)
		}
		return buf.Bytes(), nil
	case "yaml":
		b, err := yaml.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("unable to encode query: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryFormat != "json" && queryFormat != "yaml" {
		return fmt.Errorf("unknown format %q (want json or yaml)", queryFormat)
	}
	text, err := readText(args)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), appOptions{core: true})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	q, err := a.svc.Query(cmd.Context(), text, a.cfg.Speaker, kana)
	if err != nil {
		return err
	}
	out, err := encodeQuery(q, queryFormat)
	if err != nil {
		return err
	}

	if queryCopy {
		if err := clipboard.WriteAll(string(out)); err != nil {
			return fmt.Errorf("unable to copy to clipboard: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), faint("Copied audio query to clipboard."))
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err //nolint:wrapcheck
}

func init() {
	f := queryCmd.Flags()
	f.StringVarP(&queryFormat, "format", "f", "json", "output format: json or yaml")
	f.BoolVarP(&kana, "kana", "k", false, "treat the input as AquesTalk-style kana")
	f.BoolVarP(&queryCopy, "copy", "c", false, "also copy the query to the clipboard")
}
