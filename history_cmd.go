package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/vvtts/internal/history"
)

var (
	historyLimit  int
	historyFormat string
	historyDays   int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recently synthesized text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			records, err := a.history.List(cmd.Context(), historyLimit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), records, historyFormat, time.Now())
		},
	}

	historyPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete history older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if historyDays <= 0 {
				return errors.New("--days must be positive")
			}
			a, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			n, err := a.history.Prune(cmd.Context(), time.Now().AddDate(0, 0, -historyDays))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s records.\n", humanize.Comma(n))
			return nil
		},
	}

	historyClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete all history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			return a.history.Clear(cmd.Context())
		},
	}
)

func openHistory(cmd *cobra.Command) (*app, error) {
	a, err := openApp(cmd.Context(), appOptions{history: true})
	if err != nil {
		return nil, err
	}
	if a.history == nil {
		_ = a.Close()
		return nil, errors.New("history is disabled (history.enabled: false)")
	}
	return a, nil
}

func printHistory(w io.Writer, records []history.Record, format string, now time.Time) error {
	switch format {
	case "json":
		return writeJSON(w, records)
	case "yaml":
		return yaml.NewEncoder(w).Encode(records) //nolint:wrapcheck
	case "table":
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, faint("No history yet."))
		return nil
	}
	for _, r := range records {
		hit := " "
		if r.CacheHit {
			hit = "*"
		}
		fmt.Fprintf(w, "%s  %-9s %3d  %6.2fs %s %s\n",
			faint(runewidth.FillRight(humanize.RelTime(r.CreatedAt, now, "ago", "from now"), 16)),
			r.Kind,
			r.SpeakerID,
			r.Duration.Seconds(),
			hit,
			runewidth.Truncate(r.Text, 48, "…"))
	}
	return nil
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "output format: table, json or yaml")
	historyPruneCmd.Flags().IntVar(&historyDays, "days", 30, "keep records newer than this many days")
	historyCmd.AddCommand(historyPruneCmd, historyClearCmd)
}
