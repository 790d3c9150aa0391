package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/vvtts/voicevox"
)

var (
	jsonOutput bool

	speakersCmd = &cobra.Command{
		Use:   "speakers",
		Short: "List the speakers and their style IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appOptions{core: true})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			metas, err := a.core.Metas()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), metas)
			}
			printSpeakers(cmd.OutOrStdout(), metas, a.cfg.Speaker)
			return nil
		},
	}

	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "Show which inference devices the library supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appOptions{core: true})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			d, err := a.core.SupportedDevices()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			gpu, err := a.core.IsGPUMode()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "cpu   %s\n", yesNo(d.CPU))
			fmt.Fprintf(w, "cuda  %s\n", yesNo(d.CUDA))
			fmt.Fprintf(w, "dml   %s\n", yesNo(d.DML))
			device := "CPU"
			if gpu {
				device = "GPU"
			}
			fmt.Fprintf(w, "\nRunning on %s.\n", keyword(device))
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the vvtts and VOICEVOX core versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "vvtts %s\n", Version)
			a, err := openApp(cmd.Context(), appOptions{core: true})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			v, err := a.core.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "voicevox_core %s\n", v)
			return nil
		},
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Show configuration, cache and history status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appOptions{cache: true, history: true})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			w := cmd.OutOrStdout()
			cfg := a.cfg
			section(w, "Configuration")
			field(w, "config file", orNone(viper.ConfigFileUsed()))
			field(w, "library", orNone(cfg.Core.Library))
			field(w, "dictionary", cfg.Core.DictDir)
			field(w, "acceleration", cfg.Core.Acceleration)
			field(w, "speaker", strconv.FormatUint(uint64(cfg.Speaker), 10))

			section(w, "Cache")
			if a.cache == nil {
				field(w, "status", "disabled")
			} else {
				s := a.cache.Stats()
				field(w, "dir", cfg.Cache.Dir)
				field(w, "disk", fmt.Sprintf("%s / %s in %d entries",
					humanize.IBytes(uint64(s.Disk.Size)), humanize.IBytes(uint64(s.Disk.Capacity)), s.Disk.Items)) //nolint:gosec
				field(w, "ttl", fmt.Sprintf("%d days", cfg.Cache.TTLDays))
			}

			section(w, "History")
			if a.history == nil {
				field(w, "status", "disabled")
			} else {
				n, err := a.history.Count(cmd.Context())
				if err != nil {
					return err
				}
				field(w, "path", cfg.History.Path)
				field(w, "records", humanize.Comma(int64(n)))
			}
			return nil
		},
	}
)

func printSpeakers(w io.Writer, metas []voicevox.SpeakerMeta, current uint32) {
	width := 0
	for _, m := range metas {
		if n := runewidth.StringWidth(m.Name); n > width {
			width = n
		}
	}
	for _, m := range metas {
		styles := make([]string, 0, len(m.Styles))
		for _, s := range m.Styles {
			label := fmt.Sprintf("%s(%d)", s.Name, s.ID)
			if s.ID == current {
				label = keyword(label)
			}
			styles = append(styles, label)
		}
		fmt.Fprintf(w, "%s  %s  %s\n",
			runewidth.FillRight(m.Name, width),
			strings.Join(styles, " "),
			faint("v"+m.Version))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v) //nolint:wrapcheck
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", heading(title))
}

func field(w io.Writer, name, value string) {
	fmt.Fprintf(w, "  %-14s %s\n", name, value)
}

func orNone(s string) string {
	if s == "" {
		return faint("(none)")
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return keyword("yes")
	}
	return faint("no")
}

func init() {
	speakersCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	devicesCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
}
