package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/vvtts/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Show audio cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			printCacheStats(cmd.OutOrStdout(), a.cfg.Cache.Dir, a.cache.Stats())
			return nil
		},
	}

	cacheListCmd = &cobra.Command{
		Use:   "list",
		Short: "List cached entries, least recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			printCacheEntries(cmd.OutOrStdout(), a.cache.Entries(), time.Now())
			return nil
		},
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove entries older than cache.ttl_days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			n := a.cache.Prune()
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries.\n", n)
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			return a.cache.Clear()
		},
	}
)

func openCache(cmd *cobra.Command) (*app, error) {
	a, err := openApp(cmd.Context(), appOptions{cache: true})
	if err != nil {
		return nil, err
	}
	if a.cache == nil {
		_ = a.Close()
		return nil, errors.New("the cache is disabled (cache.enabled: false)")
	}
	return a, nil
}

func printCacheStats(w io.Writer, dir string, s cache.Summary) {
	section(w, "Disk")
	field(w, "dir", dir)
	field(w, "size", fmt.Sprintf("%s / %s", humanize.IBytes(uint64(s.Disk.Size)), humanize.IBytes(uint64(s.Disk.Capacity)))) //nolint:gosec
	field(w, "entries", humanize.Comma(s.Disk.Items))
	field(w, "evictions", humanize.Comma(s.Disk.Evictions))

	section(w, "Memory")
	field(w, "capacity", humanize.IBytes(uint64(s.Memory.Capacity))) //nolint:gosec
}

func printCacheEntries(w io.Writer, entries []cache.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, faint("The cache is empty."))
		return
	}
	var total int64
	for _, e := range entries {
		total += e.Size
		fmt.Fprintf(w, "%s  %9s  %4d hits  %s\n",
			e.Key,
			humanize.IBytes(uint64(e.Size)), //nolint:gosec
			e.Hits,
			faint("used "+humanize.RelTime(e.LastAccess, now, "ago", "from now")))
	}
	fmt.Fprintf(w, "\n%d entries, %s\n", len(entries), humanize.IBytes(uint64(total))) //nolint:gosec
}

func init() {
	cacheCmd.AddCommand(cacheListCmd, cachePruneCmd, cacheClearCmd)
}
