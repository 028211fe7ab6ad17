package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/fellowship/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect the remote voice audio cache",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(printCacheStats)
		},
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show how much audio is cached",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(printCacheStats)
		},
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Drop cached verses older than the cache TTL",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(func(m *cache.Manager) error {
				m.Cleanup()
				return printCacheStats(m)
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached verse",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(func(m *cache.Manager) error {
				if err := m.Clear(); err != nil {
					return err
				}
				fmt.Println("Audio cache cleared.")
				return nil
			})
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd, cacheClearCmd)
}

func withCache(fn func(*cache.Manager) error) error {
	m, err := openCache()
	if err != nil {
		return err
	}
	ferr := fn(m)
	if err := m.Close(); err != nil && ferr == nil {
		return err
	}
	return ferr
}

func printCacheStats(m *cache.Manager) error {
	dir, err := cacheDir()
	if err != nil {
		return err
	}
	s := m.Stats()
	fmt.Printf("%s %s\n", keyword("disk"), s.Disk)
	fmt.Println(faint(dir))
	return nil
}
