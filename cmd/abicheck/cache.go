package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"abicheck/internal/unitcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the unit cache",
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached unit",
	Args:  cobra.NoArgs,
	RunE:  runCacheClean,
}

var cacheDirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Print the unit cache directory",
	Args:  cobra.NoArgs,
	RunE:  runCacheDir,
}

func init() {
	cacheCmd.PersistentFlags().String("cache-dir", "", "unit cache directory (default: user cache dir)")
	cacheCmd.AddCommand(cacheCleanCmd)
	cacheCmd.AddCommand(cacheDirCmd)
}

func openCache(cmd *cobra.Command) (*unitcache.Cache, error) {
	dir, err := cmd.Flags().GetString("cache-dir")
	if err != nil {
		return nil, fmt.Errorf("failed to get cache-dir flag: %w", err)
	}
	c, err := unitcache.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open unit cache: %w", err)
	}
	return c, nil
}

func runCacheClean(cmd *cobra.Command, _ []string) error {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}
	if err := c.DropAll(); err != nil {
		return fmt.Errorf("failed to clear %q: %w", c.Dir(), err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed cached units in %s\n", c.Dir())
	return nil
}

func runCacheDir(cmd *cobra.Command, _ []string) error {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), c.Dir())
	return nil
}
