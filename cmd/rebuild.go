package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// rebuildCmd forces CoreAPI.Rebuild, exercising spec.md §4.8's forced
// fresh-MFT-scan path directly rather than waiting on a cache miss.
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Force a fresh MFT scan of the configured drive, bypassing the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e := openEngine(ctx, false)
		defer e.Close()

		if err := e.Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		s := e.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "rebuilt: %d files, %d bytes estimated\n", s.FileCount, s.MemoryBytes)
		return nil
	},
}
