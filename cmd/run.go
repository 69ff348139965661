package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandraschi/fastsearch-mcp/internal/logger"
)

// runCmd is spec.md §6's "run" subcommand: open the configured drive,
// start the journal watcher (if enabled) and, when a cache dir is set, the
// auto-save timer, and block until an
// external transport (or SIGINT/SIGTERM here, standing in for it) asks the
// process to stop.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the configured drive and serve until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e := openEngine(ctx, true)
		logger.Infof("engine open on drive %c", EngineCfg.Volume.Drive)

		<-ctx.Done()
		logger.Infof("shutting down")
		return e.Close()
	},
}
