package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandraschi/fastsearch-mcp/cfg"
	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/sandraschi/fastsearch-mcp/internal/journal"
	"github.com/sandraschi/fastsearch-mcp/internal/logger"
	"github.com/sandraschi/fastsearch-mcp/internal/volume"
	"github.com/sandraschi/fastsearch-mcp/mftcore"
	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

// Exit codes the CLI surface spec.md §6 names: 0 success, 1 not
// installed/running, 2 insufficient privilege, 3 unrecoverable core error.
const (
	exitOK                    = 0
	exitNotRunning            = 1
	exitInsufficientPrivilege = 2
	exitUnrecoverable         = 3
)

func mftcoreConfig(c cfg.Config, autoStartJournal bool) mftcore.Config {
	return mftcore.Config{
		CacheDir:         c.Cache.Dir,
		MaxCacheVersions: c.Cache.MaxVersions,
		SaveInterval:     c.Cache.SaveInterval,
		Builder: index.BuilderConfig{
			NumWorkers:        c.Index.NumWorkers,
			MaxMemoryFraction: c.Index.MaxMemoryFraction,
			MemorySampleEvery: c.Index.MemorySampleEvery,
		},
		Journal: journal.Config{
			ReadBufferBytes:   c.Journal.ReadBufferBytes,
			QuietPollInterval: c.Journal.QuietPollInterval,
			MaxPendingRenames: c.Journal.MaxPendingRenames,
		},
		Metrics:          defaultMetrics(),
		Logger:           logger.Slog(),
		AutoStartJournal: autoStartJournal && c.Journal.Enabled,
	}
}

// defaultMetrics builds the otel-over-Prometheus MetricHandle every CLI
// subcommand records against, falling back to a no-op handle if the
// exporter can't be registered (e.g. a name collision on a shared
// registry in-process).
func defaultMetrics() mftcore.MetricHandle {
	_, handle, err := mftcore.NewOtelMeterProvider(prometheus.NewRegistry())
	if err != nil {
		logger.Warnf("metrics exporter init failed, using no-op: %v", err)
		return mftcore.NewNoopMetrics()
	}
	return handle
}

// openEngine opens the drive named by EngineCfg.Volume.Drive and exits the
// process with the exit code the opening error's Kind maps to, matching
// spec.md §6/§7's taxonomy-to-exit-code contract.
func openEngine(ctx context.Context, autoStartJournal bool) *mftcore.Engine {
	reader := volume.NewReader()
	e, err := mftcore.Open(ctx, reader, byte(EngineCfg.Volume.Drive), mftcoreConfig(EngineCfg, autoStartJournal))
	if err != nil {
		exitForErr(err)
	}
	return e
}

// codeForErr maps a CoreAPI error's mfterrors.Kind onto the exit codes
// spec.md §6 names.
func codeForErr(err error) int {
	var merr *mfterrors.Error
	if errors.As(err, &merr) {
		switch merr.Kind {
		case mfterrors.KindAccessDenied:
			return exitInsufficientPrivilege
		case mfterrors.KindNotFound, mfterrors.KindNotNtfs:
			return exitNotRunning
		}
	}
	return exitUnrecoverable
}

func exitForErr(err error) {
	logger.Errorf("%v", err)
	os.Exit(codeForErr(err))
}
