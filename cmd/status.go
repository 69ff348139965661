package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// statsJSON mirrors spec.md §6's stats response shape.
type statsJSON struct {
	FileCount      int    `json:"file_count"`
	FilesProcessed uint64 `json:"files_processed"`
	MemoryBytes    uint64 `json:"memory_usage_bytes"`
	LastUpdate     string `json:"last_update"`
	Drive          string `json:"drive"`
	LastAppliedUSN int64  `json:"last_applied_usn"`
	JournalID      uint64 `json:"journal_id"`
}

// statusCmd is spec.md §6's "status" subcommand: open (or load) the
// configured drive's index and report its stats as JSON.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the configured drive's index stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e := openEngine(ctx, false)
		defer e.Close()

		s := e.Stats()
		out := statsJSON{
			FileCount:      s.FileCount,
			FilesProcessed: s.FilesProcessed,
			MemoryBytes:    s.MemoryBytes,
			LastUpdate:     s.LastUpdate.Format("2006-01-02T15:04:05Z07:00"),
			Drive:          string(rune(s.Drive)),
			LastAppliedUSN: s.LastAppliedUSN,
			JournalID:      s.JournalID,
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
		return nil
	},
}
