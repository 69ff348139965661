package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandraschi/fastsearch-mcp/internal/query"
)

var (
	queryMode       string
	queryPath       string
	queryMaxResults int
	queryKind       string
	queryDocClass   string
)

// resultJSON mirrors spec.md §6's query response result shape.
type resultJSON struct {
	ID         uint64  `json:"id"`
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	Size       uint64  `json:"size"`
	IsDir      bool    `json:"is_directory"`
	Modified   string  `json:"modified"`
	Extension  *string `json:"extension,omitempty"`
}

type searchInfoJSON struct {
	Pattern      string  `json:"pattern"`
	Mode         string  `json:"mode"`
	SearchTimeMs float64 `json:"search_time_ms"`
	MatchType    string  `json:"match_type"`
	IndexSize    int     `json:"index_size"`
	NtfsMode     bool    `json:"ntfs_mode"`
}

type queryResponseJSON struct {
	Results    []resultJSON   `json:"results"`
	SearchInfo searchInfoJSON `json:"search_info"`
}

// queryCmd exercises CoreAPI.Query directly, per spec.md §4.8/§6.
var queryCmd = &cobra.Command{
	Use:   "query <pattern>",
	Short: "Run one query against the configured drive's index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e := openEngine(ctx, false)
		defer e.Close()

		spec := query.Spec{
			Pattern:    args[0],
			Mode:       query.Mode(queryMode),
			MaxResults: queryMaxResults,
			KindFilter: query.KindFilter(queryKind),
			DocClass:   query.DocClass(queryDocClass),
			Drive:      byte(EngineCfg.Volume.Drive),
		}
		if queryPath != "" {
			spec.PathContains = queryPath
		}

		resp, err := e.Query(spec)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		out := queryResponseJSON{
			SearchInfo: searchInfoJSON{
				Pattern:      resp.Info.Pattern,
				Mode:         string(resp.Info.Mode),
				SearchTimeMs: resp.Info.SearchTimeMs,
				MatchType:    resp.Info.MatchType,
				IndexSize:    resp.Info.IndexSize,
				NtfsMode:     resp.Info.NtfsMode,
			},
		}
		for _, r := range resp.Results {
			rj := resultJSON{
				ID:       r.ID,
				Name:     r.Name,
				Path:     r.Path,
				Size:     r.Size,
				IsDir:    r.IsDir,
				Modified: r.Modified.Format("2006-01-02T15:04:05Z07:00"),
			}
			if ext := r.Extension; ext != "" {
				rj.Extension = &ext
			}
			out.Results = append(out.Results, rj)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", "smart", "query mode: exact, glob, regex, substring, smart")
	queryCmd.Flags().StringVarP(&queryPath, "path-contains", "p", "", "required substring of the full path")
	queryCmd.Flags().IntVarP(&queryMaxResults, "max-results", "n", 1000, "maximum results to return")
	queryCmd.Flags().StringVarP(&queryKind, "kind", "k", "any", "kind filter: any, file, directory")
	queryCmd.Flags().StringVarP(&queryDocClass, "doc-class", "", "", "document class filter")
}
