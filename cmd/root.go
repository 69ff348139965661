// Package cmd is a thin cobra front end over mftcore, useful for running
// the engine standalone and for local debugging. It is deliberately not
// the MCP/JSON-RPC bridge or the named-pipe IPC transport: spec.md §1
// scopes those out as external collaborators with named interfaces only.
// Grounded on gcsfuse's cmd/root.go (persistent flags bound once via
// cfg.BindFlags, cobra.OnInitialize loading a YAML file into viper before
// any RunE runs, bind/config errors captured and returned from RunE rather
// than panicking during init).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandraschi/fastsearch-mcp/cfg"
)

var (
	cfgFile   string
	bindErr   error
	fileErr   error
	EngineCfg cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "fastsearch-mcp",
	Short: "Sub-100ms NTFS filename search engine (MFT + USN journal backed)",
	Long: `fastsearch-mcp reads the NTFS Master File Table directly from a raw
volume, builds an in-memory searchable index, and keeps it fresh with the
USN change journal. This binary exposes that engine directly for local
use; the MCP/JSON-RPC bridge and named-pipe IPC transport that front it in
production are out of this module's scope.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if fileErr != nil {
			return fileErr
		}
		return viper.Unmarshal(&EngineCfg, viper.DecodeHook(cfg.DecodeHook()))
	},
}

// Execute runs the root command, exiting the process with code 1 on
// failure, per the CLI surface spec.md §6 describes as informative.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(runCmd, statusCmd, queryCmd, rebuildCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		fileErr = fmt.Errorf("reading config file %s: %w", cfgFile, err)
	}
}
