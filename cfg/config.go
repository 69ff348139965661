// Package cfg is the engine's struct-tree configuration surface: one
// nested Config loaded from flags, environment, and an optional YAML file
// via viper, in the shape of gcsfuse's cfg package (BindFlags wiring pflag
// to viper keys, custom UnmarshalText types standing in for validated
// primitives) generalized from a FUSE mount's settings to an MFT engine's.
package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root configuration tree for one fastsearch-mcp process,
// covering every tunable named in spec.md §4.4/§4.5/§4.6/§4.8/§5.
type Config struct {
	Volume  VolumeConfig  `yaml:"volume" mapstructure:"volume"`
	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Journal JournalConfig `yaml:"journal" mapstructure:"journal"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// VolumeConfig names which drive(s) to open.
type VolumeConfig struct {
	Drive DriveLetter `yaml:"drive" mapstructure:"drive"`
}

// IndexConfig tunes the Builder, per spec.md §4.4.
type IndexConfig struct {
	NumWorkers        int     `yaml:"num-workers" mapstructure:"num-workers"`
	MemorySampleEvery uint64  `yaml:"memory-sample-every" mapstructure:"memory-sample-every"`
	MaxMemoryFraction float64 `yaml:"max-memory-fraction" mapstructure:"max-memory-fraction"`
}

// CacheConfig tunes CachePersistence, per spec.md §4.6.
type CacheConfig struct {
	Dir          string        `yaml:"dir" mapstructure:"dir"`
	MaxVersions  int           `yaml:"max-versions" mapstructure:"max-versions"`
	SaveInterval time.Duration `yaml:"save-interval" mapstructure:"save-interval"`
}

// JournalConfig tunes JournalWatcher, per spec.md §4.5.
type JournalConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	ReadBufferBytes   int           `yaml:"read-buffer-bytes" mapstructure:"read-buffer-bytes"`
	QuietPollInterval time.Duration `yaml:"quiet-poll-interval" mapstructure:"quiet-poll-interval"`
	MaxPendingRenames int           `yaml:"max-pending-renames" mapstructure:"max-pending-renames"`
}

// LoggingConfig configures the internal/logger package.
type LoggingConfig struct {
	Severity  Severity        `yaml:"severity" mapstructure:"severity"`
	Format    string          `yaml:"format" mapstructure:"format"`
	FilePath  string          `yaml:"file-path" mapstructure:"file-path"`
	LogRotate LogRotateConfig `yaml:"log-rotate" mapstructure:"log-rotate"`
}

// LogRotateConfig mirrors gcsfuse's LogRotateLoggingConfig, wired to
// lumberjack.Logger's MaxSize/MaxBackups/Compress fields.
type LogRotateConfig struct {
	MaxFileSizeMB   int  `yaml:"max-file-size-mb" mapstructure:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count" mapstructure:"backup-file-count"`
	Compress        bool `yaml:"compress" mapstructure:"compress"`
}

// DefaultLogRotateConfig is used whenever a LoggingConfig carries a zero
// LogRotateConfig (the YAML/flag default), matching gcsfuse's
// GetDefaultLogRotateLoggingConfig.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{
		MaxFileSizeMB:   512,
		BackupFileCount: 10,
		Compress:        true,
	}
}

// Default returns the engine's zero-config defaults, matching the
// component-level defaults already hard-coded in internal/index,
// internal/journal, and internal/cache (this just makes them visible and
// overridable at the config layer).
func Default() Config {
	return Config{
		Volume: VolumeConfig{Drive: 'C'},
		Index: IndexConfig{
			NumWorkers:        0,
			MemorySampleEvery: 100000,
			MaxMemoryFraction: 0.8,
		},
		Cache: CacheConfig{
			Dir:          "",
			MaxVersions:  3,
			SaveInterval: 5 * time.Minute,
		},
		Journal: JournalConfig{
			Enabled:           true,
			ReadBufferBytes:   64 << 10,
			QuietPollInterval: time.Second,
			MaxPendingRenames: 4096,
		},
		Logging: LoggingConfig{
			Severity:  SeverityInfo,
			Format:    "json",
			LogRotate: DefaultLogRotateConfig(),
		},
	}
}

// BindFlags registers a pflag on flagSet for each of the drive, worker
// count, memory fraction, cache, journal-enabled and logging
// severity/format/file settings and binds it into viper under the matching
// dotted key. The memory sample interval, the journal buffer/poll/rename
// limits and the log-rotate settings have no flag. It follows gcsfuse's
// BindFlags idiom (one flagSet.XP(...) + viper.BindPFlag(...) pair per
// field, first error returned short-circuits the rest).
func BindFlags(flagSet *pflag.FlagSet) error {
	d := Default()

	flagSet.StringP("drive", "d", string(rune(d.Volume.Drive)), "Drive letter to open (e.g. C). The CLI opens one drive; * is not expanded to every volume.")
	if err := viper.BindPFlag("volume.drive", flagSet.Lookup("drive")); err != nil {
		return err
	}

	flagSet.IntP("num-workers", "", d.Index.NumWorkers, "Builder worker-pool size; 0 means cores-1.")
	if err := viper.BindPFlag("index.num-workers", flagSet.Lookup("num-workers")); err != nil {
		return err
	}

	flagSet.Float64P("max-memory-fraction", "", d.Index.MaxMemoryFraction, "Memory governor warn threshold, as a fraction of total system memory.")
	if err := viper.BindPFlag("index.max-memory-fraction", flagSet.Lookup("max-memory-fraction")); err != nil {
		return err
	}

	flagSet.StringP("cache-dir", "", d.Cache.Dir, "Directory to persist the on-disk index cache in; empty disables caching.")
	if err := viper.BindPFlag("cache.dir", flagSet.Lookup("cache-dir")); err != nil {
		return err
	}

	flagSet.IntP("cache-max-versions", "", d.Cache.MaxVersions, "Number of cache versions to retain after pruning.")
	if err := viper.BindPFlag("cache.max-versions", flagSet.Lookup("cache-max-versions")); err != nil {
		return err
	}

	flagSet.DurationP("cache-save-interval", "", d.Cache.SaveInterval, "Auto-save interval; 0 disables the auto-save timer.")
	if err := viper.BindPFlag("cache.save-interval", flagSet.Lookup("cache-save-interval")); err != nil {
		return err
	}

	flagSet.BoolP("journal", "j", d.Journal.Enabled, "Start the USN JournalWatcher after open/rebuild.")
	if err := viper.BindPFlag("journal.enabled", flagSet.Lookup("journal")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(d.Logging.Severity), "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", d.Logging.Format, "Log output format: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", d.Logging.FilePath, "Path to a rotating log file; empty logs to stderr.")
	if err := viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	return nil
}
