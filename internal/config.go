package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tuannm99/minisql/internal/btree"
	"github.com/tuannm99/minisql/internal/engine"
	"github.com/tuannm99/minisql/internal/record"
	"github.com/tuannm99/minisql/internal/sql/parser"
)

const EnvPrefix = "MINISQL"

type MiniSqlConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		DataDir      string `mapstructure:"data_dir"`
		SnapshotFile string `mapstructure:"snapshot_file"`
		JournalFile  string `mapstructure:"journal_file"`
		SyncJournal  bool   `mapstructure:"sync_journal"`
	} `mapstructure:"storage"`

	Index struct {
		Degree int `mapstructure:"degree"`
	} `mapstructure:"index"`

	Query struct {
		Ordering string `mapstructure:"ordering"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"query"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":     "storage.data_dir",
	"sync-journal": "storage.sync_journal",
	"ordering":     "query.ordering",
	"page-size":    "query.page_size",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "minisql")
	v.SetDefault("storage.data_dir", engine.DefaultDataDir)
	v.SetDefault("storage.snapshot_file", engine.DefaultSnapshotFile)
	v.SetDefault("storage.journal_file", engine.DefaultJournalFile)
	v.SetDefault("storage.sync_journal", false)
	v.SetDefault("index.degree", btree.DefaultDegree)
	v.SetDefault("query.ordering", record.OrderingCanonical)
	v.SetDefault("query.page_size", parser.DefaultPageSize)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads configuration from, lowest precedence first: defaults, the
// YAML file at path (or ./minisql.yaml when path is empty and it exists),
// MINISQL_* environment variables, and flags that were set explicitly.
func LoadConfig(fs afero.Fs, path string, flags *pflag.FlagSet) (*MiniSqlConfig, error) {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("minisql")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg MiniSqlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *MiniSqlConfig) Validate() error {
	if c.Storage.DataDir == "" {
		return errors.New("config: storage.data_dir is empty")
	}
	if c.Index.Degree < btree.MinDegree {
		return fmt.Errorf("config: index.degree must be at least %d, got %d", btree.MinDegree, c.Index.Degree)
	}
	if c.Query.PageSize <= 0 {
		return fmt.Errorf("config: query.page_size must be positive, got %d", c.Query.PageSize)
	}
	if _, err := record.OrderingByName(c.Query.Ordering); err != nil {
		return fmt.Errorf("config: query.ordering: %w", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (c *MiniSqlConfig) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the slog logger described by the log section.
func (c *MiniSqlConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)).With("app", c.AppName), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)).With("app", c.AppName), nil
}

// EngineOptions turns the storage, index and query sections into engine options.
func (c *MiniSqlConfig) EngineOptions(fs afero.Fs, logger *slog.Logger) (engine.Options, error) {
	ord, err := record.OrderingByName(c.Query.Ordering)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Fs:           fs,
		DataDir:      c.Storage.DataDir,
		SnapshotFile: c.Storage.SnapshotFile,
		JournalFile:  c.Storage.JournalFile,
		SyncJournal:  c.Storage.SyncJournal,
		TreeDegree:   c.Index.Degree,
		Ordering:     ord,
		Logger:       logger,
	}, nil
}
