package internal

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/minisql/internal/record"
)

const sampleYAML = `
app_name: minisql-test
storage:
  data_dir: /var/lib/minisql
  sync_journal: true
index:
  degree: 4
query:
  ordering: canonical
  page_size: 50
log:
  level: debug
  format: json
`

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(afero.NewMemMapFs(), "", nil)
	require.NoError(t, err)

	require.Equal(t, "minisql", cfg.AppName)
	require.Equal(t, "data", cfg.Storage.DataDir)
	require.Equal(t, "journal.log", cfg.Storage.JournalFile)
	require.False(t, cfg.Storage.SyncJournal)
	require.Equal(t, 32, cfg.Index.Degree)
	require.Equal(t, "canonical", cfg.Query.Ordering)
	require.Equal(t, 10, cfg.Query.PageSize)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/minisql.yaml", []byte(sampleYAML), 0o644))

	cfg, err := LoadConfig(fs, "/etc/minisql.yaml", nil)
	require.NoError(t, err)

	require.Equal(t, "minisql-test", cfg.AppName)
	require.Equal(t, "/var/lib/minisql", cfg.Storage.DataDir)
	require.True(t, cfg.Storage.SyncJournal)
	require.Equal(t, 4, cfg.Index.Degree)
	require.Equal(t, 50, cfg.Query.PageSize)
	// unset keys keep their defaults
	require.Equal(t, "minisql.snapshot.json", cfg.Storage.SnapshotFile)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(afero.NewMemMapFs(), "/nope.yaml", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_EnvAndFlagsOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/minisql.yaml", []byte(sampleYAML), 0o644))

	t.Setenv("MINISQL_QUERY_ORDERING", "typed")
	t.Setenv("MINISQL_QUERY_PAGE_SIZE", "5")
	t.Setenv("MINISQL_STORAGE_DATA_DIR", "/from/env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("data-dir", "", "")
	flags.Int("page-size", 0, "")
	require.NoError(t, flags.Parse([]string{"--data-dir", "/from/flag"}))

	cfg, err := LoadConfig(fs, "/etc/minisql.yaml", flags)
	require.NoError(t, err)

	require.Equal(t, "typed", cfg.Query.Ordering)
	require.Equal(t, "/from/flag", cfg.Storage.DataDir)
	// unchanged flag does not mask the environment
	require.Equal(t, 5, cfg.Query.PageSize)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"degree":   "index:\n  degree: 1\n",
		"ordering": "query:\n  ordering: random\n",
		"page":     "query:\n  page_size: 0\n",
		"level":    "log:\n  level: loud\n",
		"format":   "log:\n  format: xml\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte(body), 0o644))
			_, err := LoadConfig(fs, "/c.yaml", nil)
			require.Error(t, err)
			require.Contains(t, err.Error(), "config:")
		})
	}
}

func TestConfig_EngineOptionsAndLogger(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/minisql.yaml", []byte(sampleYAML), 0o644))
	cfg, err := LoadConfig(fs, "/etc/minisql.yaml", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug("hello", "k", 1)
	require.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())
	require.Contains(t, buf.String(), `"app":"minisql-test"`)

	opts, err := cfg.EngineOptions(fs, logger)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/minisql", opts.DataDir)
	require.Equal(t, 4, opts.TreeDegree)
	require.True(t, opts.SyncJournal)
	require.Equal(t, record.Canonical, opts.Ordering)
	require.Same(t, logger, opts.Logger)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)
}
