package engine

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tuannm99/minisql/internal/btree"
	"github.com/tuannm99/minisql/internal/record"
)

const (
	DefaultDataDir      = "data"
	DefaultSnapshotFile = "minisql.snapshot.json"
	DefaultJournalFile  = "journal.log"
)

// Options configures a Database. The zero value opens ./data on the OS filesystem.
type Options struct {
	Fs           afero.Fs
	DataDir      string
	SnapshotFile string
	JournalFile  string
	// SyncJournal fsyncs the journal after every append.
	SyncJournal bool
	TreeDegree  int
	Ordering    record.Ordering
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.DataDir == "" {
		o.DataDir = DefaultDataDir
	}
	if o.SnapshotFile == "" {
		o.SnapshotFile = DefaultSnapshotFile
	}
	if o.JournalFile == "" {
		o.JournalFile = DefaultJournalFile
	}
	if o.TreeDegree == 0 {
		o.TreeDegree = btree.DefaultDegree
	}
	if o.Ordering == nil {
		o.Ordering = record.Canonical
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) snapshotPath() string { return resolve(o.DataDir, o.SnapshotFile) }
func (o Options) journalPath() string  { return resolve(o.DataDir, o.JournalFile) }

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
