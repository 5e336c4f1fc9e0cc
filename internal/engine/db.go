package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/tuannm99/minisql/internal/command"
	"github.com/tuannm99/minisql/internal/heap"
	"github.com/tuannm99/minisql/internal/index"
	"github.com/tuannm99/minisql/internal/record"
	"github.com/tuannm99/minisql/internal/storage"
	"github.com/tuannm99/minisql/internal/wal"
)

// Database owns every table and index. Mutating commands are journaled first,
// then applied in memory, then the whole database is written to the snapshot.
//
// One process, one writer: nothing locks the journal or snapshot files.
type Database struct {
	mu sync.Mutex

	opts     Options
	log      *slog.Logger
	journal  *wal.Manager
	snapshot *storage.SnapshotStore

	tables  map[string]*heap.Table
	indexes map[string]*index.Index

	// loaded is false until a snapshot has been read or written.
	loaded bool
	closed bool
}

// Open opens the journal and restores the last snapshot, if any.
func Open(opts Options) (*Database, error) {
	opts = opts.withDefaults()

	if err := opts.Fs.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, wrapIO("create data dir", err)
	}

	j, err := wal.Open(opts.Fs, opts.journalPath(), opts.SyncJournal)
	if err != nil {
		return nil, wrapIO("open journal", err)
	}

	db := &Database{
		opts:     opts,
		log:      opts.Logger,
		journal:  j,
		snapshot: storage.NewSnapshotStore(opts.Fs, opts.snapshotPath()),
		tables:   make(map[string]*heap.Table),
		indexes:  make(map[string]*index.Index),
	}
	if err := db.load(); err != nil {
		return nil, multierr.Append(err, j.Close())
	}

	db.log.Info("engine.open",
		"data_dir", opts.DataDir,
		"loaded", db.loaded,
		"tables", len(db.tables),
		"indexes", len(db.indexes),
		"ordering", opts.Ordering.Name(),
	)
	return db, nil
}

// Close closes the journal. The snapshot is already current after every command.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	return wrapIO("close journal", db.journal.Close())
}

// Ordering returns the ordering used by indexes and ORDER BY.
func (db *Database) Ordering() record.Ordering { return db.opts.Ordering }

// Execute runs cmd, journaling its normalized SQL form.
func (db *Database) Execute(cmd command.Command) (*Result, error) {
	return db.ExecuteText(cmd.String(), cmd)
}

// ExecuteText runs cmd and journals text, the statement as the caller wrote it.
func (db *Database) ExecuteText(text string, cmd command.Command) (*Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}
	if !cmd.Mutating() {
		sel, ok := cmd.(*command.SelectFrom)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported command %s", ErrParse, cmd.Kind())
		}
		return db.query(sel)
	}

	lsn, err := db.journal.Append(text)
	if err != nil {
		return nil, wrapIO("journal append", err)
	}

	res, err := db.apply(cmd)
	if err != nil {
		db.log.Debug("engine.execute.rejected", "lsn", lsn, "kind", cmd.Kind(), "err", err)
		return nil, err
	}

	if err := db.persist(); err != nil {
		// memory already holds the change; the caller has to know disk does not
		db.log.Error("engine.snapshot.failed", "lsn", lsn, "kind", cmd.Kind(), "err", err)
		return res, err
	}

	db.log.Debug("engine.execute", "lsn", lsn, "kind", cmd.Kind(), "table", cmd.TableName(), "affected", res.Affected)
	return res, nil
}

func (db *Database) apply(cmd command.Command) (*Result, error) {
	switch c := cmd.(type) {
	case *command.CreateTable:
		return db.createTable(c)
	case *command.CreateIndex:
		return db.createIndex(c)
	case *command.InsertInto:
		return db.insertInto(c)
	case *command.Update:
		return db.update(c)
	case *command.DeleteFrom:
		return db.deleteFrom(c)
	default:
		return nil, fmt.Errorf("%w: unsupported command %s", ErrParse, cmd.Kind())
	}
}

// CreateTable creates an empty table.
func (db *Database) CreateTable(name string, columns []record.Column) error {
	_, err := db.Execute(&command.CreateTable{Name: name, Columns: columns})
	return err
}

// CreateIndex builds a B-tree index over table.column from the current rows.
func (db *Database) CreateIndex(table, column string) error {
	_, err := db.Execute(&command.CreateIndex{Table: table, Column: column, Using: index.KindBTree})
	return err
}

func (db *Database) InsertInto(table string, values record.Row) error {
	_, err := db.Execute(&command.InsertInto{Table: table, Values: values})
	return err
}

// Update applies assignments to rows matching condition ("col=value", or "" for
// every row) and returns the number of rows updated.
func (db *Database) Update(table string, assignments record.Row, condition string) (int, error) {
	res, err := db.Execute(&command.Update{Table: table, Assignments: assignments, Condition: condition})
	if res == nil {
		return 0, err
	}
	return res.Affected, err
}

// DeleteFrom removes rows matching condition and returns how many were removed.
func (db *Database) DeleteFrom(table, condition string) (int, error) {
	res, err := db.Execute(&command.DeleteFrom{Table: table, Condition: condition})
	if res == nil {
		return 0, err
	}
	return res.Affected, err
}

// GetPage returns one page of table after optional grouping and ordering.
func (db *Database) GetPage(table string, page, pageSize int, groupBy string, orderBy *command.OrderBy) ([]record.Row, error) {
	res, err := db.Execute(&command.SelectFrom{
		Table:    table,
		Page:     page,
		PageSize: pageSize,
		GroupBy:  groupBy,
		OrderBy:  orderBy,
	})
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// TotalPages returns ceil(rows / pageSize) for table.
func (db *Database) TotalPages(table string, pageSize int) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.ensureLoaded(); err != nil {
		return 0, err
	}
	tbl, err := db.table(table)
	if err != nil {
		return 0, err
	}
	return tbl.TotalPages(pageSize)
}

// Tables returns the table names in sorted order.
func (db *Database) Tables() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.ensureLoaded(); err != nil {
		db.log.Warn("engine.tables.load", "err", err)
	}
	return sortedNames(db.tables)
}

// Schema returns the schema of table.
func (db *Database) Schema(table string) (record.Schema, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.ensureLoaded(); err != nil {
		return record.Schema{}, err
	}
	tbl, err := db.table(table)
	if err != nil {
		return record.Schema{}, err
	}
	return tbl.Schema, nil
}

// Index returns the index with the given name ("<table>_<column>").
func (db *Database) Index(name string) (*index.Index, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.ensureLoaded(); err != nil {
		db.log.Warn("engine.index.load", "err", err)
	}
	ix, ok := db.indexes[name]
	return ix, ok
}

// Indexes returns the index names in sorted order.
func (db *Database) Indexes() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.ensureLoaded(); err != nil {
		db.log.Warn("engine.indexes.load", "err", err)
	}
	return sortedNames(db.indexes)
}

// Journal returns every record written to the journal so far.
func (db *Database) Journal() ([]wal.Record, error) {
	recs, err := db.journal.ReadAll()
	return recs, wrapIO("read journal", err)
}

func (db *Database) table(name string) (*heap.Table, error) {
	tbl, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return tbl, nil
}

func (db *Database) indexFor(table, column string) (*index.Index, bool) {
	ix, ok := db.indexes[index.Name(table, column)]
	if !ok || ix.Table != table || ix.Column != column {
		return nil, false
	}
	return ix, true
}

func (db *Database) newIndex(table, column string, kind index.Kind) *index.Index {
	ix := index.New(table, column, kind, db.opts.Ordering, db.opts.TreeDegree)
	ix.SetLogger(db.log)
	return ix
}

// ---- persistence ----

func (db *Database) persist() error {
	img := &storage.Image{Ordering: db.opts.Ordering.Name()}

	for _, name := range sortedNames(db.tables) {
		tbl := db.tables[name]
		img.Tables = append(img.Tables, storage.TableImage{
			Name:      tbl.Name,
			Schema:    tbl.Schema,
			NextRowID: tbl.NextID(),
			Rows:      tbl.StoredRows(),
		})
	}
	for _, name := range sortedNames(db.indexes) {
		ix := db.indexes[name]
		img.Indexes = append(img.Indexes, storage.IndexImage{
			Name:    ix.Name,
			Table:   ix.Table,
			Column:  ix.Column,
			Kind:    ix.Kind,
			Entries: ix.Entries(),
		})
	}

	if err := db.snapshot.Save(img); err != nil {
		return wrapIO("write snapshot", err)
	}
	db.loaded = true
	return nil
}

// load replaces the in-memory state with the snapshot. A missing snapshot
// leaves the database empty and not loaded.
func (db *Database) load() error {
	img, err := db.snapshot.Load()
	if errors.Is(err, storage.ErrNoSnapshot) {
		db.log.Debug("engine.snapshot.missing", "path", db.snapshot.Path())
		return nil
	}
	if err != nil {
		return wrapIO("read snapshot", err)
	}

	tables := make(map[string]*heap.Table, len(img.Tables))
	for _, ti := range img.Tables {
		tables[ti.Name] = heap.RestoreTable(ti.Name, ti.Schema, ti.NextRowID, ti.Rows)
	}

	indexes := make(map[string]*index.Index, len(img.Indexes))
	for _, ii := range img.Indexes {
		tbl, ok := tables[ii.Table]
		if !ok {
			return wrapIO("read snapshot", fmt.Errorf("%w: index %s references missing table %s",
				storage.ErrBadSnapshot, ii.Name, ii.Table))
		}
		ix := db.newIndex(ii.Table, ii.Column, ii.Kind)
		if img.Ordering == db.opts.Ordering.Name() {
			ix.Load(ii.Entries)
		} else {
			db.log.Info("engine.index.rebuild", "index", ix.Name,
				"stored_ordering", img.Ordering, "ordering", db.opts.Ordering.Name())
			ix.Build(tbl)
		}
		indexes[ix.Name] = ix
	}

	db.tables = tables
	db.indexes = indexes
	db.loaded = true
	db.log.Debug("engine.snapshot.loaded", "path", db.snapshot.Path(), "saved_at", img.SavedAt)
	return nil
}

// ensureLoaded retries the snapshot load before a read if Open found none.
func (db *Database) ensureLoaded() error {
	if db.loaded {
		return nil
	}
	return db.load()
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
