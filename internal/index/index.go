package index

import (
	"log/slog"

	"github.com/tuannm99/minisql/internal/btree"
	"github.com/tuannm99/minisql/internal/heap"
	"github.com/tuannm99/minisql/internal/record"
)

type Kind string

const (
	KindBTree Kind = "btree"
)

// Name returns the catalog name of the index on table.column.
func Name(table, column string) string {
	return table + "_" + column
}

// Index is a secondary index: it maps the values of one column to the rows
// holding them. It has no storage of its own and is persisted with the database.
type Index struct {
	Name   string
	Table  string
	Column string
	Kind   Kind

	tree *btree.Tree[record.Value]
}

// New creates an empty index ordered by ordering.
func New(table, column string, kind Kind, ordering record.Ordering, degree int) *Index {
	return &Index{
		Name:   Name(table, column),
		Table:  table,
		Column: column,
		Kind:   kind,
		tree:   btree.New[record.Value](degree, ordering.Compare),
	}
}

// SetLogger sets the logger used for tree rebalancing messages.
func (ix *Index) SetLogger(l *slog.Logger) { ix.tree.SetLogger(l) }

func (ix *Index) Insert(v record.Value, id heap.RowID) { ix.tree.Insert(v, id) }

func (ix *Index) Remove(v record.Value, id heap.RowID) bool { return ix.tree.Remove(v, id) }

func (ix *Index) Update(oldV, newV record.Value, id heap.RowID) { ix.tree.Update(oldV, newV, id) }

// Lookup returns the rows whose column value equals v.
func (ix *Index) Lookup(v record.Value) []heap.RowID { return ix.tree.Get(v) }

// Len returns the number of distinct values.
func (ix *Index) Len() int { return ix.tree.Len() }

func (ix *Index) Ascend(fn func(v record.Value, ids []heap.RowID) bool) { ix.tree.Ascend(fn) }

func (ix *Index) AscendRange(lo, hi record.Value, fn func(v record.Value, ids []heap.RowID) bool) {
	ix.tree.AscendRange(lo, hi, fn)
}

// Build rebuilds the index from a scan of tbl. Rows missing the column are skipped.
func (ix *Index) Build(tbl *heap.Table) {
	pairs := make([]btree.Pair[record.Value], 0, tbl.Len())
	_ = tbl.Scan(func(id heap.RowID, row record.Row) error {
		if v, ok := row[ix.Column]; ok {
			pairs = append(pairs, btree.Pair[record.Value]{Key: v, ID: id})
		}
		return nil
	})
	ix.tree.Rebuild(pairs)
}

// Entry is one persisted (value, rows) association.
type Entry struct {
	Key record.Value `json:"key"`
	IDs []heap.RowID `json:"ids"`
}

// Entries returns the index contents in key order.
func (ix *Index) Entries() []Entry {
	out := make([]Entry, 0, ix.tree.Len())
	ix.tree.Ascend(func(v record.Value, ids []heap.RowID) bool {
		out = append(out, Entry{Key: v, IDs: ids})
		return true
	})
	return out
}

// Load replaces the index contents with entries.
func (ix *Index) Load(entries []Entry) {
	var pairs []btree.Pair[record.Value]
	for _, e := range entries {
		for _, id := range e.IDs {
			pairs = append(pairs, btree.Pair[record.Value]{Key: e.Key, ID: id})
		}
	}
	ix.tree.Rebuild(pairs)
}
