package heap

import (
	"errors"

	"github.com/tuannm99/minisql/internal/record"
)

var ErrInvalidPageSize = errors.New("heap: page size must be greater than zero")

// Table represents an ordered collection of rows under one schema.
// Rows are stored in an arena keyed by RowID; order keeps insertion order.
type Table struct {
	Name   string
	Schema record.Schema

	rows   map[RowID]record.Row
	order  []RowID
	nextID RowID
}

func NewTable(name string, schema record.Schema) *Table {
	return &Table{
		Name:   name,
		Schema: schema,
		rows:   make(map[RowID]record.Row),
	}
}

// StoredRow is a row together with its identity, used to persist and restore tables.
type StoredRow struct {
	ID   RowID      `json:"id"`
	Data record.Row `json:"data"`
}

// RestoreTable rebuilds a table from persisted rows. nextID is raised if needed
// so it stays above every restored ID.
func RestoreTable(name string, schema record.Schema, nextID RowID, rows []StoredRow) *Table {
	t := NewTable(name, schema)
	t.nextID = nextID
	for _, r := range rows {
		t.rows[r.ID] = r.Data
		t.order = append(t.order, r.ID)
		if r.ID >= t.nextID {
			t.nextID = r.ID + 1
		}
	}
	return t
}

// NextID returns the identifier the next insert will receive.
func (t *Table) NextID() RowID { return t.nextID }

func (t *Table) Len() int { return len(t.order) }

// Insert appends row at the end of the table and returns its identifier.
func (t *Table) Insert(row record.Row) RowID {
	id := t.nextID
	t.nextID++
	t.rows[id] = row
	t.order = append(t.order, id)
	return id
}

func (t *Table) Get(id RowID) (record.Row, bool) {
	r, ok := t.rows[id]
	return r, ok
}

// Set overwrites one column of a live row in place.
func (t *Table) Set(id RowID, col string, v record.Value) bool {
	r, ok := t.rows[id]
	if !ok {
		return false
	}
	r[col] = v
	return true
}

// Delete removes the given rows and returns how many were live.
// Remaining rows keep their identifiers and relative order.
func (t *Table) Delete(ids ...RowID) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[RowID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := t.rows[id]; ok {
			drop[id] = struct{}{}
			delete(t.rows, id)
		}
	}
	if len(drop) == 0 {
		return 0
	}

	kept := t.order[:0]
	for _, id := range t.order {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	t.order = kept
	return len(drop)
}

// Scan iterates through all rows in insertion order.
func (t *Table) Scan(fn func(id RowID, row record.Row) error) error {
	for _, id := range t.order {
		if err := fn(id, t.rows[id]); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns the rows in insertion order. The rows are shared, not copied.
func (t *Table) Rows() []record.Row {
	out := make([]record.Row, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	return out
}

// StoredRows returns rows with their identifiers in insertion order.
func (t *Table) StoredRows() []StoredRow {
	out := make([]StoredRow, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, StoredRow{ID: id, Data: t.rows[id]})
	}
	return out
}

// TotalPages returns ceil(Len / pageSize).
func (t *Table) TotalPages(pageSize int) (int, error) {
	if pageSize <= 0 {
		return 0, ErrInvalidPageSize
	}
	return pageCount(t.Len(), pageSize), nil
}

// pageCount is ceil(n / pageSize) without overflowing for large page sizes.
func pageCount(n, pageSize int) int {
	if n == 0 {
		return 0
	}
	return (n-1)/pageSize + 1
}

// GetPage returns the 1-based page n. Page 0 is served as page 1. ok is false
// when n is past the last page.
func (t *Table) GetPage(n, pageSize int) (rows []record.Row, ok bool, err error) {
	total, err := t.TotalPages(pageSize)
	if err != nil {
		return nil, false, err
	}
	if n <= 0 {
		n = 1
	}
	if n > total {
		return nil, false, nil
	}

	start := (n - 1) * pageSize
	end := min(start+pageSize, t.Len())
	out := make([]record.Row, 0, end-start)
	for _, id := range t.order[start:end] {
		out = append(out, t.rows[id])
	}
	return out, true, nil
}
