package engine

import (
	"fmt"

	"github.com/tuannm99/minisql/internal/command"
	"github.com/tuannm99/minisql/internal/heap"
	"github.com/tuannm99/minisql/internal/record"
)

func (db *Database) createTable(c *command.CreateTable) (*Result, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("%w: missing table name", ErrParse)
	}
	if _, ok := db.tables[c.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, c.Name)
	}
	seen := make(map[string]struct{}, len(c.Columns))
	for _, col := range c.Columns {
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %s", ErrParse, col.Name)
		}
		seen[col.Name] = struct{}{}
	}

	db.tables[c.Name] = heap.NewTable(c.Name, c.Schema())
	return &Result{Message: fmt.Sprintf("Table '%s' created", c.Name)}, nil
}

// createIndex builds the index from a full scan. An existing index on the same
// column is replaced.
func (db *Database) createIndex(c *command.CreateIndex) (*Result, error) {
	tbl, err := db.table(c.Table)
	if err != nil {
		return nil, err
	}
	if !tbl.Schema.HasColumn(c.Column) {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, c.Table, c.Column)
	}

	ix := db.newIndex(c.Table, c.Column, c.IndexKind())
	ix.Build(tbl)
	db.indexes[ix.Name] = ix

	db.log.Debug("engine.index.built", "index", ix.Name, "keys", ix.Len(), "rows", tbl.Len())
	return &Result{Message: fmt.Sprintf("Index '%s' created", ix.Name)}, nil
}

func (db *Database) insertInto(c *command.InsertInto) (*Result, error) {
	tbl, err := db.table(c.Table)
	if err != nil {
		return nil, err
	}
	if err := checkValues(tbl, c.Values); err != nil {
		return nil, err
	}

	row := c.Values.Clone()
	id := tbl.Insert(row)
	for col, v := range row {
		if ix, ok := db.indexFor(tbl.Name, col); ok {
			ix.Insert(v, id)
		}
	}
	return &Result{Message: "1 row inserted", Affected: 1}, nil
}

// update moves index entries while the old values are still in the row, then
// overwrites the row.
func (db *Database) update(c *command.Update) (*Result, error) {
	tbl, err := db.table(c.Table)
	if err != nil {
		return nil, err
	}
	if err := checkValues(tbl, c.Assignments); err != nil {
		return nil, err
	}
	cond, err := parseCondition(c.Condition)
	if err != nil {
		return nil, err
	}
	if err := checkCondition(tbl, cond); err != nil {
		return nil, err
	}

	ids := cond.matching(tbl)
	for _, id := range ids {
		row, _ := tbl.Get(id)
		for col, nv := range c.Assignments {
			if ix, ok := db.indexFor(tbl.Name, col); ok {
				if old, had := row[col]; had {
					ix.Update(old, nv, id)
				} else {
					ix.Insert(nv, id)
				}
			}
			tbl.Set(id, col, nv)
		}
	}
	return &Result{Message: fmt.Sprintf("%d row(s) updated", len(ids)), Affected: len(ids)}, nil
}

func (db *Database) deleteFrom(c *command.DeleteFrom) (*Result, error) {
	tbl, err := db.table(c.Table)
	if err != nil {
		return nil, err
	}
	cond, err := parseCondition(c.Condition)
	if err != nil {
		return nil, err
	}
	if err := checkCondition(tbl, cond); err != nil {
		return nil, err
	}

	ids := cond.matching(tbl)
	for _, id := range ids {
		row, _ := tbl.Get(id)
		for col, v := range row {
			if ix, ok := db.indexFor(tbl.Name, col); ok {
				ix.Remove(v, id)
			}
		}
	}
	n := tbl.Delete(ids...)
	return &Result{Message: fmt.Sprintf("%d row(s) deleted", n), Affected: n}, nil
}

// checkValues verifies every column exists and every value has the column's type.
func checkValues(tbl *heap.Table, values record.Row) error {
	for col, v := range values {
		def, ok := tbl.Schema.Column(col)
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, tbl.Name, col)
		}
		if v.Type() != def.Type {
			return fmt.Errorf("%w: %s.%s is %s, got %s", ErrTypeMismatch, tbl.Name, col, def.Type, v.Type())
		}
		if !v.IsFinite() {
			return fmt.Errorf("%w: %s.%s got non-finite %s", ErrTypeMismatch, tbl.Name, col, v)
		}
	}
	return nil
}

func checkCondition(tbl *heap.Table, cond *condition) error {
	if cond != nil && !tbl.Schema.HasColumn(cond.column) {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, tbl.Name, cond.column)
	}
	return nil
}
