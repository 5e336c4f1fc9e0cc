// Package command holds the normalized commands the engine executes. The SQL
// parser produces them; callers embedding the engine may build them directly.
package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tuannm99/minisql/internal/index"
	"github.com/tuannm99/minisql/internal/record"
)

type Kind string

const (
	KindCreateTable Kind = "CREATE TABLE"
	KindCreateIndex Kind = "CREATE INDEX"
	KindInsert      Kind = "INSERT"
	KindSelect      Kind = "SELECT"
	KindUpdate      Kind = "UPDATE"
	KindDelete      Kind = "DELETE"
)

// Command is one normalized statement. String renders it back as SQL text,
// which is what gets journaled when no raw text is supplied.
type Command interface {
	Kind() Kind
	TableName() string
	Mutating() bool
	String() string
}

var (
	_ Command = (*CreateTable)(nil)
	_ Command = (*CreateIndex)(nil)
	_ Command = (*InsertInto)(nil)
	_ Command = (*SelectFrom)(nil)
	_ Command = (*Update)(nil)
	_ Command = (*DeleteFrom)(nil)
)

type CreateTable struct {
	Name    string
	Columns []record.Column
}

func (*CreateTable) Kind() Kind              { return KindCreateTable }
func (c *CreateTable) TableName() string     { return c.Name }
func (*CreateTable) Mutating() bool          { return true }
func (c *CreateTable) Schema() record.Schema { return record.Schema{Cols: c.Columns} }

func (c *CreateTable) String() string {
	defs := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		defs[i] = col.String()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", c.Name, strings.Join(defs, ", "))
}

type CreateIndex struct {
	Table  string
	Column string
	Using  index.Kind
}

func (*CreateIndex) Kind() Kind          { return KindCreateIndex }
func (c *CreateIndex) TableName() string { return c.Table }
func (*CreateIndex) Mutating() bool      { return true }

// IndexKind defaults to a B-tree.
func (c *CreateIndex) IndexKind() index.Kind {
	if c.Using == "" {
		return index.KindBTree
	}
	return c.Using
}

func (c *CreateIndex) String() string {
	return fmt.Sprintf("CREATE INDEX ON %s (%s);", c.Table, c.Column)
}

type InsertInto struct {
	Table  string
	Values record.Row
}

func (*InsertInto) Kind() Kind          { return KindInsert }
func (c *InsertInto) TableName() string { return c.Table }
func (*InsertInto) Mutating() bool      { return true }

func (c *InsertInto) String() string {
	cols := sortedKeys(c.Values)
	vals := make([]string, len(cols))
	for i, col := range cols {
		vals[i] = Literal(c.Values[col])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		c.Table, strings.Join(cols, ", "), strings.Join(vals, ", "))
}

type OrderBy struct {
	Column    string
	Ascending bool
}

// SelectFrom reads one page of a table. Page numbers are 1-based.
type SelectFrom struct {
	Table    string
	PageSize int
	Page     int
	GroupBy  string
	OrderBy  *OrderBy
}

func (*SelectFrom) Kind() Kind          { return KindSelect }
func (c *SelectFrom) TableName() string { return c.Table }
func (*SelectFrom) Mutating() bool      { return false }

func (c *SelectFrom) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", c.Table)
	if c.GroupBy != "" {
		fmt.Fprintf(&b, " GROUP BY %s", c.GroupBy)
	}
	if c.OrderBy != nil {
		dir := "ASC"
		if !c.OrderBy.Ascending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", c.OrderBy.Column, dir)
	}
	fmt.Fprintf(&b, " LIMIT %d PAGE %d;", c.PageSize, c.Page)
	return b.String()
}

// Update sets Assignments on every row matching Condition ("col=value").
// An empty Condition matches all rows.
type Update struct {
	Table       string
	Assignments record.Row
	Condition   string
}

func (*Update) Kind() Kind          { return KindUpdate }
func (c *Update) TableName() string { return c.Table }
func (*Update) Mutating() bool      { return true }

func (c *Update) String() string {
	cols := sortedKeys(c.Assignments)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + "=" + Literal(c.Assignments[col])
	}
	s := fmt.Sprintf("UPDATE %s SET %s", c.Table, strings.Join(sets, ", "))
	if c.Condition != "" {
		s += " WHERE " + c.Condition
	}
	return s + ";"
}

type DeleteFrom struct {
	Table     string
	Condition string
}

func (*DeleteFrom) Kind() Kind          { return KindDelete }
func (c *DeleteFrom) TableName() string { return c.Table }
func (*DeleteFrom) Mutating() bool      { return true }

func (c *DeleteFrom) String() string {
	s := "DELETE FROM " + c.Table
	if c.Condition != "" {
		s += " WHERE " + c.Condition
	}
	return s + ";"
}

// Literal renders v as a SQL literal: text is single-quoted with quotes
// doubled, and whole floats keep a ".0" so they parse back as FLOAT.
func Literal(v record.Value) string {
	switch v.Kind() {
	case record.KindText:
		return "'" + strings.ReplaceAll(v.String(), "'", "''") + "'"
	case record.KindFloat:
		s := v.String()
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	default:
		return v.String()
	}
}

func sortedKeys(r record.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
