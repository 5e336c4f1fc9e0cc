// Package minisql is the top-level facade for the minisql engine: a small
// embedded database with typed tables, B-tree secondary indexes, a command
// journal and whole-database snapshots.
package minisql

import (
	"github.com/tuannm99/minisql/internal/command"
	"github.com/tuannm99/minisql/internal/engine"
	"github.com/tuannm99/minisql/internal/record"
	"github.com/tuannm99/minisql/internal/sql/executor"
)

type (
	Database = engine.Database
	Options  = engine.Options
	Result   = engine.Result

	Value    = record.Value
	Row      = record.Row
	Column   = record.Column
	Schema   = record.Schema
	Ordering = record.Ordering

	OrderBy = command.OrderBy

	SQLResult = executor.Result
)

var (
	ErrDatabaseClosed  = engine.ErrDatabaseClosed
	ErrTableExists     = engine.ErrTableExists
	ErrTableNotFound   = engine.ErrTableNotFound
	ErrColumnNotFound  = engine.ErrColumnNotFound
	ErrTypeMismatch    = engine.ErrTypeMismatch
	ErrParse           = engine.ErrParse
	ErrPageOutOfRange  = engine.ErrPageOutOfRange
	ErrInvalidPageSize = engine.ErrInvalidPageSize
	ErrIO              = engine.ErrIO
)

var (
	Integer = record.Integer
	Float   = record.Float
	Text    = record.Text
	Boolean = record.Boolean
)

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Database, error) { return engine.Open(opts) }

// Exec parses and runs one SQL statement. SELECT without LIMIT returns pageSize rows.
func Exec(db *Database, sql string, pageSize int) (*SQLResult, error) {
	return executor.NewExecutor(db, pageSize).ExecSQL(sql)
}
