package engine

import (
	"errors"

	"github.com/tuannm99/minisql/internal/heap"
)

var (
	ErrDatabaseClosed = errors.New("minisql: database is closed")
	ErrTableExists    = errors.New("minisql: table already exists")
	ErrTableNotFound  = errors.New("minisql: table not found")
	ErrColumnNotFound = errors.New("minisql: column not found")
	ErrTypeMismatch   = errors.New("minisql: type mismatch")
	ErrParse          = errors.New("minisql: parse error")
	ErrPageOutOfRange = errors.New("minisql: page out of range")
	ErrIO             = errors.New("minisql: i/o error")

	ErrInvalidPageSize = heap.ErrInvalidPageSize
)

// ioError wraps cause so that both errors.Is(err, ErrIO) and errors.Is(err, cause) hold.
type ioError struct {
	op    string
	cause error
}

func (e *ioError) Error() string   { return "minisql: " + e.op + ": " + e.cause.Error() }
func (e *ioError) Unwrap() []error { return []error{ErrIO, e.cause} }

func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ioError{op: op, cause: err}
}
