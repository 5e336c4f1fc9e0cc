package executor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tuannm99/minisql/internal/command"
	"github.com/tuannm99/minisql/internal/engine"
	"github.com/tuannm99/minisql/internal/sql/parser"
)

// engineDB is a small seam for unit-testing Executor without a real database.
type engineDB interface {
	ExecuteText(text string, cmd command.Command) (*engine.Result, error)
}

var _ engineDB = (*engine.Database)(nil)

// Executor turns SQL text into engine commands.
type Executor struct {
	DB engineDB

	// PageSize is used by SELECT without LIMIT.
	PageSize int
}

func NewExecutor(db *engine.Database, pageSize int) *Executor {
	return &Executor{DB: db, PageSize: pageSize}
}

// ExecSQL is the top-level entry: one SQL statement -> Result.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	cmd, err := parser.ParseWith(sql, parser.Options{DefaultPageSize: e.PageSize})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrParse, err)
	}

	res, err := e.DB.ExecuteText(sql, cmd)
	if err != nil {
		if res == nil {
			return nil, err
		}
		// the command ran but the snapshot failed; report both
		slog.Warn("executor: command applied but not persisted", "kind", cmd.Kind(), "err", err)
		return toResult(res), err
	}
	return toResult(res), nil
}

// ExecScript runs every ';'-terminated statement in script and stops at the
// first error. Text after the last ';' is an error.
func (e *Executor) ExecScript(script string) ([]*Result, error) {
	stmts, rest := parser.SplitStatements(script)
	var out []*Result
	for _, s := range stmts {
		res, err := e.ExecSQL(s)
		if err != nil {
			return out, fmt.Errorf("%s: %w", s, err)
		}
		out = append(out, res)
	}
	if rest != "" {
		return out, fmt.Errorf("%w: %w: %q", engine.ErrParse, errUnterminated, rest)
	}
	return out, nil
}

var errUnterminated = errors.New("unterminated statement")

func toResult(res *engine.Result) *Result {
	out := &Result{
		Columns:      res.Columns,
		Page:         res.Page,
		TotalPages:   res.TotalPages,
		AffectedRows: int64(res.Affected),
		Message:      res.Message,
	}
	for _, row := range res.Rows {
		vals := make([]any, len(res.Columns))
		for i, col := range res.Columns {
			if v, ok := row[col]; ok {
				vals[i] = v.Any()
			}
		}
		out.Rows = append(out.Rows, vals)
	}
	return out
}
