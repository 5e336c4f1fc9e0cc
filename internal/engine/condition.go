package engine

import (
	"fmt"
	"strings"

	"github.com/tuannm99/minisql/internal/heap"
	"github.com/tuannm99/minisql/internal/record"
)

// condition is a parsed "<column>=<value>" filter. A nil condition matches
// every row.
type condition struct {
	column string
	value  string
}

// parseCondition parses the UPDATE/DELETE filter. The text must split on "="
// into exactly two parts; one layer of matching quotes around the value is
// removed. Values are compared by canonical form.
func parseCondition(s string) (*condition, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, "=")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: condition %q must have the form column=value", ErrParse, s)
	}
	col := strings.TrimSpace(parts[0])
	if col == "" {
		return nil, fmt.Errorf("%w: condition %q has no column", ErrParse, s)
	}
	return &condition{column: col, value: unquote(strings.TrimSpace(parts[1]))}, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		if q := s[0]; (q == '\'' || q == '"') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func (c *condition) match(row record.Row) bool {
	if c == nil {
		return true
	}
	v, ok := row[c.column]
	return ok && v.String() == c.value
}

// matching returns the identifiers of rows in tbl matched by c, in table order.
func (c *condition) matching(tbl *heap.Table) []heap.RowID {
	var ids []heap.RowID
	_ = tbl.Scan(func(id heap.RowID, row record.Row) error {
		if c.match(row) {
			ids = append(ids, id)
		}
		return nil
	})
	return ids
}
