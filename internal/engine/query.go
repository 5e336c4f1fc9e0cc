package engine

import (
	"fmt"
	"slices"

	"github.com/tuannm99/minisql/internal/command"
	"github.com/tuannm99/minisql/internal/heap"
	"github.com/tuannm99/minisql/internal/record"
)

// query runs the SELECT path: group, then order, then paginate. It always
// scans the table; indexes are not consulted.
func (db *Database) query(q *command.SelectFrom) (*Result, error) {
	if err := db.ensureLoaded(); err != nil {
		return nil, err
	}
	tbl, err := db.table(q.Table)
	if err != nil {
		return nil, err
	}
	if q.PageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	if q.GroupBy != "" && !tbl.Schema.HasColumn(q.GroupBy) {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, tbl.Name, q.GroupBy)
	}
	if q.OrderBy != nil && !tbl.Schema.HasColumn(q.OrderBy.Column) {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, tbl.Name, q.OrderBy.Column)
	}

	page := q.Page
	if page <= 0 {
		db.log.Warn("engine.query: pages start at 1, serving page 1", "table", tbl.Name, "page", page)
		page = 1
	}

	var (
		rows  []record.Row
		total int
	)
	if q.GroupBy == "" && q.OrderBy == nil {
		total, _ = tbl.TotalPages(q.PageSize)
		rows, err = plainPage(tbl, page, q.PageSize)
	} else {
		rows = tbl.Rows()
		if q.GroupBy != "" {
			rows = groupBy(rows, q.GroupBy)
		}
		if q.OrderBy != nil {
			orderBy(rows, q.OrderBy.Column, q.OrderBy.Ascending, db.opts.Ordering)
		}
		if len(rows) > 0 {
			total = (len(rows)-1)/q.PageSize + 1
		}
		rows, err = paginate(rows, page, q.PageSize)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: table %s page %d of %d", err, tbl.Name, page, total)
	}

	out := make([]record.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}

	return &Result{
		Message:    fmt.Sprintf("%d row(s)", len(out)),
		Columns:    tbl.Schema.ColumnNames(),
		Rows:       out,
		Page:       page,
		TotalPages: total,
	}, nil
}

// plainPage serves an unfiltered page straight from the table.
func plainPage(tbl *heap.Table, page, pageSize int) ([]record.Row, error) {
	rows, ok, err := tbl.GetPage(page, pageSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPageOutOfRange
	}
	return rows, nil
}

// groupBy keeps the first row seen for each value of col, in first-seen order.
// Rows without col are dropped.
func groupBy(rows []record.Row, col string) []record.Row {
	seen := make(map[string]struct{})
	out := make([]record.Row, 0, len(rows))
	for _, r := range rows {
		v, ok := r[col]
		if !ok {
			continue
		}
		key := v.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// orderBy sorts rows in place by col. The sort is stable. A row missing col
// sorts before every present value, so it comes first ascending and last
// descending.
func orderBy(rows []record.Row, col string, asc bool, o record.Ordering) {
	slices.SortStableFunc(rows, func(a, b record.Row) int {
		av, aok := a[col]
		bv, bok := b[col]
		c := record.CompareOptional(o, av, aok, bv, bok)
		if !asc {
			c = -c
		}
		return c
	})
}

func paginate(rows []record.Row, page, pageSize int) ([]record.Row, error) {
	// compare page numbers first; (page-1)*pageSize can overflow
	if len(rows) == 0 || page-1 > (len(rows)-1)/pageSize {
		return nil, ErrPageOutOfRange
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(rows))
	return rows[start:end], nil
}
