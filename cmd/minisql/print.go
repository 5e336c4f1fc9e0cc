package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/tuannm99/minisql/internal/sql/executor"
)

func printResult(w io.Writer, res *executor.Result) {
	if len(res.Columns) == 0 {
		// DDL/DML
		if res.Message != "" {
			fmt.Fprintf(w, "OK: %s\n", res.Message)
			return
		}
		fmt.Fprintf(w, "OK (%d affected)\n", res.AffectedRows)
		return
	}

	cols := res.Columns
	rows := res.Rows

	cell := func(row []any, i int) string {
		if i < len(row) && row[i] != nil {
			return fmt.Sprintf("%v", row[i])
		}
		return "NULL"
	}

	// 1) compute widths
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i := range cols {
			if s := cell(row, i); len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}

	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprint(w, padRight(values[i], widths[i]))
		}
		fmt.Fprintln(w)
	}

	// 2) header
	printRow(cols)

	// 3) separator ----+----
	for i := range cols {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)

	// 4) rows
	for _, row := range rows {
		out := make([]string, len(cols))
		for i := range cols {
			out[i] = cell(row, i)
		}
		printRow(out)
	}

	fmt.Fprintf(w, "(%d rows, page %d of %d)\n", len(rows), res.Page, res.TotalPages)
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
