package engine

import "github.com/tuannm99/minisql/internal/record"

// Result is what a command returns. Message and Affected are set for every
// command; Columns, Rows and the page fields only for SELECT.
type Result struct {
	Message  string
	Affected int

	Columns    []string
	Rows       []record.Row
	Page       int
	TotalPages int
}
