package record

import (
	"fmt"
	"sort"
	"strings"
)

// Row maps column names to values. Columns not supplied at insert time are absent.
type Row map[string]Value

func (r Row) Get(col string) (Value, bool) {
	v, ok := r[col]
	return v, ok
}

func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Values returns the values in schema column order; absent columns are nil.
func (r Row) Values(s Schema) []any {
	out := make([]any, len(s.Cols))
	for i, c := range s.Cols {
		if v, ok := r[c.Name]; ok {
			out[i] = v.Any()
		}
	}
	return out
}

func (r Row) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", k, r[k])
	}
	b.WriteString("}")
	return b.String()
}
