package record

import (
	"fmt"
	"strings"
)

// ColumnType is the declared type of a column. Values are checked against it by
// comparing with Value.Type().
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeFloat   ColumnType = "FLOAT"
	TypeText    ColumnType = "TEXT"
	TypeBoolean ColumnType = "BOOLEAN"
)

// NormalizeType maps common SQL spellings to the canonical type names.
// Unknown names are upper-cased and returned as-is.
func NormalizeType(s string) ColumnType {
	switch up := strings.ToUpper(strings.TrimSpace(s)); up {
	case "INT", "INT32", "INTEGER":
		return TypeInteger
	case "FLOAT", "FLOAT64", "REAL", "DOUBLE":
		return TypeFloat
	case "TEXT", "STRING", "VARCHAR":
		return TypeText
	case "BOOL", "BOOLEAN":
		return TypeBoolean
	default:
		return ColumnType(up)
	}
}

type ConstraintKind string

const (
	NotNull    ConstraintKind = "NOT NULL"
	Unique     ConstraintKind = "UNIQUE"
	PrimaryKey ConstraintKind = "PRIMARY KEY"
	ForeignKey ConstraintKind = "FOREIGN KEY"
	Check      ConstraintKind = "CHECK"
)

// Constraint is declared on a column and persisted with the schema.
// Only type matching is enforced by the engine.
type Constraint struct {
	Kind      ConstraintKind `json:"kind"`
	RefTable  string         `json:"ref_table,omitempty"`
	RefColumn string         `json:"ref_column,omitempty"`
	Expr      string         `json:"expr,omitempty"`
}

func (c Constraint) String() string {
	switch c.Kind {
	case ForeignKey:
		return fmt.Sprintf("REFERENCES %s(%s)", c.RefTable, c.RefColumn)
	case Check:
		return fmt.Sprintf("CHECK(%s)", c.Expr)
	default:
		return string(c.Kind)
	}
}

type Column struct {
	Name        string       `json:"name"`
	Type        ColumnType   `json:"type"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

func (c Column) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')
	b.WriteString(string(c.Type))
	for _, cons := range c.Constraints {
		b.WriteByte(' ')
		b.WriteString(cons.String())
	}
	return b.String()
}

// ParseColumn parses "name TYPE [NOT NULL] [UNIQUE] [PRIMARY KEY]
// [REFERENCES t(c)] [CHECK(expr)]".
func ParseColumn(def string) (Column, error) {
	toks := strings.Fields(def)
	if len(toks) < 2 {
		return Column{}, fmt.Errorf("invalid column def: %q", def)
	}
	col := Column{Name: toks[0], Type: NormalizeType(toks[1])}

	rest := toks[2:]
	for i := 0; i < len(rest); i++ {
		tok := strings.ToUpper(rest[i])
		next := func() string {
			if i+1 < len(rest) {
				return strings.ToUpper(rest[i+1])
			}
			return ""
		}
		switch {
		case tok == "NOT" && next() == "NULL":
			col.Constraints = append(col.Constraints, Constraint{Kind: NotNull})
			i++
		case tok == "PRIMARY" && next() == "KEY":
			col.Constraints = append(col.Constraints, Constraint{Kind: PrimaryKey})
			i++
		case tok == "UNIQUE":
			col.Constraints = append(col.Constraints, Constraint{Kind: Unique})
		case tok == "REFERENCES":
			if i+1 >= len(rest) {
				return Column{}, fmt.Errorf("invalid REFERENCES in column %q", col.Name)
			}
			ref := rest[i+1]
			open := strings.Index(ref, "(")
			if open <= 0 || !strings.HasSuffix(ref, ")") {
				return Column{}, fmt.Errorf("invalid REFERENCES target %q", ref)
			}
			col.Constraints = append(col.Constraints, Constraint{
				Kind:      ForeignKey,
				RefTable:  ref[:open],
				RefColumn: ref[open+1 : len(ref)-1],
			})
			i++
		case strings.HasPrefix(tok, "CHECK"):
			// the expression may contain spaces; it runs to the end of the definition
			expr := strings.Join(rest[i:], " ")
			expr = strings.TrimSpace(expr[len("CHECK"):])
			if !strings.HasPrefix(expr, "(") || !strings.HasSuffix(expr, ")") {
				return Column{}, fmt.Errorf("invalid CHECK in column %q", col.Name)
			}
			col.Constraints = append(col.Constraints, Constraint{
				Kind: Check,
				Expr: strings.TrimSpace(expr[1 : len(expr)-1]),
			})
			i = len(rest)
		default:
			return Column{}, fmt.Errorf("unknown constraint %q in column %q", rest[i], col.Name)
		}
	}
	return col, nil
}

type Schema struct {
	Cols []Column `json:"cols"`
}

func (s Schema) NumCols() int { return len(s.Cols) }

// Column returns the column with the given name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Cols {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (s Schema) HasColumn(name string) bool {
	_, ok := s.Column(name)
	return ok
}

func (s Schema) ColumnNames() []string {
	out := make([]string, len(s.Cols))
	for i, c := range s.Cols {
		out[i] = c.Name
	}
	return out
}
