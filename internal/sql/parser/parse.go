package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tuannm99/minisql/internal/command"
	"github.com/tuannm99/minisql/internal/record"
)

// ErrSyntax is wrapped by every error Parse returns.
var ErrSyntax = errors.New("syntax error")

// Options tunes parsing.
type Options struct {
	// DefaultPageSize is used by SELECT without LIMIT.
	DefaultPageSize int
}

const DefaultPageSize = 10

func syntaxErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// parseIdent validates an identifier (table/column name).
// Rules (simple):
//   - must be exactly one token (no spaces)
//   - first char: letter or '_'
//   - rest: letter/digit/'_'
func parseIdent(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", syntaxErr("missing identifier")
	}

	parts := strings.Fields(s)
	if len(parts) != 1 {
		return "", syntaxErr("invalid identifier %q", s)
	}
	id := parts[0]

	for i, r := range id {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return "", syntaxErr("invalid identifier %q", id)
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "", syntaxErr("invalid identifier %q", id)
		}
	}

	return id, nil
}

// Parse parses a single SQL statement with default options.
func Parse(sql string) (command.Command, error) {
	return ParseWith(sql, Options{})
}

// ParseWith parses a single SQL statement into a normalized command.
// Policy: statement MUST end with ';'
func ParseWith(sql string, opts Options) (command.Command, error) {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}

	s := strings.TrimSpace(sql)
	if s == "" {
		return nil, syntaxErr("empty statement")
	}

	// Require ';' at the end (after trimming spaces/newlines)
	if !strings.HasSuffix(s, ";") {
		return nil, syntaxErr("missing ';' terminator")
	}

	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" {
		return nil, syntaxErr("empty statement")
	}

	up := strings.ToUpper(s)

	switch {
	case hasKeywordPrefix(up, "CREATE TABLE"):
		return parseCreateTable(s)
	case hasKeywordPrefix(up, "CREATE INDEX"):
		return parseCreateIndex(s)
	case hasKeywordPrefix(up, "INSERT INTO"):
		return parseInsert(s)
	case hasKeywordPrefix(up, "SELECT"):
		return parseSelect(s, opts)
	case hasKeywordPrefix(up, "UPDATE"):
		return parseUpdate(s)
	case hasKeywordPrefix(up, "DELETE FROM"):
		return parseDelete(s)
	default:
		return nil, syntaxErr("unsupported statement: %q", sql)
	}
}

// hasKeywordPrefix reports whether up starts with kw followed by a space, a
// '(' or the end of the text.
func hasKeywordPrefix(up, kw string) bool {
	if !strings.HasPrefix(up, kw) {
		return false
	}
	rest := up[len(kw):]
	return rest == "" || rest[0] == '(' || unicode.IsSpace(rune(rest[0]))
}

func parseCreateTable(sql string) (command.Command, error) {
	// "CREATE TABLE users (id INT NOT NULL, name TEXT, age INT CHECK(age > 0))"
	withoutPrefix := strings.TrimSpace(sql[len("CREATE TABLE"):])
	parts := strings.SplitN(withoutPrefix, "(", 2)
	if len(parts) != 2 {
		return nil, syntaxErr("invalid CREATE TABLE syntax")
	}

	tableName, err := parseIdent(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid CREATE TABLE syntax: %w", err)
	}

	defPart := strings.TrimSpace(parts[1])
	if !strings.HasSuffix(defPart, ")") {
		return nil, syntaxErr("invalid CREATE TABLE syntax: missing ')'")
	}
	defPart = strings.TrimSpace(defPart[:len(defPart)-1])
	if defPart == "" {
		return nil, syntaxErr("invalid CREATE TABLE syntax: empty column list")
	}

	var cols []record.Column
	for _, def := range splitComma(defPart) {
		col, err := record.ParseColumn(strings.TrimSpace(def))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		if _, err := parseIdent(col.Name); err != nil {
			return nil, fmt.Errorf("invalid column name: %w", err)
		}
		if !knownType(col.Type) {
			return nil, syntaxErr("unknown type %s for column %s", col.Type, col.Name)
		}
		cols = append(cols, col)
	}

	return &command.CreateTable{Name: tableName, Columns: cols}, nil
}

func knownType(t record.ColumnType) bool {
	switch t {
	case record.TypeInteger, record.TypeFloat, record.TypeText, record.TypeBoolean:
		return true
	}
	return false
}

func parseCreateIndex(sql string) (command.Command, error) {
	// "CREATE INDEX [name] ON users (age)"; the name is always <table>_<column>
	rest := strings.TrimSpace(sql[len("CREATE INDEX"):])
	if !strings.HasPrefix(strings.ToUpper(rest), "ON ") {
		_, after := splitKeyword(rest, "ON")
		if after == "" {
			return nil, syntaxErr("invalid CREATE INDEX syntax: missing ON")
		}
		rest = after
	} else {
		rest = strings.TrimSpace(rest[len("ON "):])
	}

	parts := strings.SplitN(rest, "(", 2)
	if len(parts) != 2 || !strings.HasSuffix(strings.TrimSpace(parts[1]), ")") {
		return nil, syntaxErr("invalid CREATE INDEX syntax: want ON <table> (<column>)")
	}
	table, err := parseIdent(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid CREATE INDEX table: %w", err)
	}
	colPart := strings.TrimSuffix(strings.TrimSpace(parts[1]), ")")
	column, err := parseIdent(colPart)
	if err != nil {
		return nil, fmt.Errorf("invalid CREATE INDEX column: %w", err)
	}

	return &command.CreateIndex{Table: table, Column: column}, nil
}

func parseInsert(sql string) (command.Command, error) {
	// "INSERT INTO users (name, age) VALUES ('abc', 21)"
	rest := strings.TrimSpace(sql[len("INSERT INTO"):])

	// Case-insensitive VALUES using splitKeyword.
	tablePart, valPart := splitKeyword(rest, "VALUES")
	if strings.TrimSpace(valPart) == "" {
		return nil, syntaxErr("invalid INSERT syntax")
	}

	open := strings.Index(tablePart, "(")
	if open < 0 || !strings.HasSuffix(tablePart, ")") {
		return nil, syntaxErr("invalid INSERT syntax: column list required")
	}
	tableName, err := parseIdent(tablePart[:open])
	if err != nil {
		return nil, fmt.Errorf("invalid INSERT syntax: %w", err)
	}

	var cols []string
	for _, c := range strings.Split(tablePart[open+1:len(tablePart)-1], ",") {
		col, err := parseIdent(c)
		if err != nil {
			return nil, fmt.Errorf("invalid INSERT column: %w", err)
		}
		cols = append(cols, col)
	}

	valPart = strings.TrimSpace(valPart)
	if !strings.HasPrefix(valPart, "(") || !strings.HasSuffix(valPart, ")") {
		return nil, syntaxErr("invalid INSERT values syntax")
	}
	valPart = strings.TrimSpace(valPart[1 : len(valPart)-1])

	rawVals := splitComma(valPart)
	if len(rawVals) != len(cols) {
		return nil, syntaxErr("INSERT has %d columns but %d values", len(cols), len(rawVals))
	}

	values := make(record.Row, len(cols))
	for i, rv := range rawVals {
		if _, dup := values[cols[i]]; dup {
			return nil, syntaxErr("column %s given twice", cols[i])
		}
		v, err := parseLiteral(strings.TrimSpace(rv))
		if err != nil {
			return nil, err
		}
		values[cols[i]] = v
	}

	return &command.InsertInto{Table: tableName, Values: values}, nil
}

func parseSelect(sql string, opts Options) (command.Command, error) {
	// "SELECT * FROM users [GROUP BY c] [ORDER BY c [ASC|DESC]] [LIMIT n] [PAGE p]"
	toks := strings.Fields(sql)
	if len(toks) < 4 || toks[1] != "*" || !strings.EqualFold(toks[2], "FROM") {
		return nil, syntaxErr("only SELECT * FROM <table> supported")
	}

	tableName, err := parseIdent(toks[3])
	if err != nil {
		return nil, fmt.Errorf("invalid SELECT syntax: %w", err)
	}
	q := &command.SelectFrom{Table: tableName, PageSize: opts.DefaultPageSize, Page: 1}

	rest := toks[4:]
	next := func() (string, bool) {
		if len(rest) == 0 {
			return "", false
		}
		t := rest[0]
		rest = rest[1:]
		return t, true
	}
	expectBy := func(clause string) (string, error) {
		by, ok := next()
		if !ok || !strings.EqualFold(by, "BY") {
			return "", syntaxErr("expected BY after %s", clause)
		}
		col, ok := next()
		if !ok {
			return "", syntaxErr("missing column after %s BY", clause)
		}
		return parseIdent(col)
	}
	positive := func(clause string) (int, error) {
		t, ok := next()
		if !ok {
			return 0, syntaxErr("missing number after %s", clause)
		}
		n, err := strconv.Atoi(t)
		if err != nil || n <= 0 {
			return 0, syntaxErr("%s wants a positive integer, got %q", clause, t)
		}
		return n, nil
	}

	for {
		tok, ok := next()
		if !ok {
			break
		}
		switch strings.ToUpper(tok) {
		case "GROUP":
			if q.GroupBy, err = expectBy("GROUP"); err != nil {
				return nil, err
			}
		case "ORDER":
			col, err := expectBy("ORDER")
			if err != nil {
				return nil, err
			}
			q.OrderBy = &command.OrderBy{Column: col, Ascending: true}
			if len(rest) > 0 {
				switch strings.ToUpper(rest[0]) {
				case "ASC":
					rest = rest[1:]
				case "DESC":
					q.OrderBy.Ascending = false
					rest = rest[1:]
				}
			}
		case "LIMIT":
			if q.PageSize, err = positive("LIMIT"); err != nil {
				return nil, err
			}
		case "PAGE":
			if q.Page, err = positive("PAGE"); err != nil {
				return nil, err
			}
		case "WHERE":
			return nil, syntaxErr("WHERE is only supported in UPDATE and DELETE")
		default:
			return nil, syntaxErr("unexpected %q in SELECT", tok)
		}
	}

	return q, nil
}

func parseUpdate(sql string) (command.Command, error) {
	// "UPDATE t SET a=1, b='x' [WHERE id=1]"
	rest := strings.TrimSpace(sql[len("UPDATE"):])
	tablePart, afterTable := splitKeyword(rest, "SET")

	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, fmt.Errorf("invalid UPDATE syntax: %w", err)
	}

	setPart, wherePart := splitKeyword(afterTable, "WHERE")
	setPart = strings.TrimSpace(setPart)
	if setPart == "" {
		return nil, syntaxErr("invalid UPDATE syntax: missing SET")
	}

	assigns := make(record.Row)
	for _, a := range splitComma(setPart) {
		a = strings.TrimSpace(a)
		kv := strings.SplitN(a, "=", 2)
		if len(kv) != 2 {
			return nil, syntaxErr("invalid assignment: %q", a)
		}

		col, err := parseIdent(kv[0])
		if err != nil {
			return nil, fmt.Errorf("invalid assignment column: %w", err)
		}
		if _, dup := assigns[col]; dup {
			return nil, syntaxErr("column %s assigned twice", col)
		}

		v, err := parseLiteral(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, err
		}
		assigns[col] = v
	}

	return &command.Update{
		Table:       tableName,
		Assignments: assigns,
		Condition:   strings.TrimSpace(wherePart),
	}, nil
}

func parseDelete(sql string) (command.Command, error) {
	// "DELETE FROM t [WHERE col=literal]"
	rest := strings.TrimSpace(sql[len("DELETE FROM"):])
	tablePart, wherePart := splitKeyword(rest, "WHERE")

	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, fmt.Errorf("invalid DELETE syntax: %w", err)
	}

	// the condition text is checked by the engine
	return &command.DeleteFrom{Table: tableName, Condition: strings.TrimSpace(wherePart)}, nil
}

func parseLiteral(rv string) (record.Value, error) {
	up := strings.ToUpper(rv)

	if up == "NULL" {
		return record.Value{}, syntaxErr("NULL is not supported; omit the column instead")
	}

	// BOOL
	if up == "TRUE" {
		return record.Boolean(true), nil
	}
	if up == "FALSE" {
		return record.Boolean(false), nil
	}

	// STRING: single quotes, '' escapes a quote
	if len(rv) >= 2 && rv[0] == '\'' && rv[len(rv)-1] == '\'' {
		return record.Text(strings.ReplaceAll(rv[1:len(rv)-1], "''", "'")), nil
	}

	// INTEGER (32-bit)
	if i, err := strconv.ParseInt(rv, 10, 32); err == nil {
		return record.Integer(int32(i)), nil
	} else if errors.Is(err, strconv.ErrRange) {
		return record.Value{}, syntaxErr("integer %s out of range", rv)
	}

	// FLOAT, digits only: ParseFloat would also take "inf" and "nan"
	if rv != "" && strings.ContainsAny(rv[:1], "+-.0123456789") {
		if f, err := strconv.ParseFloat(rv, 64); err == nil {
			v := record.Float(f)
			if !v.IsFinite() {
				return record.Value{}, syntaxErr("float %s is not finite", rv)
			}
			return v, nil
		}
	}

	return record.Value{}, syntaxErr("unsupported literal: %q", rv)
}

// splitKeyword splits "X <keyword> Y" case-insensitively.
// returns (X, Y). If keyword not present => (s, "").
//
// NOTE: requires spaces around keyword (" WHERE ").
func splitKeyword(s, keyword string) (string, string) {
	up := strings.ToUpper(s)
	k := " " + strings.ToUpper(keyword) + " "
	idx := strings.Index(up, k)
	if idx < 0 {
		return s, ""
	}
	left := strings.TrimSpace(s[:idx])
	right := strings.TrimSpace(s[idx+len(k):])
	return left, right
}

// splitComma splits a comma-separated list, ignoring commas inside quotes or
// parentheses.
func splitComma(s string) []string {
	parts := []string{}
	cur := strings.Builder{}
	inQuote := false
	depth := 0
	for _, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
			cur.WriteRune(r)
		case inQuote:
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			depth--
			cur.WriteRune(r)
		case r == ',' && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
