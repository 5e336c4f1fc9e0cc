package parser

import "strings"

// SplitStatements splits a script into ';'-terminated statements, ignoring
// semicolons inside single-quoted strings. Each statement keeps its ';'.
// Text after the last ';' is returned as rest.
func SplitStatements(script string) (stmts []string, rest string) {
	var cur strings.Builder
	inQuote := false
	for _, r := range script {
		cur.WriteRune(r)
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == ';' && !inQuote:
			if s := strings.TrimSpace(cur.String()); s != ";" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		}
	}
	return stmts, strings.TrimSpace(cur.String())
}

// Complete reports whether text ends with a statement terminator outside quotes.
func Complete(text string) bool {
	_, rest := SplitStatements(text)
	return rest == "" && strings.TrimSpace(text) != ""
}
