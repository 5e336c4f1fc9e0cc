package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tuannm99/minisql/internal"
	"github.com/tuannm99/minisql/internal/engine"
	"github.com/tuannm99/minisql/internal/sql/executor"
	"github.com/tuannm99/minisql/internal/sql/parser"
)

const (
	prompt     = "minisql> "
	contPrompt = "...> "
)

// shell runs statements and meta commands against one database.
type shell struct {
	db   *engine.Database
	ex   *executor.Executor
	hist *History
	out  io.Writer
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") ||
		line == "quit" || line == "exit"
}

// meta runs a meta command and reports whether the shell should exit.
func (s *shell) meta(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "\\q", "quit", "exit":
		return true
	case "\\help":
		fmt.Fprintln(s.out, `meta commands:
  \q | quit | exit       quit
  \tables                list tables and indexes
  \journal [n]           print the last n journal records (default 20)
  \history               print history
  \help                  show help

sql:
  CREATE TABLE t (col TYPE [NOT NULL|UNIQUE|PRIMARY KEY|REFERENCES t(c)|CHECK(expr)], ...);
  CREATE INDEX ON t (col);
  INSERT INTO t (col, ...) VALUES (value, ...);
  SELECT * FROM t [GROUP BY col] [ORDER BY col [ASC|DESC]] [LIMIT n] [PAGE p];
  UPDATE t SET col=value, ... [WHERE col=value];
  DELETE FROM t [WHERE col=value];
  end statement with ';' (multiline is supported, the shell waits until ';')`)
	case "\\tables":
		for _, name := range s.db.Tables() {
			schema, err := s.db.Schema(name)
			if err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
				continue
			}
			cols := make([]string, len(schema.Cols))
			for i, c := range schema.Cols {
				cols[i] = c.String()
			}
			fmt.Fprintf(s.out, "%s (%s)\n", name, strings.Join(cols, ", "))
		}
		for _, name := range s.db.Indexes() {
			fmt.Fprintf(s.out, "index %s\n", name)
		}
	case "\\journal":
		n := 20
		if len(fields) > 1 {
			if _, err := fmt.Sscanf(fields[1], "%d", &n); err != nil {
				fmt.Fprintf(s.out, "usage: \\journal [n]\n")
				return false
			}
		}
		recs, err := s.db.Journal()
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		if n > 0 && n < len(recs) {
			recs = recs[len(recs)-n:]
		}
		for _, r := range recs {
			fmt.Fprintf(s.out, "%6d  %s\n", r.LSN, r.Command)
		}
	case "\\history":
		s.hist.Print(s.out, 50)
	default:
		fmt.Fprintf(s.out, "unknown command: %s\n", line)
	}
	return false
}

// exec runs every complete statement in text, printing results and errors.
// It returns the number of failed statements and any unterminated tail.
func (s *shell) exec(text string) (int, string) {
	failed := 0
	stmts, rest := parser.SplitStatements(text)
	for _, stmt := range stmts {
		_ = s.hist.Append(stmt)
		res, err := s.ex.ExecSQL(stmt)
		if res != nil {
			printResult(s.out, res)
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			failed++
		}
	}
	return failed, rest
}

// runScript executes a whole script (from -c or piped stdin). Meta commands
// are honored on their own line between statements.
func (s *shell) runScript(text string) int {
	var (
		failed int
		sql    strings.Builder
	)
	flush := func() {
		n, rest := s.exec(sql.String())
		failed += n
		sql.Reset()
		if rest != "" {
			sql.WriteString(rest)
			sql.WriteByte('\n')
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if isMetaCommand(line) {
			flush()
			if sql.Len() == 0 {
				if s.meta(strings.TrimSpace(line)) {
					return failed
				}
				continue
			}
		}
		sql.WriteString(line)
		sql.WriteByte('\n')
	}

	flush()
	if sql.Len() > 0 {
		fmt.Fprintf(s.out, "error: %v: missing ';' terminator: %q\n", engine.ErrParse, strings.TrimSpace(sql.String()))
		failed++
	}
	return failed
}

func (s *shell) repl() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// preload history into readline (so up-arrow works immediately)
	for _, line := range s.hist.Lines() {
		_ = rl.SaveHistory(line)
	}

	var buf strings.Builder
	fmt.Fprintln(s.out, "type \\help for help")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			// Ctrl+C clears current buffer
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt(prompt)
				continue
			}
			fmt.Fprintln(s.out, "^C")
			continue
		}
		if err != nil {
			// EOF
			fmt.Fprintln(s.out)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && isMetaCommand(line) {
			if s.meta(line) {
				return nil
			}
			continue
		}

		// accumulate sql
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)

		if !parser.Complete(buf.String()) {
			rl.SetPrompt(contPrompt)
			continue
		}

		text := buf.String()
		buf.Reset()
		rl.SetPrompt(prompt)

		for _, stmt := range splitForHistory(text) {
			_ = rl.SaveHistory(stmt)
		}
		_, _ = s.exec(text)
	}
}

func splitForHistory(text string) []string {
	stmts, _ := parser.SplitStatements(text)
	for i, s := range stmts {
		stmts[i] = compactOneLine(s)
	}
	return stmts
}

func main() {
	var (
		configPath = pflag.String("config", "", "config file (yaml); defaults to ./minisql.yaml if present")
		oneShotSQL = pflag.StringP("command", "c", "", "execute SQL and exit (statements must end with ';')")
		histPath   = pflag.String("history", defaultHistoryPath(), "history file path")
		histMax    = pflag.Int("history-max", 2000, "max history lines loaded into memory")
	)
	pflag.String("data-dir", engine.DefaultDataDir, "directory holding the snapshot and journal")
	pflag.Bool("sync-journal", false, "fsync the journal after every command")
	pflag.String("ordering", "canonical", "value ordering for indexes and ORDER BY: canonical or typed")
	pflag.Int("page-size", parser.DefaultPageSize, "rows per page for SELECT without LIMIT")
	pflag.String("log-level", "info", "log level: debug, info, warn, error")
	pflag.String("log-format", "text", "log format: text or json")
	pflag.Parse()

	os.Exit(run(*configPath, *oneShotSQL, *histPath, *histMax))
}

func run(configPath, oneShotSQL, histPath string, histMax int) int {
	osFs := afero.NewOsFs()

	cfg, err := internal.LoadConfig(osFs, configPath, pflag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	slog.SetDefault(logger)

	opts, err := cfg.EngineOptions(osFs, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	db, err := engine.Open(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("close database", "err", err)
		}
	}()

	sh := &shell{
		db:   db,
		ex:   executor.NewExecutor(db, cfg.Query.PageSize),
		hist: NewHistory(osFs, histPath),
		out:  os.Stdout,
	}

	// one-shot mode
	if strings.TrimSpace(oneShotSQL) != "" {
		sh.hist = NewHistory(osFs, "")
		if sh.runScript(oneShotSQL) > 0 {
			return 1
		}
		return 0
	}

	// piped stdin
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		sh.hist = NewHistory(osFs, "")
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
			return 1
		}
		if sh.runScript(string(data)) > 0 {
			return 1
		}
		return 0
	}

	if err := sh.hist.Load(histMax); err != nil {
		slog.Warn("load history", "path", histPath, "err", err)
	}
	fmt.Fprintf(sh.out, "%s: data dir %s (%s ordering)\n", cfg.AppName, cfg.Storage.DataDir, cfg.Query.Ordering)
	if err := sh.repl(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}
