package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tuannm99/flatsql/internal/sql/executor"
	"github.com/tuannm99/flatsql/internal/sql/parser"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

const helpText = `meta commands:
  \q | quit | exit       quit
  \tables                list tables
  \history               print history
  \metrics               print engine counters
  \help                  show help

sql:
  a statement runs as soon as it is complete; ';' is optional
  multiline is supported (an empty line runs what has been typed)`

// Shell reads statements, runs them and prints results. It is driven line by
// line so it can be tested without a terminal.
type Shell struct {
	ex   *executor.Executor
	hist *History
	reg  prometheus.Gatherer
	out  io.Writer

	buf strings.Builder
}

func NewShell(ex *executor.Executor, hist *History, reg prometheus.Gatherer, out io.Writer) *Shell {
	return &Shell{ex: ex, hist: hist, reg: reg, out: out}
}

// Pending reports whether a statement is being continued.
func (s *Shell) Pending() bool { return s.buf.Len() > 0 }

// Reset drops a partially typed statement.
func (s *Shell) Reset() { s.buf.Reset() }

// HandleLine processes one input line. It returns false when the session ends.
func (s *Shell) HandleLine(line string) bool {
	trimmed := strings.TrimSpace(line)

	switch strings.TrimSuffix(trimmed, ";") {
	case "exit", "EXIT", "quit", `\q`:
		// ends the session even with a statement pending
		return false
	}

	if !s.Pending() {
		if trimmed == "" {
			return true
		}
		if strings.HasPrefix(trimmed, `\`) {
			s.meta(trimmed)
			return true
		}
	}

	if trimmed == "" {
		// empty line flushes an incomplete statement
		s.run(s.buf.String())
		s.buf.Reset()
		return true
	}

	if s.buf.Len() > 0 {
		s.buf.WriteByte('\n')
	}
	s.buf.WriteString(line)

	stmts, rest := splitStatements(s.buf.String())
	for _, stmt := range stmts {
		s.run(stmt)
	}
	s.buf.Reset()
	if strings.TrimSpace(rest) == "" {
		return true
	}
	if _, err := parser.Parse(rest); err == nil {
		s.run(rest)
		return true
	}
	s.buf.WriteString(rest)
	return true
}

func (s *Shell) run(stmt string) {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return
	}
	if err := s.hist.Append(stmt); err != nil {
		_, _ = fmt.Fprintf(s.out, "warning: history: %v\n", err)
	}
	res, err := s.ex.ExecSQL(stmt)
	if err != nil {
		_, _ = fmt.Fprintf(s.out, "error [%s]: %v\n", sqlerr.Class(err), err)
		return
	}
	printResult(s.out, res)
}

func (s *Shell) meta(cmd string) {
	switch cmd {
	case `\help`:
		_, _ = fmt.Fprintln(s.out, helpText)
	case `\history`:
		s.hist.Print(s.out, 50)
	case `\tables`:
		s.run("SHOW TABLES")
	case `\metrics`:
		s.printMetrics()
	default:
		_, _ = fmt.Fprintf(s.out, "unknown command: %s\n", cmd)
	}
}

func (s *Shell) printMetrics() {
	if s.reg == nil {
		_, _ = fmt.Fprintln(s.out, "metrics are disabled")
		return
	}
	families, err := s.reg.Gather()
	if err != nil {
		_, _ = fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%gs", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		_, _ = fmt.Fprintln(s.out, l)
	}
}

// splitStatements cuts buf at every ';' outside quotes. rest is the text
// after the last ';'.
func splitStatements(buf string) (stmts []string, rest string) {
	var quote rune
	start := 0
	for i, r := range buf {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			stmts = append(stmts, buf[start:i+1])
			start = i + 1
		}
	}
	return stmts, buf[start:]
}

// Loop runs the interactive session until EOF or an exit command.
func (s *Shell) Loop(rl *readline.Instance, prompt string) error {
	for _, line := range s.hist.Lines() {
		_ = rl.SaveHistory(line)
	}
	_, _ = fmt.Fprintln(s.out, `type \help for help`)

	for {
		if s.Pending() {
			rl.SetPrompt("...> ")
		} else {
			rl.SetPrompt(prompt)
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			// Ctrl+C clears the current buffer
			if s.Pending() {
				s.Reset()
				continue
			}
			_, _ = fmt.Fprintln(s.out, "^C")
			continue
		}
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return err
		}

		if !s.HandleLine(line) {
			return nil
		}
	}
}
