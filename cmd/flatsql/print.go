package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sql/executor"
)

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return record.Text(v)
}

func printResult(w io.Writer, res *executor.Result) {
	if len(res.Columns) == 0 {
		// DDL/DML
		if res.Message != "" {
			_, _ = fmt.Fprintf(w, "OK, %s\n", res.Message)
			return
		}
		_, _ = fmt.Fprintf(w, "OK (%d affected)\n", res.AffectedRows)
		return
	}

	cols := res.Columns

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = utf8.RuneCountInString(c)
	}
	cells := make([][]string, len(res.Rows))
	for r, row := range res.Rows {
		cells[r] = make([]string, len(cols))
		for i := range cols {
			s := "NULL"
			if i < len(row) {
				s = formatValue(row[i])
			}
			cells[r][i] = s
			if n := utf8.RuneCountInString(s); n > widths[i] {
				widths[i] = n
			}
		}
	}

	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				_, _ = fmt.Fprint(w, " | ")
			}
			_, _ = fmt.Fprint(w, padRight(values[i], widths[i]))
		}
		_, _ = fmt.Fprintln(w)
	}

	printRow(cols)
	for i := range cols {
		if i > 0 {
			_, _ = fmt.Fprint(w, "-+-")
		}
		_, _ = fmt.Fprint(w, strings.Repeat("-", widths[i]))
	}
	_, _ = fmt.Fprintln(w)
	for _, row := range cells {
		printRow(row)
	}

	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
}

func padRight(s string, w int) string {
	n := utf8.RuneCountInString(s)
	if n >= w {
		return s
	}
	return s + strings.Repeat(" ", w-n)
}
