package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// Table renders left-aligned columns separated by two spaces.
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	quiet   bool
}

func NewTable(headers []string, quiet bool) *Table {
	return NewTableWriter(os.Stdout, headers, quiet)
}

func NewTableWriter(out io.Writer, headers []string, quiet bool) *Table {
	return &Table{
		out:     out,
		headers: headers,
		rows:    make([][]string, 0),
		quiet:   quiet,
	}
}

func (t *Table) Append(row []string) {
	t.rows = append(t.rows, row)
}

func (t *Table) Render() {
	if t.quiet {
		return
	}

	colWidths := t.widths()

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if i < len(colWidths) {
				parts[i] = fmt.Sprintf("%-*s", colWidths[i], cell)
			} else {
				parts[i] = cell
			}
		}
		fmt.Fprintln(t.out, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(t.headers)
	for _, row := range t.rows {
		printRow(row)
	}
}

func (t *Table) widths() []int {
	w := make([]int, len(t.headers))
	for i, h := range t.headers {
		w[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); i < len(w) && n > w[i] {
				w[i] = n
			}
		}
	}
	return w
}

// Len returns the number of appended rows.
func (t *Table) Len() int {
	return len(t.rows)
}
