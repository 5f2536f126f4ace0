package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const colGap = 2

// Table buffers rows and writes them column aligned on Flush. Headers and
// a dash divider precede the first row; an empty table writes nothing.
// When a width is known, the widest columns are narrowed and their cells
// wrapped so lines fit.
type Table struct {
	out     io.Writer
	headers []string
	prefix  string
	rows    [][]string
	width   int
}

// NewTable creates a table on stdout, sized to the terminal when stdout is
// one.
func NewTable(headers ...string) *Table {
	t := NewTableTo(os.Stdout, headers...)
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil {
			t.width = w
		}
	}
	return t
}

// NewTableTo creates a table on w with no width limit.
func NewTableTo(w io.Writer, headers ...string) *Table {
	return &Table{out: w, headers: headers}
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// WithWidth limits lines to n columns; 0 removes the limit.
func (t *Table) WithWidth(n int) *Table {
	t.width = n
	return t
}

// Row adds a row. Missing trailing cells are left blank.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Len returns the number of rows added.
func (t *Table) Len() int { return len(t.rows) }

// Flush writes the table and forgets its rows.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, r := range t.rows {
		for i := 0; i < len(r) && i < len(widths); i++ {
			if n := visualLen(r[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	if t.width > 0 {
		widths = capWidths(widths, t.headers, t.width, visualLen(t.prefix))
	}

	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.line(widths, t.headers)
	t.line(widths, dividers)
	for _, r := range t.rows {
		cells := make([][]string, len(widths))
		height := 1
		for i := range widths {
			v := ""
			if i < len(r) {
				v = r[i]
			}
			cells[i] = wrapCell(v, widths[i])
			if len(cells[i]) > height {
				height = len(cells[i])
			}
		}
		for l := 0; l < height; l++ {
			vals := make([]string, len(widths))
			for i := range widths {
				if l < len(cells[i]) {
					vals[i] = cells[i][l]
				}
			}
			t.line(widths, vals)
		}
	}
	t.rows = nil
}

func (t *Table) line(widths []int, vals []string) {
	var b strings.Builder
	b.WriteString(t.prefix)
	for i, v := range vals {
		b.WriteString(v)
		if i < len(vals)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-visualLen(v)+colGap))
		}
	}
	fmt.Fprintln(t.out, strings.TrimRight(b.String(), " "))
}

var ansi = regexp.MustCompile("\x1b\\[[0-9;]*m")

// visualLen is the printed width of s, ignoring color escapes.
func visualLen(s string) int {
	return utf8.RuneCountInString(ansi.ReplaceAllString(s, ""))
}

// capWidths narrows the widest columns until a line fits in termWidth.
// No column is narrowed below its header.
func capWidths(widths []int, headers []string, termWidth, prefix int) []int {
	out := append([]int(nil), widths...)
	for {
		total := prefix + colGap*(len(out)-1)
		for _, w := range out {
			total += w
		}
		excess := total - termWidth
		if excess <= 0 {
			return out
		}
		widest := -1
		for i, w := range out {
			if w > visualLen(headers[i]) && (widest < 0 || w > out[widest]) {
				widest = i
			}
		}
		if widest < 0 {
			return out
		}
		cut := out[widest] - visualLen(headers[widest])
		if cut > excess {
			cut = excess
		}
		out[widest] -= cut
	}
}

// wrapCell splits s into lines of at most width, breaking at spaces and
// hard breaking words that are too long. A cell that fits is returned
// unchanged, color included.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}
	plain := ansi.ReplaceAllString(s, "")
	var lines []string
	cur := ""
	for _, word := range strings.Fields(plain) {
		for utf8.RuneCountInString(word) > width {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
		}
		switch {
		case cur == "":
			cur = word
		case utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(word) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
