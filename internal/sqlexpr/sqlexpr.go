// Package sqlexpr is a small typed SQL expression tree with a renderer that
// assigns PostgreSQL positional placeholders ($1, $2, ...).
//
// Fragments are composed as nodes and rendered once; there is no text
// substitution of already rendered SQL.
package sqlexpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Node is a renderable piece of SQL
type Node interface {
	WriteSQL(w *Writer)
}

// Statement is rendered SQL plus its ordered positional parameters
type Statement struct {
	SQL    string        `json:"query"`
	Params []interface{} `json:"searchValues"`
}

// Writer accumulates SQL text and the arguments referenced by it.
// A *Param written twice keeps its first position.
type Writer struct {
	buf  strings.Builder
	args []interface{}
	pos  map[*Param]int
	err  error
}

func NewWriter() *Writer {
	return &Writer{pos: make(map[*Param]int)}
}

func (w *Writer) WriteString(s string) {
	w.buf.WriteString(s)
}

// Bind writes the placeholder for p, appending its value on first use
func (w *Writer) Bind(p *Param) {
	n, ok := w.pos[p]
	if !ok {
		w.args = append(w.args, p.Value)
		n = len(w.args)
		w.pos[p] = n
	}
	w.buf.WriteString("$")
	w.buf.WriteString(strconv.Itoa(n))
}

// Fail records err; only the first failure is kept
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Statement returns what has been written so far
func (w *Writer) Statement() (Statement, error) {
	if w.err != nil {
		return Statement{}, w.err
	}
	args := make([]interface{}, len(w.args))
	copy(args, w.args)
	return Statement{SQL: w.buf.String(), Params: args}, nil
}

// Render renders a single node into a statement
func Render(n Node) (Statement, error) {
	w := NewWriter()
	n.WriteSQL(w)
	return w.Statement()
}

// RenderAfter renders n with base's parameters already bound, so new
// parameters are numbered after them. Use Raw(base.SQL) inside n to embed it.
func RenderAfter(base Statement, n Node) (Statement, error) {
	w := NewWriter()
	w.args = append(w.args, base.Params...)
	n.WriteSQL(w)
	st, err := w.Statement()
	if err != nil {
		return st, err
	}
	return st, st.Check()
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Check verifies that the placeholders in SQL are exactly $1..$len(Params)
func (s Statement) Check() error {
	seen := make(map[int]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(s.SQL, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("bad placeholder %q", m[0])
		}
		if n < 1 || n > len(s.Params) {
			return fmt.Errorf("placeholder $%d out of range: %d params", n, len(s.Params))
		}
		seen[n] = true
	}
	if len(seen) != len(s.Params) {
		return fmt.Errorf("statement references %d placeholders but carries %d params", len(seen), len(s.Params))
	}
	return nil
}

// Placeholders returns the number of distinct positional placeholders in sql
func Placeholders(sql string) int {
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllString(sql, -1) {
		seen[m] = true
	}
	return len(seen)
}
