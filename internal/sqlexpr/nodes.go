package sqlexpr

import "strings"

// Raw is trusted SQL text, written verbatim
type Raw string

func (r Raw) WriteSQL(w *Writer) { w.WriteString(string(r)) }

// Ident is a schema-declared identifier. Callers validate it before use.
type Ident string

func (i Ident) WriteSQL(w *Writer) { w.WriteString(string(i)) }

// Literal is a string constant rendered with single quotes
type Literal string

func (l Literal) WriteSQL(w *Writer) {
	w.WriteString("'" + strings.ReplaceAll(string(l), "'", "''") + "'")
}

// Param is a bound value. Identity matters: the same *Param rendered twice
// shares one placeholder.
type Param struct {
	Value interface{}
}

// Arg wraps v as a bound parameter
func Arg(v interface{}) *Param { return &Param{Value: v} }

func (p *Param) WriteSQL(w *Writer) { w.Bind(p) }

type Func struct {
	Name string
	Args []Node
}

func (f Func) WriteSQL(w *Writer) {
	w.WriteString(f.Name)
	w.WriteString("(")
	writeList(w, f.Args, ", ")
	w.WriteString(")")
}

// Call is shorthand for Func
func Call(name string, args ...Node) Func { return Func{Name: name, Args: args} }

// Cast renders CAST(expr AS type)
type Cast struct {
	Expr Node
	Type string
}

func (c Cast) WriteSQL(w *Writer) {
	w.WriteString("CAST(")
	c.Expr.WriteSQL(w)
	w.WriteString(" AS " + c.Type + ")")
}

// PgCast renders expr::type
type PgCast struct {
	Expr Node
	Type string
}

func (c PgCast) WriteSQL(w *Writer) {
	c.Expr.WriteSQL(w)
	w.WriteString("::" + c.Type)
}

// Extract renders EXTRACT(field FROM expr)
type Extract struct {
	Field string
	From  Node
}

func (e Extract) WriteSQL(w *Writer) {
	w.WriteString("EXTRACT(" + e.Field + " FROM ")
	e.From.WriteSQL(w)
	w.WriteString(")")
}

type Binary struct {
	Left  Node
	Op    string
	Right Node
}

func (b Binary) WriteSQL(w *Writer) {
	b.Left.WriteSQL(w)
	w.WriteString(" " + b.Op + " ")
	b.Right.WriteSQL(w)
}

func Eq(l, r Node) Binary  { return Binary{Left: l, Op: "=", Right: r} }
func Gte(l, r Node) Binary { return Binary{Left: l, Op: ">=", Right: r} }
func Lte(l, r Node) Binary { return Binary{Left: l, Op: "<=", Right: r} }

// And joins predicates with AND. An empty And renders TRUE so a WHERE clause
// built from it is never dangling.
type And []Node

func (a And) WriteSQL(w *Writer) {
	if len(a) == 0 {
		w.WriteString("TRUE")
		return
	}
	writeList(w, a, " AND ")
}

// Or joins predicates with OR inside parentheses. An empty Or renders FALSE.
type Or []Node

func (o Or) WriteSQL(w *Writer) {
	if len(o) == 0 {
		w.WriteString("FALSE")
		return
	}
	w.WriteString("(")
	writeList(w, o, " OR ")
	w.WriteString(")")
}

// Tuple renders (a, b, ...); an empty tuple renders ()
type Tuple []Node

func (t Tuple) WriteSQL(w *Writer) {
	w.WriteString("(")
	writeList(w, t, ", ")
	w.WriteString(")")
}

// Array renders ARRAY[a, b, ...]
type Array []Node

func (a Array) WriteSQL(w *Writer) {
	w.WriteString("ARRAY[")
	writeList(w, a, ", ")
	w.WriteString("]")
}

// As renders expr AS alias
type As struct {
	Expr  Node
	Alias string
}

func (a As) WriteSQL(w *Writer) {
	a.Expr.WriteSQL(w)
	w.WriteString(" AS " + a.Alias)
}

// Seq concatenates nodes without separators
type Seq []Node

func (s Seq) WriteSQL(w *Writer) {
	for _, n := range s {
		n.WriteSQL(w)
	}
}

// Int renders an integer literal
type Int int

func (i Int) WriteSQL(w *Writer) { w.WriteString(itoa(int(i))) }

func writeList(w *Writer, nodes []Node, sep string) {
	for i, n := range nodes {
		if i > 0 {
			w.WriteString(sep)
		}
		n.WriteSQL(w)
	}
}
