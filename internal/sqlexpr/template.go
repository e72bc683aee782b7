package sqlexpr

import (
	"fmt"
	"regexp"
	"strconv"
)

// tokens look like $name$; $1 and $$ never match
var tokenRe = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)\$`)

type segment struct {
	text string
	slot string
}

// Template is SQL text with named $slot$ tokens, parsed once.
// Dollar-quoted PostgreSQL strings are not supported inside templates.
type Template struct {
	segments []segment
	slots    []string
}

// ParseTemplate splits text into literal segments and slots
func ParseTemplate(text string) *Template {
	t := &Template{}
	seen := make(map[string]bool)
	last := 0
	for _, m := range tokenRe.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			t.segments = append(t.segments, segment{text: text[last:m[0]]})
		}
		name := text[m[2]:m[3]]
		t.segments = append(t.segments, segment{slot: name})
		if !seen[name] {
			seen[name] = true
			t.slots = append(t.slots, name)
		}
		last = m[1]
	}
	if last < len(text) {
		t.segments = append(t.segments, segment{text: text[last:]})
	}
	return t
}

// Slots returns the distinct slot names in order of first appearance
func (t *Template) Slots() []string { return t.slots }

func (t *Template) HasSlot(name string) bool {
	for _, s := range t.slots {
		if s == name {
			return true
		}
	}
	return false
}

// Bind attaches nodes to slots. Rendering fails if a slot has no binding or
// a binding names a slot the template does not have.
func (t *Template) Bind(bindings map[string]Node) Node {
	return boundTemplate{t: t, bindings: bindings}
}

type boundTemplate struct {
	t        *Template
	bindings map[string]Node
}

func (b boundTemplate) WriteSQL(w *Writer) {
	for name := range b.bindings {
		if !b.t.HasSlot(name) {
			w.Fail(fmt.Errorf("template has no token $%s$", name))
		}
	}
	for _, seg := range b.t.segments {
		if seg.slot == "" {
			w.WriteString(seg.text)
			continue
		}
		n, ok := b.bindings[seg.slot]
		if !ok || n == nil {
			w.Fail(fmt.Errorf("template token $%s$ has no binding", seg.slot))
			w.WriteString("$" + seg.slot + "$")
			continue
		}
		n.WriteSQL(w)
	}
}

func itoa(i int) string { return strconv.Itoa(i) }
