// Package logic adapts the Google Mangle engine to a consult/query/answer
// protocol: sources are consulted into a knowledge base, queries are issued on
// independent threads, and answers are requested one at a time through a
// callback. Failures travel as exception terms rather than Go errors so callers
// can interpret them structurally.
package logic

import (
	"strconv"
	"strings"
)

// Term is a value in the engine's term language. The set of implementations is
// closed: Atom, Str, Int, Float, Compound and the empty sequence Nil.
type Term interface {
	String() string
	isTerm()
}

// Atom is a symbolic identifier. Mangle name constants keep their leading slash.
type Atom string

// Str is a string constant.
type Str string

// Int is an integer constant.
type Int int64

// Float is a floating point constant.
type Float float64

// Compound is a functor applied to arguments.
type Compound struct {
	Functor string
	Args    []Term
}

type nilTerm struct{}

// Nil is the empty-sequence token. It doubles as the null sentinel in facts.
var Nil Term = nilTerm{}

func (Atom) isTerm()     {}
func (Str) isTerm()      {}
func (Int) isTerm()      {}
func (Float) isTerm()    {}
func (Compound) isTerm() {}
func (nilTerm) isTerm()  {}

func (a Atom) String() string  { return string(a) }
func (s Str) String() string   { return Quote(string(s)) }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }
func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }
func (nilTerm) String() string { return "[]" }

func (c Compound) String() string {
	switch {
	case len(c.Args) == 0:
		return c.Functor
	case c.Functor == "." && len(c.Args) == 2:
		return renderList(c)
	case c.Functor == "/" && len(c.Args) == 2:
		return c.Args[0].String() + "/" + c.Args[1].String()
	}
	var sb strings.Builder
	sb.WriteString(c.Functor)
	sb.WriteByte('(')
	for i, arg := range c.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Indicator returns the predicate indicator term name/arity.
func (c Compound) Indicator() string {
	return c.Functor + "/" + strconv.Itoa(len(c.Args))
}

func renderList(c Compound) string {
	var sb strings.Builder
	sb.WriteByte('[')
	var cur Term = c
	first := true
	for {
		cell, ok := cur.(Compound)
		if !ok || cell.Functor != "." || len(cell.Args) != 2 {
			break
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(cell.Args[0].String())
		cur = cell.Args[1]
	}
	if !IsNil(cur) {
		sb.WriteString(" | ")
		sb.WriteString(cur.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// NewCompound builds functor(args...).
func NewCompound(functor string, args ...Term) Compound {
	return Compound{Functor: functor, Args: args}
}

// Cons builds the sequence cell '.'(head, tail).
func Cons(head, tail Term) Compound {
	return Compound{Functor: ".", Args: []Term{head, tail}}
}

// List builds a Nil-terminated sequence from items.
func List(items ...Term) Term {
	out := Nil
	for i := len(items) - 1; i >= 0; i-- {
		out = Cons(items[i], out)
	}
	return out
}

// Indicator builds the predicate indicator term name/arity.
func Indicator(name string, arity int) Compound {
	return Compound{Functor: "/", Args: []Term{Atom(name), Int(arity)}}
}

// IsNil reports whether t is the empty-sequence token.
func IsNil(t Term) bool {
	_, ok := t.(nilTerm)
	return ok
}
