package logic

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/mangle/ast"
)

// Exception is a thrown term surfaced as a Go error.
type Exception struct {
	Term Term
}

func (e *Exception) Error() string {
	return "uncaught exception: " + e.Term.String()
}

// Throw wraps a term into an Exception.
func Throw(t Term) *Exception {
	return &Exception{Term: t}
}

var (
	consultContext  = Indicator("consult", 1)
	topLevelContext = Indicator("top_level", 0)
)

// parser diagnostics carry "line:column" somewhere in the message
var positionPattern = regexp.MustCompile(`(?:line\s*)?(\d+):(\d+)`)

// syntaxError builds error(syntax_error(Msg), [line(L), column(C)]) from
// the first parser diagnostic. lineOffset is subtracted from the reported
// line so positions refer to the caller's text rather than any generated
// preamble.
func syntaxError(err error, lineOffset int) Term {
	msg := strings.TrimSpace(err.Error())
	if first, _, ok := strings.Cut(msg, "\n"); ok {
		msg = strings.TrimSpace(first)
	}
	var position []Term
	if m := positionPattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		column, _ := strconv.Atoi(m[2])
		if line-lineOffset >= 1 {
			line -= lineOffset
		}
		position = append(position,
			NewCompound("line", Int(line)),
			NewCompound("column", Int(column)),
		)
		if rest := strings.Trim(strings.Replace(msg, m[0], "", 1), " :\t"); rest != "" {
			msg = rest
		}
	}
	return NewCompound("error",
		NewCompound("syntax_error", Str(msg)),
		List(position...),
	)
}

func existenceError(sym ast.PredicateSym, context Term) Term {
	return NewCompound("error",
		NewCompound("existence_error", Atom("procedure"), Indicator(sym.Symbol, sym.Arity)),
		context,
	)
}

func instantiationError(context Term) Term {
	return NewCompound("error", Atom("instantiation_error"), context)
}

func systemError(err error, context Term) Term {
	return NewCompound("error",
		NewCompound("system_error", Str(err.Error())),
		context,
	)
}

func clauseContext(head ast.Atom) Term {
	return Indicator(head.Predicate.Symbol, head.Predicate.Arity)
}
