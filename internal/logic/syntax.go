package logic

import (
	"fmt"
	"strings"
)

// Quote renders s as a single-quoted string constant.
// Backslash, quote, newline, carriage return and tab use short escapes; any
// other control character is written as \xHH. Nothing is dropped.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '\'':
			sb.WriteString(`\'`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&sb, `\x%02x`, r)
				continue
			}
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

// Fact renders a ground compound as a clause terminated by a period.
func Fact(functor string, args ...Term) string {
	return NewCompound(functor, args...).String() + "."
}

// Decl renders a declaration for functor with the given parameter names.
// A declared predicate with no clauses is defined and holds for nothing.
func Decl(functor string, params ...string) string {
	return fmt.Sprintf("Decl %s(%s).", functor, strings.Join(params, ", "))
}

// StrOrNil converts an optional string to a term, using Nil for nil.
func StrOrNil(s *string) Term {
	if s == nil {
		return Nil
	}
	return Str(*s)
}
