package logic

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/mangle/ast"
)

// fromBaseTerm converts an evaluated Mangle term into a Term.
func fromBaseTerm(term ast.BaseTerm) Term {
	switch v := term.(type) {
	case ast.Constant:
		switch v.Type {
		case ast.StringType, ast.BytesType:
			return Str(v.Symbol)
		case ast.NameType:
			return Atom(v.Symbol)
		case ast.NumberType:
			return Int(v.NumValue)
		case ast.Float64Type:
			return Float(math.Float64frombits(uint64(v.NumValue)))
		}
		text := v.String()
		if text == "[]" {
			return Nil
		}
		return Atom(text)
	case ast.ApplyFn:
		if v.Function.Symbol == "fn:list" && len(v.Args) == 0 {
			return Nil
		}
		return Atom(v.String())
	case ast.Variable:
		return Atom(v.Symbol)
	default:
		return Atom(fmt.Sprintf("%v", term))
	}
}

// toConstant converts a Term produced by a linked predicate into a constant.
func toConstant(term Term) (ast.Constant, error) {
	switch v := term.(type) {
	case Str:
		return ast.String(string(v)), nil
	case Int:
		return ast.Number(int64(v)), nil
	case Float:
		return ast.Float64(float64(v)), nil
	case Atom:
		if strings.HasPrefix(string(v), "/") {
			return ast.Name(string(v))
		}
		return ast.String(string(v)), nil
	default:
		return ast.Constant{}, fmt.Errorf("term %s has no constant form", term)
	}
}

// variablesOf appends the variables of term in order of first appearance.
func variablesOf(term ast.BaseTerm, seen map[string]bool, out []string) []string {
	switch v := term.(type) {
	case ast.Variable:
		if v.Symbol == "_" || seen[v.Symbol] {
			return out
		}
		seen[v.Symbol] = true
		return append(out, v.Symbol)
	case ast.ApplyFn:
		for _, arg := range v.Args {
			out = variablesOf(arg, seen, out)
		}
	}
	return out
}

// premiseVariables lists the variables of a premise in order of appearance.
func premiseVariables(premise ast.Term, seen map[string]bool, out []string) []string {
	switch p := premise.(type) {
	case ast.Atom:
		for _, arg := range p.Args {
			out = variablesOf(arg, seen, out)
		}
	case ast.NegAtom:
		for _, arg := range p.Atom.Args {
			out = variablesOf(arg, seen, out)
		}
	case ast.Eq:
		out = variablesOf(p.Left, seen, out)
		out = variablesOf(p.Right, seen, out)
	case ast.Ineq:
		out = variablesOf(p.Left, seen, out)
		out = variablesOf(p.Right, seen, out)
	}
	return out
}
