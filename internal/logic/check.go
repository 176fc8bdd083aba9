package logic

import (
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// definitions is the set of predicates a knowledge base can answer for.
type definitions map[ast.PredicateSym]bool

func collectDefinitions(unit parse.SourceUnit, linked []LinkedPredicate) definitions {
	defs := make(definitions, len(unit.Decls)+len(unit.Clauses)+len(linked))
	for _, decl := range unit.Decls {
		defs[decl.DeclaredAtom.Predicate] = true
	}
	for _, clause := range unit.Clauses {
		defs[clause.Head.Predicate] = true
	}
	for _, lp := range linked {
		defs[lp.sym()] = true
	}
	return defs
}

func isBuiltin(sym ast.PredicateSym) bool {
	return strings.HasPrefix(sym.Symbol, ":")
}

// checkClause returns an exception term when the clause calls an undefined
// predicate or needs a variable that nothing in its body binds.
func checkClause(clause ast.Clause, defs definitions, context Term) Term {
	for _, premise := range clause.Premises {
		var atom ast.Atom
		switch p := premise.(type) {
		case ast.Atom:
			atom = p
		case ast.NegAtom:
			atom = p.Atom
		default:
			continue
		}
		if isBuiltin(atom.Predicate) {
			continue
		}
		if !defs[atom.Predicate] {
			return existenceError(atom.Predicate, context)
		}
	}
	// transforms introduce head variables through let statements
	if clause.Transform != nil {
		return nil
	}
	if len(unboundVariables(clause)) > 0 {
		return instantiationError(context)
	}
	return nil
}

// unboundVariables reports variables that must be bound (head, negation,
// comparisons) but are bound by no positive atom or equality chain.
func unboundVariables(clause ast.Clause) []string {
	bound := make(map[string]bool)
	for _, premise := range clause.Premises {
		if atom, ok := premise.(ast.Atom); ok && !isBuiltin(atom.Predicate) {
			for _, name := range premiseVariables(atom, map[string]bool{}, nil) {
				bound[name] = true
			}
		}
	}

	allBound := func(t ast.BaseTerm) bool {
		for _, name := range variablesOf(t, map[string]bool{}, nil) {
			if !bound[name] {
				return false
			}
		}
		return true
	}

	for changed := true; changed; {
		changed = false
		for _, premise := range clause.Premises {
			eq, ok := premise.(ast.Eq)
			if !ok {
				continue
			}
			if v, isVar := eq.Left.(ast.Variable); isVar && !bound[v.Symbol] && allBound(eq.Right) {
				bound[v.Symbol] = true
				changed = true
			}
			if v, isVar := eq.Right.(ast.Variable); isVar && !bound[v.Symbol] && allBound(eq.Left) {
				bound[v.Symbol] = true
				changed = true
			}
		}
	}

	seen := make(map[string]bool)
	var required []string
	for _, arg := range clause.Head.Args {
		required = variablesOf(arg, seen, required)
	}
	for _, premise := range clause.Premises {
		switch p := premise.(type) {
		case ast.NegAtom, ast.Eq, ast.Ineq:
			required = premiseVariables(p, seen, required)
		}
	}

	var unbound []string
	for _, name := range required {
		if !bound[name] {
			unbound = append(unbound, name)
		}
	}
	return unbound
}
