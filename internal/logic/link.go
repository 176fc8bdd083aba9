package logic

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/factstore"

	"constraintkit/internal/logging"
)

// LinkedPredicate is a predicate whose facts are computed on demand by Go
// code instead of being stored in the knowledge base.
type LinkedPredicate struct {
	Name   string
	Params []string

	// Resolve receives one argument per parameter, nil where the caller left
	// the position unbound, and returns the matching rows.
	Resolve func(args []Term) ([][]Term, error)
}

func (lp LinkedPredicate) sym() ast.PredicateSym {
	return ast.PredicateSym{Symbol: lp.Name, Arity: len(lp.Params)}
}

func (lp LinkedPredicate) decl() string {
	return Decl(lp.Name, lp.Params...)
}

// linkStore serves linked predicates and delegates everything else. The
// evaluator drops errors returned from fact lookups, so the first resolver
// failure is kept and reported through Err.
type linkStore struct {
	base   factstore.FactStore
	linked map[ast.PredicateSym]LinkedPredicate

	mu  sync.Mutex
	err error
}

func newLinkStore(base factstore.FactStore, linked []LinkedPredicate) *linkStore {
	ls := &linkStore{base: base, linked: make(map[ast.PredicateSym]LinkedPredicate, len(linked))}
	for _, lp := range linked {
		ls.linked[lp.sym()] = lp
	}
	return ls
}

func (ls *linkStore) Add(atom ast.Atom) bool {
	return ls.base.Add(atom)
}

func (ls *linkStore) Merge(other factstore.ReadOnlyFactStore) {
	ls.base.Merge(other)
}

func (ls *linkStore) Contains(atom ast.Atom) bool {
	if lp, ok := ls.linked[atom.Predicate]; ok {
		found := false
		if err := ls.resolve(lp, atom, func(ast.Atom) error {
			found = true
			return nil
		}); err != nil {
			return false
		}
		return found
	}
	return ls.base.Contains(atom)
}

func (ls *linkStore) ListPredicates() []ast.PredicateSym {
	return ls.base.ListPredicates()
}

func (ls *linkStore) EstimateFactCount() int {
	return ls.base.EstimateFactCount()
}

func (ls *linkStore) GetFacts(query ast.Atom, fn func(ast.Atom) error) error {
	if lp, ok := ls.linked[query.Predicate]; ok {
		return ls.resolve(lp, query, fn)
	}
	return ls.base.GetFacts(query, fn)
}

func (ls *linkStore) resolve(lp LinkedPredicate, query ast.Atom, fn func(ast.Atom) error) error {
	args := make([]Term, len(query.Args))
	for i, arg := range query.Args {
		if c, ok := arg.(ast.Constant); ok {
			args[i] = fromBaseTerm(c)
		}
	}

	rows, err := lp.Resolve(args)
	if err != nil {
		logging.KernelWarn("linked predicate %s failed: %v", lp.Name, err)
		ls.fail(fmt.Errorf("linked predicate %s: %w", lp.Name, err))
		return err
	}

	for _, row := range rows {
		if len(row) != len(query.Args) {
			continue
		}
		atomArgs := make([]ast.BaseTerm, len(row))
		valid := true
		for i, v := range row {
			c, err := toConstant(v)
			if err != nil {
				valid = false
				break
			}
			atomArgs[i] = c
		}
		if !valid || !factstore.Matches(query.Args, atomArgs) {
			continue
		}
		if err := fn(ast.Atom{Predicate: query.Predicate, Args: atomArgs}); err != nil {
			return err
		}
	}
	return nil
}

func (ls *linkStore) fail(err error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.err == nil {
		ls.err = err
	}
}

// Err returns the first resolver error seen during evaluation.
func (ls *linkStore) Err() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.err
}

// linkedDecls renders declarations for every linked predicate.
func linkedDecls(linked []LinkedPredicate) string {
	var sb strings.Builder
	for _, lp := range linked {
		sb.WriteString(lp.decl())
		sb.WriteByte('\n')
	}
	return sb.String()
}
