package logic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"constraintkit/internal/logging"
)

// queryPredicate names the synthetic rule a query body is compiled into.
const queryPredicate = "query__goal"

// packageDeclSymbol is the predicate of the implicit Package() declaration.
const packageDeclSymbol = "Package"

// Answer is one response of the answer protocol: a Solution, a Thrown
// exception or Exhausted.
type Answer interface {
	isAnswer()
}

// Solution binds the query's named variables, in order of first appearance.
type Solution struct {
	Vars   []string
	Values []Term
}

// Thrown carries the exception term raised while answering.
type Thrown struct {
	Term Term
}

// Exhausted signals that no further answers exist.
type Exhausted struct{}

func (Solution) isAnswer()  {}
func (Thrown) isAnswer()    {}
func (Exhausted) isAnswer() {}

// Lookup returns the value bound to name.
func (s Solution) Lookup(name string) (Term, bool) {
	for i, v := range s.Vars {
		if v == name {
			return s.Values[i], true
		}
	}
	return nil, false
}

// Thread is an independent resolution context over a sealed knowledge base.
// It holds at most one query; issuing a new query discards the previous one.
type Thread struct {
	kb *KnowledgeBase

	mu    sync.Mutex
	query *pendingQuery
}

type pendingQuery struct {
	source    string
	evaluated bool
	thrown    Term
	solutions []Solution
	next      int
}

// Query sets the goal the following Answer calls enumerate. The source is a
// conjunction of literals; parse and validation failures are delivered as a
// Thrown answer.
func (t *Thread) Query(source string) error {
	if !t.kb.Sealed() {
		return ErrNotSealed
	}
	t.mu.Lock()
	t.query = &pendingQuery{source: source}
	t.mu.Unlock()
	return nil
}

// Answer computes the next answer on a separate goroutine and passes it to
// cb. The first call evaluates the query.
func (t *Thread) Answer(cb func(Answer)) {
	go func() {
		cb(t.step())
	}()
}

func (t *Thread) step() Answer {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.query
	if q == nil {
		return Thrown{Term: systemError(errors.New("no query issued"), topLevelContext)}
	}
	if !q.evaluated {
		q.solutions, q.thrown = t.kb.solve(q.source)
		q.evaluated = true
	}
	if q.thrown != nil {
		thrown := q.thrown
		// the exception ends the enumeration
		q.thrown = nil
		q.solutions = nil
		return Thrown{Term: thrown}
	}
	if q.next >= len(q.solutions) {
		return Exhausted{}
	}
	s := q.solutions[q.next]
	q.next++
	return s
}

// compileQuery turns a query body into a rule whose head carries every named
// variable of the body.
func compileQuery(source string) (ast.Clause, []string, Term) {
	body := strings.TrimSpace(source)
	body = strings.TrimRight(body, ". \t\r\n")
	if body == "" {
		return ast.Clause{}, nil, syntaxError(errors.New("empty query"), 0)
	}

	// the body starts on line 2 of the synthetic rule
	text := fmt.Sprintf("%s(0) :-\n%s.", queryPredicate, body)
	unit, err := parse.Unit(strings.NewReader(text))
	if err != nil {
		return ast.Clause{}, nil, syntaxError(err, 1)
	}
	if len(unit.Clauses) != 1 || len(userDecls(unit)) != 0 {
		return ast.Clause{}, nil, syntaxError(errors.New("query must be a single conjunction"), 0)
	}

	clause := unit.Clauses[0]
	seen := make(map[string]bool)
	var vars []string
	for _, premise := range clause.Premises {
		vars = premiseVariables(premise, seen, vars)
	}

	args := make([]ast.BaseTerm, 0, len(vars))
	for _, v := range vars {
		args = append(args, ast.Variable{Symbol: v})
	}
	if len(args) == 0 {
		args = append(args, ast.Number(0))
	}
	clause.Head = ast.Atom{
		Predicate: ast.PredicateSym{Symbol: queryPredicate, Arity: len(args)},
		Args:      args,
	}
	return clause, vars, nil
}

// userDecls drops the package declaration the parser adds to every unit.
func userDecls(unit parse.SourceUnit) []ast.Decl {
	var decls []ast.Decl
	for _, d := range unit.Decls {
		if d.DeclaredAtom.Predicate.Symbol == packageDeclSymbol {
			continue
		}
		decls = append(decls, d)
	}
	return decls
}

// solve evaluates source against the sealed program into a fresh store and
// returns the sorted solutions, or the exception term raised on the way.
func (kb *KnowledgeBase) solve(source string) ([]Solution, Term) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	timer := logging.StartTimer(logging.CategoryQuery, "solve")
	defer timer.Stop()

	clause, vars, thrown := compileQuery(source)
	if thrown != nil {
		return nil, thrown
	}
	if thrown := checkClause(clause, kb.defs, topLevelContext); thrown != nil {
		return nil, thrown
	}

	unit := parse.SourceUnit{
		Clauses: append(append(make([]ast.Clause, 0, len(kb.clauses)+1), kb.clauses...), clause),
		Decls:   kb.decls,
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, systemError(err, topLevelContext)
	}

	store := newLinkStore(factstore.NewSimpleInMemoryStore(), kb.linked)
	var evalOpts []engine.EvalOption
	if kb.opts.FactLimit > 0 {
		evalOpts = append(evalOpts, engine.WithCreatedFactLimit(kb.opts.FactLimit))
	}
	if _, err := engine.EvalProgramWithStats(info, store, evalOpts...); err != nil {
		logging.KernelError("evaluation failed: %v", err)
		return nil, systemError(err, topLevelContext)
	}
	if err := store.Err(); err != nil {
		return nil, systemError(err, topLevelContext)
	}

	var solutions []Solution
	var keys []string
	err = store.GetFacts(ast.NewQuery(clause.Head.Predicate), func(atom ast.Atom) error {
		s := Solution{Vars: vars, Values: make([]Term, len(vars))}
		for i := range vars {
			s.Values[i] = fromBaseTerm(atom.Args[i])
		}
		solutions = append(solutions, s)
		return nil
	})
	if err != nil {
		return nil, systemError(err, topLevelContext)
	}

	keys = make([]string, len(solutions))
	for i, s := range solutions {
		parts := make([]string, len(s.Values))
		for j, v := range s.Values {
			parts[j] = v.String()
		}
		keys[i] = strings.Join(parts, "\x00")
	}
	sort.Sort(byKey{solutions: solutions, keys: keys})

	logging.QueryDebug("query produced %d solutions", len(solutions))
	return solutions, nil
}

type byKey struct {
	solutions []Solution
	keys      []string
}

func (b byKey) Len() int           { return len(b.solutions) }
func (b byKey) Less(i, j int) bool { return b.keys[i] < b.keys[j] }
func (b byKey) Swap(i, j int) {
	b.solutions[i], b.solutions[j] = b.solutions[j], b.solutions[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}
