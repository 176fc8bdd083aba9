package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"

	"constraintkit/internal/logging"
)

var (
	// ErrSealed is returned when a sealed knowledge base is modified.
	ErrSealed = errors.New("knowledge base is sealed")
	// ErrNotSealed is returned when a thread is used before Seal.
	ErrNotSealed = errors.New("knowledge base is not sealed")
	// ErrUnknownModule is returned when consulting a module nobody registered.
	ErrUnknownModule = errors.New("unknown module")
)

// Options tunes evaluation.
type Options struct {
	// FactLimit caps the number of facts one query may derive. Zero means no cap.
	FactLimit int
}

// KnowledgeBase accumulates consulted sources until Seal, then serves
// queries read-only.
type KnowledgeBase struct {
	opts Options

	mu     sync.RWMutex
	units  []parse.SourceUnit
	linked []LinkedPredicate
	sealed bool

	// populated by Seal
	clauses []ast.Clause
	decls   []ast.Decl
	defs    definitions
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase(opts Options) *KnowledgeBase {
	return &KnowledgeBase{opts: opts}
}

type consultConfig struct {
	lineOffset int
}

// ConsultOption configures a single Consult call.
type ConsultOption func(*consultConfig)

// WithLineOffset shifts reported syntax error lines back by n so they refer
// to a region that starts n lines into the consulted text.
func WithLineOffset(n int) ConsultOption {
	return func(c *consultConfig) { c.lineOffset = n }
}

// Consult parses source and adds its clauses and declarations. A parse
// failure is returned as an *Exception carrying a syntax_error term.
func (kb *KnowledgeBase) Consult(ctx context.Context, source string, opts ...ConsultOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cfg consultConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.sealed {
		return ErrSealed
	}

	unit, err := parse.Unit(strings.NewReader(source))
	if err != nil {
		logging.KernelDebug("consult failed to parse: %v", err)
		return Throw(syntaxError(err, cfg.lineOffset))
	}
	kb.units = append(kb.units, unit)
	logging.KernelDebug("consulted %d clauses, %d decls", len(unit.Clauses), len(unit.Decls))
	return nil
}

// Link registers predicates computed by Go code and consults their declarations.
func (kb *KnowledgeBase) Link(ctx context.Context, preds ...LinkedPredicate) error {
	for _, lp := range preds {
		if lp.Resolve == nil {
			return fmt.Errorf("linked predicate %s has no resolver", lp.Name)
		}
	}
	if err := kb.Consult(ctx, linkedDecls(preds)); err != nil {
		return err
	}
	kb.mu.Lock()
	kb.linked = append(kb.linked, preds...)
	kb.mu.Unlock()
	return nil
}

// ConsultModule consults a source registered with RegisterModule.
func (kb *KnowledgeBase) ConsultModule(ctx context.Context, name string) error {
	source, ok := Module(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return kb.Consult(ctx, source)
}

// Seal validates the accumulated program and freezes it. Every called
// predicate must be defined and every clause must bind the variables it
// needs; violations surface as *Exception values.
func (kb *KnowledgeBase) Seal() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.sealed {
		return nil
	}

	timer := logging.StartTimer(logging.CategoryKernel, "seal")
	defer timer.Stop()

	var merged parse.SourceUnit
	declared := make(map[ast.PredicateSym]bool)
	for _, unit := range kb.units {
		merged.Clauses = append(merged.Clauses, unit.Clauses...)
		for _, decl := range unit.Decls {
			sym := decl.DeclaredAtom.Predicate
			if declared[sym] {
				continue
			}
			declared[sym] = true
			merged.Decls = append(merged.Decls, decl)
		}
	}

	defs := collectDefinitions(merged, nil)
	for _, clause := range merged.Clauses {
		if thrown := checkClause(clause, defs, clauseContext(clause.Head)); thrown != nil {
			return Throw(thrown)
		}
	}

	if _, err := analysis.AnalyzeOneUnit(merged, nil); err != nil {
		logging.KernelError("analysis failed: %v", err)
		return Throw(systemError(err, consultContext))
	}

	kb.clauses = merged.Clauses
	kb.decls = merged.Decls
	kb.defs = defs
	kb.units = nil
	kb.sealed = true
	logging.Kernel("knowledge base sealed: %d clauses, %d decls, %d linked", len(kb.clauses), len(kb.decls), len(kb.linked))
	return nil
}

// Sealed reports whether Seal has completed.
func (kb *KnowledgeBase) Sealed() bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.sealed
}

// NewThread creates an independent resolution context.
func (kb *KnowledgeBase) NewThread() *Thread {
	return &Thread{kb: kb}
}

// =============================================================================
// MODULE REGISTRY
// =============================================================================

var (
	modulesMu sync.RWMutex
	modules   = make(map[string]string)
)

// RegisterModule makes source available to ConsultModule under name.
// Registering the same name again replaces the previous source.
func RegisterModule(name, source string) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules[name] = source
}

// Module returns the source registered under name.
func Module(name string) (string, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	source, ok := modules[name]
	return source, ok
}
