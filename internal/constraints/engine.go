// Package constraints evaluates workspace policies written as Mangle rules.
// The project's workspace graph is compiled into facts, the user's rules
// derive gen_enforced_dependency and gen_enforced_field conclusions, and
// those are returned as sorted Go values.
package constraints

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"constraintkit/internal/config"
	"constraintkit/internal/logging"
	"constraintkit/internal/logic"
	"constraintkit/internal/project"
)

// slowProcessThreshold is the Process duration above which a warning is logged.
const slowProcessThreshold = 5 * time.Second

// Canonical queries evaluated by Process.
const (
	enforcedDependenciesQuery = "workspace(WorkspaceCwd), dependency_type(DependencyType), " +
		"gen_enforced_dependency(WorkspaceCwd, DependencyIdent, DependencyRange, DependencyType)."
	enforcedFieldsQuery = "workspace(WorkspaceCwd), " +
		"gen_enforced_field(WorkspaceCwd, FieldPath, FieldValue)."
)

// EnforcedDependency requires a workspace to list a dependency with a range,
// or to not list it at all when DependencyRange is nil.
type EnforcedDependency struct {
	Workspace       *project.Workspace
	DependencyIdent project.Ident
	DependencyRange *string
	DependencyType  project.DependencyType
}

// EnforcedField requires a manifest field to hold a JSON value, or to be
// absent when FieldValue is nil.
type EnforcedField struct {
	Workspace  *project.Workspace
	FieldPath  string
	FieldValue *string
}

// Result holds the conclusions of one Process run.
type Result struct {
	EnforcedDependencies []EnforcedDependency
	EnforcedFields       []EnforcedField
}

// Engine evaluates a project's rule source.
type Engine struct {
	project   *project.Project
	cfg       *config.Config
	rulesPath string
	rules     string
}

// NewEngine reads the configured rule file relative to the project root. A
// missing file yields an empty rule set.
func NewEngine(p *project.Project, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{project: p, cfg: cfg}
	if p != nil {
		e.rulesPath = cfg.RulesFile(p.Cwd)
	}

	if e.rulesPath != "" {
		data, err := os.ReadFile(e.rulesPath)
		switch {
		case err == nil:
			e.rules = string(data)
			logging.Kernel("loaded rules from %s (%d bytes)", e.rulesPath, len(data))
		case errors.Is(err, os.ErrNotExist):
			logging.Kernel("no rule file at %s, using empty rule set", e.rulesPath)
		default:
			return nil, fmt.Errorf("failed to read rules: %w", err)
		}
	}
	return e, nil
}

// NewEngineWithRules builds an engine over rule text that does not come from disk.
func NewEngineWithRules(p *project.Project, cfg *config.Config, rules string) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Engine{project: p, cfg: cfg, rules: rules}
}

// Project returns the project the engine evaluates.
func (e *Engine) Project() *project.Project {
	return e.project
}

// RulesPath returns the rule file the engine was created from, if any.
func (e *Engine) RulesPath() string {
	return e.rulesPath
}

// Rules returns the rule source text.
func (e *Engine) Rules() string {
	return e.rules
}

// NewSession creates a session over the engine's project and rules.
func (e *Engine) NewSession(ctx context.Context) (*Session, error) {
	return NewSession(ctx, e.project, e.rules, SessionOptions{
		FactLimit:    e.cfg.Constraints.FactLimit,
		QueryTimeout: e.cfg.GetQueryTimeout(),
	})
}

// Process creates one session and evaluates both canonical queries, each on
// its own thread.
func (e *Engine) Process(ctx context.Context) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "process")
	defer timer.StopWithThreshold(slowProcessThreshold)

	session, err := e.NewSession(ctx)
	if err != nil {
		return nil, err
	}

	var result Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps, err := e.enforcedDependencies(gctx, session.CreateThread())
		result.EnforcedDependencies = deps
		return err
	})
	g.Go(func() error {
		fields, err := e.enforcedFields(gctx, session.CreateThread())
		result.EnforcedFields = fields
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.Query("process: %d enforced dependencies, %d enforced fields",
		len(result.EnforcedDependencies), len(result.EnforcedFields))
	return &result, nil
}

func (e *Engine) enforcedDependencies(ctx context.Context, th *Thread) ([]EnforcedDependency, error) {
	var out []EnforcedDependency
	for sol, err := range th.MakeQuery(ctx, enforcedDependenciesQuery) {
		if err != nil {
			return nil, err
		}
		ws, err := e.workspaceBinding(sol)
		if err != nil {
			return nil, err
		}

		identText := bindingLink(sol, "DependencyIdent")
		if identText == nil {
			return nil, invalidRule("dependency identifier must not be null (workspace %s)", ws.Cwd)
		}
		ident, err := project.ParseIdent(*identText)
		if err != nil {
			return nil, invalidRule("%v (workspace %s)", err, ws.Cwd)
		}

		typeText := bindingLink(sol, "DependencyType")
		if typeText == nil {
			return nil, invalidRule("dependency type must not be null (workspace %s)", ws.Cwd)
		}
		depType, err := project.ParseDependencyType(*typeText)
		if err != nil {
			return nil, invalidRule("%v (workspace %s)", err, ws.Cwd)
		}

		out = append(out, EnforcedDependency{
			Workspace:       ws,
			DependencyIdent: ident,
			DependencyRange: bindingLink(sol, "DependencyRange"),
			DependencyType:  depType,
		})
	}
	SortEnforcedDependencies(out)
	return out, nil
}

func (e *Engine) enforcedFields(ctx context.Context, th *Thread) ([]EnforcedField, error) {
	var out []EnforcedField
	for sol, err := range th.MakeQuery(ctx, enforcedFieldsQuery) {
		if err != nil {
			return nil, err
		}
		ws, err := e.workspaceBinding(sol)
		if err != nil {
			return nil, err
		}

		path := bindingLink(sol, "FieldPath")
		if path == nil {
			return nil, invalidRule("field path must not be null (workspace %s)", ws.Cwd)
		}

		var value *string
		if v, ok := sol.Lookup("FieldValue"); ok {
			value = ParseLinkToJSON(v)
		}
		out = append(out, EnforcedField{Workspace: ws, FieldPath: *path, FieldValue: value})
	}
	SortEnforcedFields(out)
	return out, nil
}

func (e *Engine) workspaceBinding(sol logic.Solution) (*project.Workspace, error) {
	cwd := bindingLink(sol, "WorkspaceCwd")
	if cwd == nil {
		return nil, invalidRule("workspace path must not be null")
	}
	var ws *project.Workspace
	if e.project != nil {
		ws = e.project.Workspace(*cwd)
	}
	if ws == nil {
		return nil, invalidRule("%q does not name a workspace", *cwd)
	}
	return ws, nil
}

func bindingLink(sol logic.Solution, name string) *string {
	v, ok := sol.Lookup(name)
	if !ok {
		return nil
	}
	return ParseLink(v)
}

// SortEnforcedDependencies orders entries with a range before those without,
// then by workspace ident, dependency ident, type and range.
func SortEnforcedDependencies(deps []EnforcedDependency) {
	sort.SliceStable(deps, func(i, j int) bool {
		a, b := deps[i], deps[j]
		if (a.DependencyRange == nil) != (b.DependencyRange == nil) {
			return a.DependencyRange != nil
		}
		if x, y := a.Workspace.Ident.String(), b.Workspace.Ident.String(); x != y {
			return x < y
		}
		if x, y := a.DependencyIdent.String(), b.DependencyIdent.String(); x != y {
			return x < y
		}
		if a.DependencyType != b.DependencyType {
			return a.DependencyType < b.DependencyType
		}
		return lessOptional(a.DependencyRange, b.DependencyRange)
	})
}

// SortEnforcedFields orders entries by workspace ident, field path and value.
func SortEnforcedFields(fields []EnforcedField) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i], fields[j]
		if x, y := a.Workspace.Ident.String(), b.Workspace.Ident.String(); x != y {
			return x < y
		}
		if a.FieldPath != b.FieldPath {
			return a.FieldPath < b.FieldPath
		}
		return lessOptional(a.FieldValue, b.FieldValue)
	})
}

// lessOptional orders nil before any string.
func lessOptional(a, b *string) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return *a < *b
	}
}

// =============================================================================
// AD HOC QUERIES
// =============================================================================

// ContextBinding pre-binds a query variable to a string value.
type ContextBinding struct {
	Name  string
	Value string
}

// QueryOptions configures Engine.Query.
type QueryOptions struct {
	Context []ContextBinding
	// Session to query; a new one is created when nil.
	Session *Session
}

// BuildQueryText prefixes one equality goal per context binding and ends the
// text with exactly one period.
func BuildQueryText(text string, bindings []ContextBinding) string {
	var sb strings.Builder
	for _, b := range bindings {
		sb.WriteString(b.Name)
		sb.WriteString(" = ")
		sb.WriteString(logic.Quote(b.Value))
		sb.WriteString(", ")
	}
	sb.WriteString(strings.TrimRight(text, ". \t\r\n"))
	sb.WriteByte('.')
	return sb.String()
}

// Query runs an ad hoc query on a fresh thread and yields each answer's
// bindings with values converted by ParseLink. The sequence is lazy and can
// be ranged once.
func (e *Engine) Query(ctx context.Context, text string, opts QueryOptions) iter.Seq2[map[string]*string, error] {
	full := BuildQueryText(text, opts.Context)
	var consumed atomic.Bool
	return func(yield func(map[string]*string, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(nil, ErrSequenceConsumed)
			return
		}

		session := opts.Session
		if session == nil {
			var err error
			session, err = e.NewSession(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
		}

		logging.QueryDebug("ad hoc query: %s", full)
		for sol, err := range session.CreateThread().MakeQuery(ctx, full) {
			if err != nil {
				yield(nil, err)
				return
			}
			bindings := make(map[string]*string, len(sol.Vars))
			for i, name := range sol.Vars {
				if name == "_" {
					continue
				}
				bindings[name] = ParseLink(sol.Values[i])
			}
			if !yield(bindings, nil) {
				return
			}
		}
	}
}
