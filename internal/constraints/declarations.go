package constraints

import (
	"encoding/json"
	"strings"
	"sync"

	"constraintkit/internal/logging"
	"constraintkit/internal/logic"
	"constraintkit/internal/project"
)

// Hook predicates rule sources define to enforce policies.
const (
	HookEnforcedDependency = "gen_enforced_dependency"
	HookEnforcedField      = "gen_enforced_field"
)

// PredWorkspaceField is served from workspace manifests on demand.
const PredWorkspaceField = "workspace_field"

// SupportModule names the helper rule library consulted into every session.
const SupportModule = "constraints/support"

// supportLibrary holds helper rules available to rule authors.
const supportLibrary = `
workspace_dependency_ident(WorkspaceCwd, DependencyIdent) :-
  workspace_has_dependency(WorkspaceCwd, DependencyIdent, _, _).

workspace_by_ident(WorkspaceIdent, WorkspaceCwd) :-
  workspace_ident(WorkspaceCwd, WorkspaceIdent).

workspace_depends_on_workspace(WorkspaceCwd, TargetCwd) :-
  workspace_has_dependency(WorkspaceCwd, DependencyIdent, _, _),
  workspace_ident(TargetCwd, DependencyIdent).
`

var initOnce sync.Once

// Init registers the support library with the logic engine. It is idempotent
// and must run before the first session is created; NewSession calls it.
func Init() {
	initOnce.Do(func() {
		logic.RegisterModule(SupportModule, supportLibrary)
		logging.Boot("registered support module %s", SupportModule)
	})
}

// factFallbacks declares every fact predicate so queries against an empty
// project resolve to no answers instead of failing.
func factFallbacks() string {
	return strings.Join([]string{
		logic.Decl(PredWorkspace, "WorkspaceCwd"),
		logic.Decl(PredWorkspaceIdent, "WorkspaceCwd", "WorkspaceIdent"),
		logic.Decl(PredWorkspaceVersion, "WorkspaceCwd", "WorkspaceVersion"),
		logic.Decl(PredWorkspaceHasDependency, "WorkspaceCwd", "DependencyIdent", "DependencyRange", "DependencyType"),
	}, "\n") + "\n"
}

// hookFallbacks declares the hook predicates. They are appended after the
// rule source; a declaration already present in the rule source wins.
func hookFallbacks() string {
	return strings.Join([]string{
		logic.Decl(HookEnforcedDependency, "WorkspaceCwd", "DependencyIdent", "DependencyRange", "DependencyType"),
		logic.Decl(HookEnforcedField, "WorkspaceCwd", "FieldPath", "FieldValue"),
	}, "\n") + "\n"
}

// workspaceFieldLink serves workspace_field(Cwd, FieldPath, Value) from the
// parsed manifests. An unbound FieldPath enumerates top-level fields.
func workspaceFieldLink(p *project.Project) logic.LinkedPredicate {
	return logic.LinkedPredicate{
		Name:   PredWorkspaceField,
		Params: []string{"WorkspaceCwd", "FieldPath", "FieldValue"},
		Resolve: func(args []logic.Term) ([][]logic.Term, error) {
			var rows [][]logic.Term
			for _, ws := range p.Workspaces {
				if args[0] != nil {
					if cwd, ok := args[0].(logic.Str); !ok || string(cwd) != ws.Cwd {
						continue
					}
				}
				if ws.Manifest == nil {
					continue
				}

				var paths []string
				if path, ok := args[1].(logic.Str); ok {
					paths = []string{string(path)}
				} else if args[1] == nil {
					paths = ws.Manifest.Fields()
				}

				for _, path := range paths {
					raw, ok := ws.Manifest.Field(path)
					if !ok {
						continue
					}
					v, err := fieldTerm(raw)
					if err != nil {
						return nil, err
					}
					rows = append(rows, []logic.Term{logic.Str(ws.Cwd), logic.Str(path), v})
				}
			}
			return rows, nil
		},
	}
}

// fieldTerm converts a decoded manifest value. Strings and numbers keep their
// type; anything else is surfaced as compact JSON text.
func fieldTerm(raw any) (logic.Term, error) {
	switch v := raw.(type) {
	case string:
		return logic.Str(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return logic.Int(n), nil
		}
		if f, err := v.Float64(); err == nil {
			return logic.Float(f), nil
		}
		return logic.Str(v.String()), nil
	default:
		text, err := encodeJSON(v)
		if err != nil {
			return nil, err
		}
		return logic.Str(text), nil
	}
}
