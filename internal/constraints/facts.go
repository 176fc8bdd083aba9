package constraints

import (
	"strings"

	"constraintkit/internal/logging"
	"constraintkit/internal/logic"
	"constraintkit/internal/project"
)

// Fact predicates describing the workspace graph.
const (
	PredDependencyType         = "dependency_type"
	PredWorkspace              = "workspace"
	PredWorkspaceIdent         = "workspace_ident"
	PredWorkspaceVersion       = "workspace_version"
	PredWorkspaceHasDependency = "workspace_has_dependency"
)

// Escape renders an optional string as a constant: a quoted string, or the
// empty-sequence token for nil.
func Escape(s *string) string {
	return logic.StrOrNil(s).String()
}

// BuildFactBase renders the project's workspace graph as facts followed by
// the fallback declarations of every fact predicate. The output depends only
// on the project and is regenerated on every call.
func BuildFactBase(p *project.Project) string {
	var sb strings.Builder
	line := func(s string) {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}

	for _, depType := range project.DependencyTypes {
		line(logic.Fact(PredDependencyType, logic.Str(depType)))
	}

	facts := len(project.DependencyTypes)
	if p != nil {
		for _, ws := range p.Workspaces {
			cwd := logic.Str(ws.Cwd)
			line(logic.Fact(PredWorkspace, cwd))
			line(logic.Fact(PredWorkspaceIdent, cwd, logic.Str(ws.Ident.String())))
			line(logic.Fact(PredWorkspaceVersion, cwd, logic.StrOrNil(ws.Version)))
			facts += 3

			if ws.Manifest == nil {
				logging.FactsDebug("workspace %s has no manifest", ws.Cwd)
				continue
			}
			for _, depType := range project.DependencyTypes {
				for _, dep := range ws.Manifest.Dependencies[depType] {
					line(logic.Fact(PredWorkspaceHasDependency,
						cwd,
						logic.Str(dep.Ident.String()),
						logic.Str(dep.Range),
						logic.Str(depType),
					))
					facts++
				}
			}
		}
	}

	sb.WriteString(factFallbacks())
	logging.Facts("fact base built: %d facts", facts)
	return sb.String()
}
