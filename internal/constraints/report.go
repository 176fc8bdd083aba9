package constraints

import (
	"fmt"

	"constraintkit/internal/project"
)

// ViolationKind classifies a manifest mismatch.
type ViolationKind string

const (
	MissingDependency      ViolationKind = "missing_dependency"
	MismatchedRange        ViolationKind = "mismatched_range"
	ForbiddenDependency    ViolationKind = "forbidden_dependency"
	MismatchedField        ViolationKind = "mismatched_field"
	ForbiddenField         ViolationKind = "forbidden_field"
	ConflictingRequirement ViolationKind = "conflicting_requirement"
)

// Violation is one place where a manifest disagrees with the conclusions.
type Violation struct {
	Workspace *project.Workspace
	Kind      ViolationKind
	Message   string
}

// Check compares every workspace manifest against the result. Violations
// follow the result's order.
func Check(result *Result) []Violation {
	var out []Violation
	out = append(out, checkDependencies(result.EnforcedDependencies)...)
	out = append(out, checkFields(result.EnforcedFields)...)
	return out
}

type depKey struct {
	cwd     string
	ident   project.Ident
	depType project.DependencyType
}

func checkDependencies(deps []EnforcedDependency) []Violation {
	var out []Violation
	required := make(map[depKey]*string)

	for _, dep := range deps {
		ws := dep.Workspace
		key := depKey{cwd: ws.Cwd, ident: dep.DependencyIdent, depType: dep.DependencyType}
		if prev, seen := required[key]; seen {
			if !sameOptional(prev, dep.DependencyRange) {
				out = append(out, Violation{
					Workspace: ws,
					Kind:      ConflictingRequirement,
					Message: fmt.Sprintf("%s: conflicting requirements for %s in %s: %s vs %s",
						ws.Ident, dep.DependencyIdent, dep.DependencyType, describeRange(prev), describeRange(dep.DependencyRange)),
				})
			}
			continue
		}
		required[key] = dep.DependencyRange

		var actual string
		var present bool
		if ws.Manifest != nil {
			actual, present = ws.Manifest.Range(dep.DependencyType, dep.DependencyIdent)
		}

		switch {
		case dep.DependencyRange == nil && present:
			out = append(out, Violation{
				Workspace: ws,
				Kind:      ForbiddenDependency,
				Message:   fmt.Sprintf("%s must not list %s in %s", ws.Ident, dep.DependencyIdent, dep.DependencyType),
			})
		case dep.DependencyRange != nil && !present:
			out = append(out, Violation{
				Workspace: ws,
				Kind:      MissingDependency,
				Message: fmt.Sprintf("%s must list %s@%s in %s",
					ws.Ident, dep.DependencyIdent, *dep.DependencyRange, dep.DependencyType),
			})
		case dep.DependencyRange != nil && actual != *dep.DependencyRange:
			out = append(out, Violation{
				Workspace: ws,
				Kind:      MismatchedRange,
				Message: fmt.Sprintf("%s must depend on %s@%s in %s (found %s)",
					ws.Ident, dep.DependencyIdent, *dep.DependencyRange, dep.DependencyType, actual),
			})
		}
	}
	return out
}

func checkFields(fields []EnforcedField) []Violation {
	var out []Violation
	for _, f := range fields {
		ws := f.Workspace
		var raw any
		var present bool
		if ws.Manifest != nil {
			raw, present = ws.Manifest.Field(f.FieldPath)
		}

		if f.FieldValue == nil {
			if present {
				out = append(out, Violation{
					Workspace: ws,
					Kind:      ForbiddenField,
					Message:   fmt.Sprintf("%s must not define %s", ws.Ident, f.FieldPath),
				})
			}
			continue
		}

		var actual string
		if present {
			encoded, err := encodeJSON(raw)
			if err == nil {
				actual = encoded
			}
		}
		if !present || actual != *f.FieldValue {
			found := "missing"
			if present {
				found = actual
			}
			out = append(out, Violation{
				Workspace: ws,
				Kind:      MismatchedField,
				Message:   fmt.Sprintf("%s must set %s to %s (found %s)", ws.Ident, f.FieldPath, *f.FieldValue, found),
			})
		}
	}
	return out
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func describeRange(r *string) string {
	if r == nil {
		return "absent"
	}
	return *r
}
