package constraints

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constraintkit/internal/project"
)

func kinds(vs []Violation) []ViolationKind {
	out := make([]ViolationKind, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Kind)
	}
	return out
}

func TestCheckProcessedPolicy(t *testing.T) {
	e := NewEngineWithRules(fixtureProject(t), nil, policyRules)
	result, err := e.Process(context.Background())
	require.NoError(t, err)

	violations := Check(result)
	assert.Equal(t, []ViolationKind{MismatchedRange, MismatchedField, MismatchedField}, kinds(violations))
	assert.Equal(t, "@acme/b must depend on lodash@^4.17.21 in dependencies (found ^4.0.0)", violations[0].Message)
	assert.Equal(t, `@acme/b must set license to "MIT" (found missing)`, violations[1].Message)
	assert.Equal(t, `monorepo must set license to "MIT" (found missing)`, violations[2].Message)
}

func TestCheckDependencies(t *testing.T) {
	p := fixtureProject(t)
	a := p.Workspace("packages/a")
	b := p.Workspace("packages/b")
	lodash := project.Ident{Name: "lodash"}
	react := project.Ident{Name: "react"}
	left := project.Ident{Name: "left-pad"}

	violations := Check(&Result{EnforcedDependencies: []EnforcedDependency{
		{Workspace: a, DependencyIdent: lodash, DependencyRange: strPtr("^4.17.21"), DependencyType: project.Dependencies},
		{Workspace: a, DependencyIdent: left, DependencyRange: strPtr("1.0.0"), DependencyType: project.Dependencies},
		{Workspace: a, DependencyIdent: react, DependencyRange: nil, DependencyType: project.PeerDependencies},
		{Workspace: b, DependencyIdent: react, DependencyRange: nil, DependencyType: project.PeerDependencies},
		{Workspace: b, DependencyIdent: lodash, DependencyRange: strPtr("^4.0.0"), DependencyType: project.Dependencies},
		{Workspace: b, DependencyIdent: lodash, DependencyRange: strPtr("^4.1.0"), DependencyType: project.Dependencies},
	}})

	assert.Equal(t, []ViolationKind{MissingDependency, ForbiddenDependency, ConflictingRequirement}, kinds(violations))
	assert.Equal(t, "@acme/a must list left-pad@1.0.0 in dependencies", violations[0].Message)
	assert.Equal(t, "@acme/a must not list react in peerDependencies", violations[1].Message)
	assert.Equal(t, "@acme/b: conflicting requirements for lodash in dependencies: ^4.0.0 vs ^4.1.0", violations[2].Message)
	assert.Same(t, b, violations[2].Workspace)
}

func TestCheckFields(t *testing.T) {
	p := fixtureProject(t)
	a := p.Workspace("packages/a")
	b := p.Workspace("packages/b")

	violations := Check(&Result{EnforcedFields: []EnforcedField{
		{Workspace: a, FieldPath: "license", FieldValue: strPtr(`"MIT"`)},
		{Workspace: a, FieldPath: "license", FieldValue: strPtr(`"ISC"`)},
		{Workspace: b, FieldPath: "engines", FieldValue: strPtr(`{"node":">=18"}`)},
		{Workspace: b, FieldPath: "engines.node", FieldValue: nil},
		{Workspace: b, FieldPath: "private", FieldValue: nil},
	}})

	assert.Equal(t, []ViolationKind{MismatchedField, ForbiddenField}, kinds(violations))
	assert.Equal(t, `@acme/a must set license to "ISC" (found "MIT")`, violations[0].Message)
	assert.Equal(t, "@acme/b must not define engines.node", violations[1].Message)
}

func TestCheckEmptyResult(t *testing.T) {
	assert.Empty(t, Check(&Result{}))
}
