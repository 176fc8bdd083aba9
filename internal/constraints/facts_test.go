package constraints

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"constraintkit/internal/project"
)

func TestEscape(t *testing.T) {
	if got := Escape(nil); got != "[]" {
		t.Errorf("Escape(nil) = %s, want []", got)
	}
	for _, s := range []string{"", "lodash", "^1.0.0 || ^2.0.0", "@scope/pkg"} {
		got := Escape(&s)
		if got != "'"+s+"'" {
			t.Errorf("Escape(%q) = %s", s, got)
		}
	}
	tricky := "it's\n"
	if got := Escape(&tricky); got != `'it\'s\n'` {
		t.Errorf("Escape(%q) = %s", tricky, got)
	}
}

func TestBuildFactBaseGolden(t *testing.T) {
	out := BuildFactBase(fixtureProject(t))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "factbase", []byte(out))
}

func TestBuildFactBaseEmptyProject(t *testing.T) {
	for name, p := range map[string]*project.Project{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			out := BuildFactBase(p)
			if strings.Contains(out, "workspace(") && !strings.Contains(out, "Decl workspace(") {
				t.Errorf("unexpected workspace fact:\n%s", out)
			}
			for _, decl := range []string{
				"Decl workspace(WorkspaceCwd).",
				"Decl workspace_ident(WorkspaceCwd, WorkspaceIdent).",
				"Decl workspace_version(WorkspaceCwd, WorkspaceVersion).",
				"Decl workspace_has_dependency(WorkspaceCwd, DependencyIdent, DependencyRange, DependencyType).",
			} {
				if !strings.Contains(out, decl) {
					t.Errorf("missing fallback %q", decl)
				}
			}
			if strings.Count(out, "dependency_type(") != 3 {
				t.Errorf("expected three dependency_type facts:\n%s", out)
			}
		})
	}
}

func TestBuildFactBaseIsFresh(t *testing.T) {
	p := fixtureProject(t)
	first := BuildFactBase(p)

	v := "2.0.0"
	p.Workspace("packages/b").Version = &v
	second := BuildFactBase(p)

	if first == second {
		t.Fatal("fact base should reflect the current project state")
	}
	if !strings.Contains(second, "workspace_version('packages/b', '2.0.0').") {
		t.Errorf("updated version missing:\n%s", second)
	}
}

func TestBuildFactBaseEscapesValues(t *testing.T) {
	p := newProject(t, [2]string{".", `{"name": "root", "version": "1.0.0-it's"}`})
	out := BuildFactBase(p)
	if !strings.Contains(out, `workspace_version('.', '1.0.0-it\'s').`) {
		t.Errorf("version not escaped:\n%s", out)
	}
}
