package project

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constraintkit/internal/logging"
)

func TestParseIdent(t *testing.T) {
	tests := []struct {
		in      string
		want    Ident
		wantErr bool
	}{
		{in: "lodash", want: Ident{Name: "lodash"}},
		{in: "@babel/core", want: Ident{Scope: "babel", Name: "core"}},
		{in: "", wantErr: true},
		{in: "@babel", wantErr: true},
		{in: "@/core", wantErr: true},
		{in: "a/b", wantErr: true},
		{in: "@a/b/c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIdent(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseIdent(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIdent(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseIdent(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestParseDependencyType(t *testing.T) {
	for _, dt := range DependencyTypes {
		got, err := ParseDependencyType(string(dt))
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}
	_, err := ParseDependencyType("optionalDependencies")
	assert.Error(t, err)
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"name": "@acme/app",
		"version": "1.2.3",
		"private": true,
		"dependencies": {"zod": "^3.0.0", "@acme/lib": "workspace:^"},
		"devDependencies": {"typescript": "5.4.0"},
		"workspaces": {"packages": ["packages/*"]},
		"engines": {"node": ">=18"},
		"files": ["dist", "README.md"],
		"retries": 3
	}`))
	require.NoError(t, err)

	require.NotNil(t, m.Name)
	assert.Equal(t, "@acme/app", m.Name.String())
	require.NotNil(t, m.Version)
	assert.Equal(t, "1.2.3", *m.Version)
	assert.Equal(t, []string{"packages/*"}, m.Workspaces)

	want := []Dependency{
		{Ident: Ident{Scope: "acme", Name: "lib"}, Range: "workspace:^"},
		{Ident: Ident{Name: "zod"}, Range: "^3.0.0"},
	}
	if diff := cmp.Diff(want, m.Dependencies[Dependencies]); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, m.Dependencies[PeerDependencies])

	rng, ok := m.Range(DevDependencies, Ident{Name: "typescript"})
	assert.True(t, ok)
	assert.Equal(t, "5.4.0", rng)
	_, ok = m.Range(Dependencies, Ident{Name: "typescript"})
	assert.False(t, ok)

	v, ok := m.Field("engines.node")
	assert.True(t, ok)
	assert.Equal(t, ">=18", v)
	v, ok = m.Field("files.1")
	assert.True(t, ok)
	assert.Equal(t, "README.md", v)
	v, ok = m.Field("retries")
	assert.True(t, ok)
	assert.Equal(t, json.Number("3"), v)
	_, ok = m.Field("files.9")
	assert.False(t, ok)
	_, ok = m.Field("engines.node.major")
	assert.False(t, ok)

	assert.Equal(t, []string{"dependencies", "devDependencies", "engines", "files", "name", "private", "retries", "version", "workspaces"}, m.Fields())
}

func TestParseManifestErrors(t *testing.T) {
	tests := map[string]string{
		"not json":      `{`,
		"bad name":      `{"name": "a/b"}`,
		"bad dep ident": `{"dependencies": {"@x": "1"}}`,
		"range type":    `{"dependencies": {"x": 1}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(content))
			assert.Error(t, err)
		})
	}
}

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(content), 0644))
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"private": true, "workspaces": ["packages/*", "tools/**", "!packages/legacy"]}`)
	writeManifest(t, filepath.Join(root, "packages", "b"), `{"name": "b", "version": "2.0.0"}`)
	writeManifest(t, filepath.Join(root, "packages", "a"), `{"name": "@acme/a"}`)
	writeManifest(t, filepath.Join(root, "packages", "legacy"), `{"name": "legacy"}`)
	writeManifest(t, filepath.Join(root, "tools", "deep", "gen"), `{"name": "gen"}`)
	writeManifest(t, filepath.Join(root, "tools", "node_modules", "dep"), `{"name": "dep"}`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packages", "empty"), 0755))

	p, err := Load(root)
	require.NoError(t, err)

	var cwds, idents []string
	for _, ws := range p.Workspaces {
		cwds = append(cwds, ws.Cwd)
		idents = append(idents, ws.Ident.String())
	}
	assert.Equal(t, []string{".", "packages/a", "packages/b", "tools/deep/gen"}, cwds)
	assert.Equal(t, []string{"root-workspace-0b6124", "@acme/a", "b", "gen"}, idents)

	b := p.Workspace("packages/b")
	require.NotNil(t, b)
	require.NotNil(t, b.Version)
	assert.Equal(t, "2.0.0", *b.Version)
	assert.Nil(t, p.Workspace("packages/a").Version)
	assert.Equal(t, p.Workspace("packages/a"), p.WorkspaceByIdent(Ident{Scope: "acme", Name: "a"}))
	assert.Nil(t, p.Workspace("packages/legacy"))
}

func TestLoadWarnsOnDirectoryWithoutManifest(t *testing.T) {
	logDir := t.TempDir()
	require.NoError(t, logging.Configure(logDir, true, "warn", nil, false))
	t.Cleanup(func() {
		logging.CloseAll()
		_ = logging.Configure(logDir, false, "", nil, false)
	})

	root := t.TempDir()
	writeManifest(t, root, `{"name": "root", "workspaces": ["packages/*"]}`)
	writeManifest(t, filepath.Join(root, "packages", "a"), `{"name": "a"}`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packages", "scratch"), 0755))

	p, err := Load(root)
	require.NoError(t, err)
	require.Len(t, p.Workspaces, 2)
	logging.CloseAll()

	entries, err := os.ReadDir(filepath.Join(logDir, ".constraints", "logs"))
	require.NoError(t, err)
	var projectLog string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_project.log") {
			data, err := os.ReadFile(filepath.Join(logDir, ".constraints", "logs", e.Name()))
			require.NoError(t, err)
			projectLog = string(data)
		}
	}
	assert.Contains(t, projectLog, "matched packages/scratch, which has no package.json")
	assert.NotContains(t, projectLog, "packages/a")
}

func TestLoadWithoutManifest(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.True(t, errors.Is(err, ErrNoManifest))
}

func TestLoadUnnamedWorkspace(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name": "root", "workspaces": ["pkgs/*"]}`)
	writeManifest(t, filepath.Join(root, "pkgs", "nameless"), `{}`)

	p, err := Load(root)
	require.NoError(t, err)
	require.Len(t, p.Workspaces, 2)
	assert.Equal(t, "root", p.Workspaces[0].Ident.String())
	assert.Equal(t, "nameless", p.Workspaces[1].Ident.String())
}
