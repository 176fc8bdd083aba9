// Package project models a multi-package workspace tree: the root manifest,
// the workspaces its globs select, and their parsed manifests.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"constraintkit/internal/logging"
)

// ManifestName is the manifest file of every workspace.
const ManifestName = "package.json"

// anonymousRootName identifies a root workspace whose manifest has no name.
const anonymousRootName = "root-workspace-0b6124"

// ErrNoManifest is returned when the project root has no manifest.
var ErrNoManifest = errors.New("no " + ManifestName + " at project root")

// Workspace is one package of the project.
type Workspace struct {
	// Cwd is the slash-separated path relative to the project root; "." for the root.
	Cwd      string
	Ident    Ident
	Version  *string
	Manifest *Manifest
}

// Project is a read-only snapshot of the workspace tree.
type Project struct {
	// Cwd is the absolute project root.
	Cwd        string
	Workspaces []*Workspace
}

// Workspace returns the workspace at cwd, or nil.
func (p *Project) Workspace(cwd string) *Workspace {
	for _, ws := range p.Workspaces {
		if ws.Cwd == cwd {
			return ws
		}
	}
	return nil
}

// WorkspaceByIdent returns the workspace named ident, or nil.
func (p *Project) WorkspaceByIdent(ident Ident) *Workspace {
	for _, ws := range p.Workspaces {
		if ws.Ident == ident {
			return ws
		}
	}
	return nil
}

// NewWorkspace builds a workspace from a parsed manifest.
func NewWorkspace(cwd string, m *Manifest) *Workspace {
	ws := &Workspace{Cwd: cwd, Manifest: m, Version: m.Version}
	switch {
	case m.Name != nil:
		ws.Ident = *m.Name
	case cwd == ".":
		ws.Ident = Ident{Name: anonymousRootName}
	default:
		ws.Ident = Ident{Name: path.Base(cwd)}
	}
	return ws
}

// Load reads the root manifest under root and every workspace matched by its
// workspaces globs. The root workspace comes first, the rest sorted by path.
func Load(root string) (*Project, error) {
	timer := logging.StartTimer(logging.CategoryProject, "load project")
	defer timer.Stop()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	rootManifest, err := readManifest(filepath.Join(abs, ManifestName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, abs)
		}
		return nil, err
	}

	p := &Project{Cwd: abs, Workspaces: []*Workspace{NewWorkspace(".", rootManifest)}}

	cwds, err := expandWorkspaces(os.DirFS(abs), rootManifest.Workspaces)
	if err != nil {
		return nil, err
	}
	for _, cwd := range cwds {
		m, err := readManifest(filepath.Join(abs, filepath.FromSlash(cwd), ManifestName))
		if err != nil {
			return nil, fmt.Errorf("workspace %s: %w", cwd, err)
		}
		p.Workspaces = append(p.Workspaces, NewWorkspace(cwd, m))
	}

	logging.Project("loaded %d workspaces from %s", len(p.Workspaces), abs)
	return p, nil
}

func readManifest(file string) (*Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return m, nil
}

// expandWorkspaces resolves glob patterns to the sorted set of directories
// holding a manifest. Patterns starting with '!' exclude matches.
func expandWorkspaces(fsys fs.FS, patterns []string) ([]string, error) {
	selected := make(map[string]bool)
	var excludes []string

	for _, pattern := range patterns {
		if len(pattern) > 0 && pattern[0] == '!' {
			excludes = append(excludes, path.Clean(pattern[1:]))
			continue
		}
		clean := path.Clean(pattern)
		matches, err := doublestar.Glob(fsys, clean)
		if err != nil {
			return nil, fmt.Errorf("invalid workspace pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if match == "." || isInNodeModules(match) {
				continue
			}
			info, err := fs.Stat(fsys, path.Join(match, ManifestName))
			if err != nil || info.IsDir() {
				if dir, serr := fs.Stat(fsys, match); serr == nil && dir.IsDir() && !strings.Contains(clean, "**") {
					logging.ProjectWarn("pattern %q matched %s, which has no %s", pattern, match, ManifestName)
				}
				continue
			}
			selected[match] = true
		}
	}

	cwds := make([]string, 0, len(selected))
	for cwd := range selected {
		excluded := false
		for _, ex := range excludes {
			if ok, _ := doublestar.Match(ex, cwd); ok {
				excluded = true
				break
			}
		}
		if excluded {
			logging.ProjectDebug("workspace %s excluded", cwd)
			continue
		}
		cwds = append(cwds, cwd)
	}
	sort.Strings(cwds)
	return cwds, nil
}

func isInNodeModules(p string) bool {
	for dir := p; dir != "." && dir != "/"; dir = path.Dir(dir) {
		if path.Base(dir) == "node_modules" {
			return true
		}
	}
	return false
}
