package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Dependency is one entry of a manifest dependency list.
type Dependency struct {
	Ident Ident
	Range string
}

// Manifest is a parsed package.json.
type Manifest struct {
	Name    *Ident
	Version *string

	// Dependencies holds each list sorted by identifier.
	Dependencies map[DependencyType][]Dependency

	// Workspaces holds the glob patterns of a root manifest.
	Workspaces []string

	// Raw is the decoded document; numbers are json.Number.
	Raw map[string]any
}

// ParseManifest decodes package.json content.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if raw == nil {
		raw = make(map[string]any)
	}

	m := &Manifest{
		Raw:          raw,
		Dependencies: make(map[DependencyType][]Dependency, len(DependencyTypes)),
	}

	if name, ok := raw["name"].(string); ok && name != "" {
		ident, err := ParseIdent(name)
		if err != nil {
			return nil, err
		}
		m.Name = &ident
	}
	if version, ok := raw["version"].(string); ok {
		m.Version = &version
	}

	for _, depType := range DependencyTypes {
		entries, ok := raw[string(depType)].(map[string]any)
		if !ok {
			continue
		}
		deps := make([]Dependency, 0, len(entries))
		for name, value := range entries {
			ident, err := ParseIdent(name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", depType, err)
			}
			rng, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%s: range of %s is not a string", depType, name)
			}
			deps = append(deps, Dependency{Ident: ident, Range: rng})
		}
		sort.Slice(deps, func(i, j int) bool {
			return deps[i].Ident.String() < deps[j].Ident.String()
		})
		m.Dependencies[depType] = deps
	}

	switch ws := raw["workspaces"].(type) {
	case []any:
		m.Workspaces = stringList(ws)
	case map[string]any:
		if packages, ok := ws["packages"].([]any); ok {
			m.Workspaces = stringList(packages)
		}
	}

	return m, nil
}

func stringList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Range returns the range declared for ident in the given list.
func (m *Manifest) Range(depType DependencyType, ident Ident) (string, bool) {
	for _, dep := range m.Dependencies[depType] {
		if dep.Ident == ident {
			return dep.Range, true
		}
	}
	return "", false
}

// Field looks up a dotted path such as "scripts.build" or "files.0".
// Array elements are addressed by decimal index.
func (m *Manifest) Field(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = m.Raw
	for _, segment := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Fields returns the top-level field names in sorted order.
func (m *Manifest) Fields() []string {
	names := make([]string, 0, len(m.Raw))
	for name := range m.Raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
