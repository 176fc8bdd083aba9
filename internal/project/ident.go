package project

import (
	"fmt"
	"strings"
)

// Ident identifies a package by optional scope and name.
type Ident struct {
	Scope string // without the leading '@'
	Name  string
}

// ParseIdent parses "name" or "@scope/name".
func ParseIdent(s string) (Ident, error) {
	if s == "" {
		return Ident{}, fmt.Errorf("empty package identifier")
	}
	if !strings.HasPrefix(s, "@") {
		if strings.Contains(s, "/") {
			return Ident{}, fmt.Errorf("invalid package identifier %q", s)
		}
		return Ident{Name: s}, nil
	}
	scope, name, ok := strings.Cut(s[1:], "/")
	if !ok || scope == "" || name == "" || strings.Contains(name, "/") {
		return Ident{}, fmt.Errorf("invalid scoped package identifier %q", s)
	}
	return Ident{Scope: scope, Name: name}, nil
}

// String renders the identifier as written in manifests.
func (i Ident) String() string {
	if i.Scope == "" {
		return i.Name
	}
	return "@" + i.Scope + "/" + i.Name
}

// DependencyType is one of the three dependency lists of a manifest.
type DependencyType string

const (
	Dependencies     DependencyType = "dependencies"
	DevDependencies  DependencyType = "devDependencies"
	PeerDependencies DependencyType = "peerDependencies"
)

// DependencyTypes lists every dependency type in canonical order.
var DependencyTypes = []DependencyType{Dependencies, DevDependencies, PeerDependencies}

// ParseDependencyType validates a dependency type tag.
func ParseDependencyType(s string) (DependencyType, error) {
	for _, t := range DependencyTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown dependency type %q", s)
}
