// Package scopegraph holds the pure rules of the scope inheritance graph.
//
// Nothing in this package touches storage. Callers supply parent lookups
// as a ParentsFunc, which lets the same walk run against committed rows or
// against a proposed edge set that has not been written yet.
package scopegraph

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultScope is the protected root scope every namespace owns.
	DefaultScope = "default"

	// GlobalNamespace is seeded at bootstrap and cannot be renamed or deleted.
	GlobalNamespace = "global"
)

// ErrMalformed is returned for identifiers that fail structural validation.
var ErrMalformed = errors.New("malformed identifier")

// namePattern applies to both namespace and scope names.
var namePattern = regexp.MustCompile(`^[a-z0-9-]{2,64}$`)

// Ref is a canonical "namespace:scope" address.
type Ref struct {
	Namespace string
	Scope     string
}

// String returns the canonical form.
func (r Ref) String() string {
	return r.Namespace + ":" + r.Scope
}

// IsDefault reports whether r names a namespace's default scope.
func (r Ref) IsDefault() bool {
	return r.Scope == DefaultScope
}

// DefaultOf returns the default scope of r's namespace.
func (r Ref) DefaultOf() Ref {
	return Ref{Namespace: r.Namespace, Scope: DefaultScope}
}

// ValidateName checks a namespace or scope name: 2-64 characters of
// lowercase letters, digits and hyphens.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be 2-64 characters of lowercase letters, digits and hyphens", ErrMalformed, name)
	}
	return nil
}

// ParseRef parses "namespace:scope". A missing colon, an empty part or an
// extra colon is rejected.
func ParseRef(s string) (Ref, error) {
	ns, scope, ok := strings.Cut(s, ":")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q is not in namespace:scope form", ErrMalformed, s)
	}
	if strings.Contains(scope, ":") {
		return Ref{}, fmt.Errorf("%w: %q has more than one colon", ErrMalformed, s)
	}
	if ns == "" || scope == "" {
		return Ref{}, fmt.Errorf("%w: %q has an empty part", ErrMalformed, s)
	}
	if err := ValidateName(ns); err != nil {
		return Ref{}, err
	}
	if err := ValidateName(scope); err != nil {
		return Ref{}, err
	}
	return Ref{Namespace: ns, Scope: scope}, nil
}

// ParseRefs parses every element and fails on the first malformed one.
func ParseRefs(ss []string) ([]Ref, error) {
	refs := make([]Ref, 0, len(ss))
	for _, s := range ss {
		r, err := ParseRef(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, nil
}

// EnsureDefaultParent returns parents with child's namespace default scope
// appended when it is missing. Duplicates are dropped and the input order is
// otherwise kept. A default scope is never made its own parent.
func EnsureDefaultParent(child Ref, parents []Ref) []Ref {
	seen := make(map[Ref]bool, len(parents)+1)
	out := make([]Ref, 0, len(parents)+1)
	for _, p := range parents {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if child.IsDefault() {
		return out
	}
	if def := child.DefaultOf(); !seen[def] {
		out = append(out, def)
	}
	return out
}
