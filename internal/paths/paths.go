// Package paths validates property paths against declared field shapes and
// expands them into index path variants.
package paths

import (
	"fmt"
	"strings"
)

// Kind describes the declared shape of a field.
type Kind int

const (
	// Scalar is a single string/number/bool leaf.
	Scalar Kind = iota

	// ScalarArray is an array of scalar leaves.
	ScalarArray

	// Object is a nested object with sub-properties.
	Object

	// ObjectArray is an array of nested objects.
	ObjectArray
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case ScalarArray:
		return "scalar-array"
	case Object:
		return "object"
	case ObjectArray:
		return "object-array"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Wildcard segments recognized at the tail of a path.
const (
	segExact = "?"  // exact-value leaf
	segAll   = "*"  // recursive object wildcard
	segArray = "[]" // array element
)

// Normalize splits a property path into segments. Both "/a/b" and "a.b"
// spellings are accepted; empty segments are rejected.
func Normalize(path string) ([]string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, fmt.Errorf("paths: empty path")
	}
	p = strings.TrimPrefix(p, "/")
	p = strings.ReplaceAll(p, ".", "/")
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("paths: empty segment in %q", path)
		}
	}
	return segs, nil
}

// First returns the declared field name a path addresses (its first segment).
func First(path string) (string, error) {
	segs, err := Normalize(path)
	if err != nil {
		return "", err
	}
	if isWildcard(segs[0]) {
		return "", fmt.Errorf("paths: %q does not start with a field name", path)
	}
	return segs[0], nil
}

func isWildcard(seg string) bool {
	return seg == segExact || seg == segAll || seg == segArray
}

// Validate checks that path addresses a declared field and that any
// wildcard segments are consistent with that field's kind.
func Validate(path string, fields map[string]Kind) error {
	segs, err := Normalize(path)
	if err != nil {
		return err
	}
	name := segs[0]
	if isWildcard(name) {
		return fmt.Errorf("paths: %q does not start with a field name", path)
	}
	kind, ok := fields[name]
	if !ok {
		return fmt.Errorf("paths: %q addresses undeclared field %q", path, name)
	}
	return validateTail(path, segs[1:], kind)
}

func validateTail(path string, tail []string, kind Kind) error {
	switch kind {
	case Scalar:
		// Only an exact-value marker may follow a scalar leaf.
		if len(tail) == 0 {
			return nil
		}
		if len(tail) == 1 && tail[0] == segExact {
			return nil
		}
		return fmt.Errorf("paths: %q descends into scalar field", path)

	case ScalarArray:
		// name, name/?, name/[], name/[]/?
		rest := tail
		if len(rest) > 0 && rest[0] == segArray {
			rest = rest[1:]
		}
		if len(rest) == 0 || (len(rest) == 1 && rest[0] == segExact) {
			return nil
		}
		return fmt.Errorf("paths: %q descends into scalar-array field", path)

	case Object, ObjectArray:
		rest := tail
		if kind == ObjectArray && len(rest) > 0 && rest[0] == segArray {
			rest = rest[1:]
		}
		// Sub-property names are not declared, so any named descent is
		// allowed; wildcards must be terminal.
		for i, s := range rest {
			if s == segArray {
				return fmt.Errorf("paths: %q uses [] below an object field", path)
			}
			if isWildcard(s) && i != len(rest)-1 {
				return fmt.Errorf("paths: %q has a non-terminal wildcard", path)
			}
		}
		return nil
	}
	return fmt.Errorf("paths: %q has unknown field kind", path)
}

// Expand validates path and returns the index path variants it emits.
// Scalar leaves emit an exact-value path, scalar arrays emit array and
// exact-value variants, objects emit wildcard and exact-value variants.
func Expand(path string, fields map[string]Kind) ([]string, error) {
	if err := Validate(path, fields); err != nil {
		return nil, err
	}
	segs, _ := Normalize(path)

	// Strip any explicit wildcard tail; the variants reintroduce it.
	base := segs
	for len(base) > 0 && isWildcard(base[len(base)-1]) {
		base = base[:len(base)-1]
	}
	prefix := "/" + strings.Join(base, "/")

	kind := fields[base[0]]
	if len(base) > 1 {
		// A named sub-property of an object field is an undeclared leaf;
		// index it as a scalar.
		kind = Scalar
	}

	switch kind {
	case Scalar:
		return []string{prefix + "/?"}, nil
	case ScalarArray:
		return []string{prefix + "/[]/?", prefix + "/?"}, nil
	case Object:
		return []string{prefix + "/*", prefix + "/?"}, nil
	case ObjectArray:
		return []string{prefix + "/[]/*", prefix + "/*"}, nil
	}
	return nil, fmt.Errorf("paths: %q has unknown field kind", path)
}

// Lookup walks a document along path and returns the addressed value.
// Wildcard segments are not resolvable and report absence.
func Lookup(doc map[string]any, path string) (any, bool) {
	segs, err := Normalize(path)
	if err != nil {
		return nil, false
	}
	var cur any = doc
	for _, s := range segs {
		if isWildcard(s) {
			return nil, false
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[s]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
