package kv

import (
	"fmt"
	"strings"
)

// Segment is a single path component of a scope or a key name. Segments
// must be non-empty and must not contain the '/' separator.
type Segment string

// ParseSegment validates s as a Segment.
func ParseSegment(s string) (Segment, error) {
	if s == "" {
		return "", fmt.Errorf("%w: segment must not be empty", ErrOther)
	}
	if strings.Contains(s, "/") {
		return "", fmt.Errorf("%w: segment %q must not contain '/'", ErrOther, s)
	}
	return Segment(s), nil
}

// MustSegment is ParseSegment, panicking on error. Intended for constants
// and tests, not for untrusted input.
func MustSegment(s string) Segment {
	seg, err := ParseSegment(s)
	if err != nil {
		panic(err)
	}
	return seg
}

// Scope is an ordered list of path segments. The empty scope is the
// "global" scope. Two scopes are equal iff their segment sequences are
// equal; "a" and "a/archived" are disjoint scopes.
type Scope []Segment

// NewScope builds a Scope from plain strings, validating each segment.
func NewScope(parts ...string) (Scope, error) {
	scope := make(Scope, 0, len(parts))
	for _, p := range parts {
		seg, err := ParseSegment(p)
		if err != nil {
			return nil, err
		}
		scope = append(scope, seg)
	}
	return scope, nil
}

// MustScope is NewScope, panicking on error.
func MustScope(parts ...string) Scope {
	scope, err := NewScope(parts...)
	if err != nil {
		panic(err)
	}
	return scope
}

// HandleScope is the conventional scope for an aggregate identified by
// handle: a single-segment scope equal to the handle itself.
func HandleScope(handle string) Scope {
	return Scope{Segment(handle)}
}

// Sub returns a child scope with name appended, e.g. the "archived",
// "corrupt" and "surplus" quarantine sub-scopes used by archival.
func (s Scope) Sub(name string) Scope {
	sub := make(Scope, len(s)+1)
	copy(sub, s)
	sub[len(s)] = Segment(name)
	return sub
}

// String renders the scope in its lexical form: "seg1/seg2".
func (s Scope) String() string {
	parts := make([]string, len(s))
	for i, seg := range s {
		parts[i] = string(seg)
	}
	return strings.Join(parts, "/")
}

// Equal reports whether two scopes have identical segments.
func (s Scope) Equal(other Scope) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Key identifies a single value in the store: a scope plus a name.
// Lexical form: "seg1/seg2/.../name".
type Key struct {
	Scope Scope
	Name  Segment
}

// NewKey builds a Key in the global scope.
func NewKey(name string) (Key, error) {
	seg, err := ParseSegment(name)
	if err != nil {
		return Key{}, err
	}
	return Key{Name: seg}, nil
}

// NewScopedKey builds a Key within scope.
func NewScopedKey(scope Scope, name string) (Key, error) {
	seg, err := ParseSegment(name)
	if err != nil {
		return Key{}, err
	}
	return Key{Scope: scope, Name: seg}, nil
}

// String renders the key in its lexical form.
func (k Key) String() string {
	if len(k.Scope) == 0 {
		return string(k.Name)
	}
	return k.Scope.String() + "/" + string(k.Name)
}

// WithScope returns a copy of k transplanted into a new scope, keeping
// the same name. Used by the archival operations to move a key into a
// quarantine sub-scope of its current scope.
func (k Key) WithScope(scope Scope) Key {
	return Key{Scope: scope, Name: k.Name}
}

// Archival sub-scope names. These are the only destructive
// operations the event store performs: they relocate a key rather
// than deleting it outright.
const (
	SubScopeArchived = "archived"
	SubScopeCorrupt  = "corrupt"
	SubScopeSurplus  = "surplus"
)
