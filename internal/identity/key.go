// Package identity assigns persistent entity ids. An entity is identified by
// its structural key: the id of its enclosing entity, its kind and its name.
// Keys are resolved through a table loaded from the history database, so an
// entity that reappears after a deletion gets its old id back.
package identity

import (
	"fmt"

	"semhist/internal/model"
)

// Key is the structural identity of an entity. File entities have Parent 0
// and their repo-relative path as Name.
type Key struct {
	Parent int64
	Kind   model.Kind
	Name   string
}

// FileKey returns the key of the file entity for path.
func FileKey(path string) Key {
	return Key{Kind: model.KindFile, Name: path}
}

// KeyOf returns the key of a stored entity.
func KeyOf(e model.Entity) Key {
	return Key{Parent: e.ParentID, Kind: e.Kind, Name: e.Name}
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s:%s", k.Parent, k.Kind, k.Name)
}

// ValidationError represents an entity record that breaks the parent rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks that file entities have no parent and all other entities
// have one.
func Validate(e model.Entity) error {
	if e.Name == "" {
		return &ValidationError{Field: "Name", Message: "name cannot be empty"}
	}
	if e.Kind == "" {
		return &ValidationError{Field: "Kind", Message: "kind cannot be empty"}
	}
	if e.Kind == model.KindFile && e.ParentID != 0 {
		return &ValidationError{Field: "ParentID", Message: "file entity cannot have a parent"}
	}
	if e.Kind != model.KindFile && e.ParentID == 0 {
		return &ValidationError{Field: "ParentID", Message: fmt.Sprintf("%s entity %q needs a parent", e.Kind, e.Name)}
	}
	return nil
}
