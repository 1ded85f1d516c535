// Package budget exposes the remote budget/pricing database as a
// path-addressed document store. The monitor only ever needs two verbs --
// read a document and merge fields into one -- so the interface stays that
// small. Stores that can do a conditional numeric write additionally
// implement ConditionalStore, which the monitor uses to close the
// concurrent-deduction race.
package budget

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a path has no document.
	ErrNotFound = errors.New("budget: document not found")

	// ErrConflict is returned by conditional updates when the stored value
	// no longer matches the expected value.
	ErrConflict = errors.New("budget: conditional update conflict")
)

// Document is a single path-addressed record. Values are whatever the
// backing store decoded (JSON numbers arrive as float64).
type Document map[string]any

// Float reads a numeric field. Returns false if the field is missing or not
// a number.
func (d Document) Float(field string) (float64, bool) {
	v, ok := d[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// String reads a string field. Returns false if missing or not a string.
func (d Document) String(field string) (string, bool) {
	v, ok := d[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Store is the minimal contract against the remote database. Get returns
// ErrNotFound for missing paths; Update merges the given fields into the
// document at path, creating it if absent.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Update(ctx context.Context, path string, fields map[string]any) error
}

// ConditionalStore extends Store with a compare-and-swap on a single numeric
// field. UpdateFieldIf writes value only if the stored field still equals
// expect, returning ErrConflict otherwise.
type ConditionalStore interface {
	Store
	UpdateFieldIf(ctx context.Context, path, field string, expect, value float64) error
}
