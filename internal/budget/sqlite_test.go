package budget

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "users/nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on missing path = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_UpdateThenGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, "users/u1", map[string]any{
		"remainingPrints": 12.5,
		"name":            "alice",
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	doc, err := s.Get(ctx, "users/u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if v, ok := doc.Float("remainingPrints"); !ok || v != 12.5 {
		t.Errorf("remainingPrints = %v (ok=%v), want 12.5", v, ok)
	}
	if name, ok := doc.String("name"); !ok || name != "alice" {
		t.Errorf("name = %q (ok=%v), want alice", name, ok)
	}

	// Merge semantics: a second update must not clobber unrelated fields.
	if err := s.Update(ctx, "users/u1", map[string]any{"remainingPrints": 7.5}); err != nil {
		t.Fatalf("second Update() error: %v", err)
	}
	doc, err = s.Get(ctx, "users/u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if v, _ := doc.Float("remainingPrints"); v != 7.5 {
		t.Errorf("remainingPrints after merge = %v, want 7.5", v)
	}
	if name, ok := doc.String("name"); !ok || name != "alice" {
		t.Errorf("name lost by merge: %q (ok=%v)", name, ok)
	}
}

func TestSQLiteStore_UpdateFieldIf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Update(ctx, "users/u1", map[string]any{"remainingPrints": 10.0}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	// Matching expectation succeeds.
	if err := s.UpdateFieldIf(ctx, "users/u1", "remainingPrints", 10.0, 5.0); err != nil {
		t.Fatalf("UpdateFieldIf() error: %v", err)
	}
	doc, _ := s.Get(ctx, "users/u1")
	if v, _ := doc.Float("remainingPrints"); v != 5.0 {
		t.Errorf("remainingPrints = %v, want 5.0", v)
	}

	// Stale expectation conflicts and leaves the value untouched.
	err := s.UpdateFieldIf(ctx, "users/u1", "remainingPrints", 10.0, 0.0)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("UpdateFieldIf() with stale expect = %v, want ErrConflict", err)
	}
	doc, _ = s.Get(ctx, "users/u1")
	if v, _ := doc.Float("remainingPrints"); v != 5.0 {
		t.Errorf("remainingPrints after conflict = %v, want unchanged 5.0", v)
	}

	// Missing field conflicts rather than creating it.
	err = s.UpdateFieldIf(ctx, "users/u2", "remainingPrints", 0.0, 3.0)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("UpdateFieldIf() on missing field = %v, want ErrConflict", err)
	}
}
