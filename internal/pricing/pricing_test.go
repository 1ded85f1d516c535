package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/printwarden/printwarden/internal/budget"
)

type stubStore struct {
	doc budget.Document
	err error
}

func (s *stubStore) Get(ctx context.Context, path string) (budget.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}

func (s *stubStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return nil
}

func TestLoad_FromStore(t *testing.T) {
	store := &stubStore{doc: budget.Document{
		FieldBlackWhitePrice: 0.5,
		FieldColorPrice:      1.5,
	}}
	snap := Load(context.Background(), store, DefaultSnapshot(), nil)
	if snap.BlackWhitePerPage != 0.5 || snap.ColorPerPage != 1.5 {
		t.Errorf("Load() = %+v, want 0.5/1.5", snap)
	}
}

func TestLoad_StoreFailureFallsBack(t *testing.T) {
	store := &stubStore{err: errors.New("network down")}
	snap := Load(context.Background(), store, DefaultSnapshot(), nil)
	if snap != DefaultSnapshot() {
		t.Errorf("Load() = %+v, want defaults", snap)
	}
}

func TestLoad_PartialDocument(t *testing.T) {
	store := &stubStore{doc: budget.Document{FieldBlackWhitePrice: 0.25}}
	snap := Load(context.Background(), store, DefaultSnapshot(), nil)
	if snap.BlackWhitePerPage != 0.25 {
		t.Errorf("BlackWhitePerPage = %v, want 0.25", snap.BlackWhitePerPage)
	}
	if snap.ColorPerPage != DefaultSnapshot().ColorPerPage {
		t.Errorf("ColorPerPage = %v, want default", snap.ColorPerPage)
	}
}

func TestLoad_NegativePriceRejected(t *testing.T) {
	store := &stubStore{doc: budget.Document{
		FieldBlackWhitePrice: -3.0,
		FieldColorPrice:      1.0,
	}}
	snap := Load(context.Background(), store, DefaultSnapshot(), nil)
	if snap.BlackWhitePerPage != DefaultSnapshot().BlackWhitePerPage {
		t.Errorf("negative price accepted: %v", snap.BlackWhitePerPage)
	}
	if snap.ColorPerPage != 1.0 {
		t.Errorf("ColorPerPage = %v, want 1.0", snap.ColorPerPage)
	}
}

func TestJobCost(t *testing.T) {
	snap := Snapshot{BlackWhitePerPage: 1.0, ColorPerPage: 2.5}

	tests := []struct {
		name  string
		pages int
		color bool
		want  float64
	}{
		{"five bw pages", 5, false, 5.0},
		{"zero pages charged as one", 0, false, 1.0},
		{"negative pages charged as one", -2, false, 1.0},
		{"color pricing", 4, true, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snap.JobCost(tt.pages, tt.color); got != tt.want {
				t.Errorf("JobCost(%d, %v) = %v, want %v", tt.pages, tt.color, got, tt.want)
			}
		})
	}
}
