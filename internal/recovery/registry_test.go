package recovery

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/printwarden/printwarden/internal/spooler"
)

// fakeAdapter records printer-level resume calls; other methods are unused
// by this package.
type fakeAdapter struct {
	resumed   []string
	failOn    map[string]error
	panicOn   string
	spoolJobs map[string][]spooler.Job
}

func (f *fakeAdapter) ListPrinters(ctx context.Context) []string { return nil }
func (f *fakeAdapter) ListJobs(ctx context.Context, printer string) []spooler.Job {
	return f.spoolJobs[printer]
}
func (f *fakeAdapter) PauseJob(ctx context.Context, printer string, jobID int) error  { return nil }
func (f *fakeAdapter) ResumeJob(ctx context.Context, printer string, jobID int) error { return nil }
func (f *fakeAdapter) CancelJob(ctx context.Context, printer string, jobID int) error { return nil }
func (f *fakeAdapter) PausePrinter(ctx context.Context, printer string) error         { return nil }
func (f *fakeAdapter) ResumePrinter(ctx context.Context, printer string) error {
	if printer == f.panicOn {
		panic("spooler handle corrupted")
	}
	if err := f.failOn[printer]; err != nil {
		return err
	}
	f.resumed = append(f.resumed, printer)
	return nil
}

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteJournal() error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestResumeAll_ResumesEveryPrinter(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.MarkPaused("P1")
	r.MarkPaused("P2")

	f := &fakeAdapter{}
	r.ResumeAll(context.Background(), f)

	sort.Strings(f.resumed)
	if len(f.resumed) != 2 || f.resumed[0] != "P1" || f.resumed[1] != "P2" {
		t.Errorf("resumed = %v, want [P1 P2]", f.resumed)
	}
	if len(r.Snapshot()) != 0 {
		t.Errorf("Snapshot() after ResumeAll = %v, want empty", r.Snapshot())
	}
}

func TestResumeAll_FailureDoesNotSkipOthers(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.MarkPaused("P1")
	r.MarkPaused("P2")

	f := &fakeAdapter{failOn: map[string]error{"P1": errors.New("handle busy")}}
	r.ResumeAll(context.Background(), f)

	if len(f.resumed) != 1 || f.resumed[0] != "P2" {
		t.Errorf("resumed = %v, want [P2]", f.resumed)
	}
}

func TestResumeAll_PanicDoesNotSkipOthers(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.MarkPaused("P1")
	r.MarkPaused("P2")

	f := &fakeAdapter{panicOn: "P1"}
	r.ResumeAll(context.Background(), f)

	if len(f.resumed) != 1 || f.resumed[0] != "P2" {
		t.Errorf("resumed = %v, want [P2] despite panic on P1", f.resumed)
	}
}

func TestResumeAll_Idempotent(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.MarkPaused("P1")

	f := &fakeAdapter{}
	r.ResumeAll(context.Background(), f)
	r.ResumeAll(context.Background(), f)

	if len(f.resumed) != 1 {
		t.Errorf("second ResumeAll issued %d extra resumes, want 0", len(f.resumed)-1)
	}
}

func TestJournal_SurvivesRegistryLifetime(t *testing.T) {
	j := newTestJournal(t)

	r := NewRegistry(j, nil)
	r.MarkPaused("P1")
	r.MarkPaused("P2")
	r.MarkResumed("P2")

	left, err := j.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(left) != 1 || left[0] != "P1" {
		t.Errorf("journal = %v, want [P1]", left)
	}
}

func TestSweepJournal_ResumesLeftoverPrinters(t *testing.T) {
	j := newTestJournal(t)

	// Simulate a previous process that crashed with P1 and P2 paused.
	if err := j.Record("P1"); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := j.Record("P2"); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	r := NewRegistry(j, nil)
	f := &fakeAdapter{failOn: map[string]error{"P2": errors.New("printer offline")}}
	r.SweepJournal(context.Background(), f)

	if len(f.resumed) != 1 || f.resumed[0] != "P1" {
		t.Errorf("resumed = %v, want [P1]", f.resumed)
	}

	// Failed entry stays journaled for the next start.
	left, _ := j.List()
	if len(left) != 1 || left[0] != "P2" {
		t.Errorf("journal after sweep = %v, want [P2]", left)
	}
}
