// Package recovery guarantees that no printer paused by this process stays
// paused after the process is gone. The Registry tracks queue-level pauses in
// memory for the clean-exit path and mirrors them into a persistent journal
// for the hard-crash path.
package recovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/printwarden/printwarden/internal/spooler"
)

// Registry is the lock-guarded set of printers currently paused at the queue
// level by this process. It is injected into both the print monitor and the
// process-exit handler; the exit handler is the only cross-goroutine
// accessor, which is why the lock exists at all.
type Registry struct {
	mu      sync.Mutex
	paused  map[string]struct{}
	journal Journal
	logger  *slog.Logger
}

// NewRegistry creates a Registry. The journal is optional; without one, only
// the in-process exit handler protects paused printers.
func NewRegistry(journal Journal, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		paused:  make(map[string]struct{}),
		journal: journal,
		logger:  logger.With("component", "recovery.Registry"),
	}
}

// MarkPaused records that printer has been paused at the queue level.
func (r *Registry) MarkPaused(printer string) {
	r.mu.Lock()
	r.paused[printer] = struct{}{}
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Record(printer); err != nil {
			r.logger.Error("failed to journal printer pause", "printer", printer, "error", err)
		}
	}
}

// MarkResumed records that printer has been cleanly resumed.
func (r *Registry) MarkResumed(printer string) {
	r.mu.Lock()
	delete(r.paused, printer)
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Remove(printer); err != nil {
			r.logger.Error("failed to clear journaled pause", "printer", printer, "error", err)
		}
	}
}

// Snapshot returns the currently registered printers.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.paused))
	for p := range r.paused {
		out = append(out, p)
	}
	return out
}

// ResumeAll issues a queue-level resume for every registered printer, best
// effort. It is the process-exit safety handler: idempotent, never panics,
// and a failure on one printer never skips the rest. Entries that resume
// cleanly are removed from the journal; failed entries stay journaled so the
// next process start retries them.
func (r *Registry) ResumeAll(ctx context.Context, adapter spooler.Adapter) {
	for _, printer := range r.Snapshot() {
		r.resumeOne(ctx, adapter, printer)
	}
}

func (r *Registry) resumeOne(ctx context.Context, adapter spooler.Adapter, printer string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while resuming printer", "printer", printer, "panic", rec)
		}
	}()

	r.mu.Lock()
	delete(r.paused, printer)
	r.mu.Unlock()

	if err := adapter.ResumePrinter(ctx, printer); err != nil {
		r.logger.Error("failed to resume printer at exit", "printer", printer, "error", err)
		return
	}
	r.logger.Info("resumed printer at exit", "printer", printer)

	if r.journal != nil {
		if err := r.journal.Remove(printer); err != nil {
			r.logger.Error("failed to clear journaled pause", "printer", printer, "error", err)
		}
	}
}

// SweepJournal resumes printers left paused by a previous process that never
// ran its exit handler. Call once at startup, before monitoring begins.
// Journal entries are removed only after a successful resume.
func (r *Registry) SweepJournal(ctx context.Context, adapter spooler.Adapter) {
	if r.journal == nil {
		return
	}
	printers, err := r.journal.List()
	if err != nil {
		r.logger.Error("failed to read pause journal", "error", err)
		return
	}
	for _, printer := range printers {
		if err := adapter.ResumePrinter(ctx, printer); err != nil {
			r.logger.Error("failed to resume journaled printer", "printer", printer, "error", err)
			continue
		}
		r.logger.Warn("resumed printer left paused by previous process", "printer", printer)
		if err := r.journal.Remove(printer); err != nil {
			r.logger.Error("failed to clear journaled pause", "printer", printer, "error", err)
		}
	}
}
