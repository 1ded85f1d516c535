// Package monitor implements the print-job budget gate: a polling state
// machine that detects newly queued spooler jobs, holds them before any
// paper moves, prices them, checks-and-deducts the user's remote budget,
// and releases or permanently cancels them.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/printwarden/printwarden/internal/alert"
	"github.com/printwarden/printwarden/internal/budget"
	"github.com/printwarden/printwarden/internal/event"
	"github.com/printwarden/printwarden/internal/ledger"
	"github.com/printwarden/printwarden/internal/policy"
	"github.com/printwarden/printwarden/internal/pricing"
	"github.com/printwarden/printwarden/internal/recovery"
	"github.com/printwarden/printwarden/internal/spooler"
)

// Monitor states.
const (
	StateStopped    = "stopped"
	StateMonitoring = "monitoring"
)

// FieldRemainingPrints is the budget field on the user document.
const FieldRemainingPrints = "remainingPrints"

// Config holds the per-session monitor parameters.
type Config struct {
	// PollInterval is the spooler polling period. Zero defaults to 1s.
	PollInterval time.Duration

	// UserID selects the user document (users/{id}) whose budget is
	// charged for every job admitted during this session.
	UserID string

	// PrinterPause enables the queue-level pause around each batch of new
	// jobs, registered with the crash-recovery registry. When disabled the
	// monitor relies on per-job pause only.
	PrinterPause bool
}

// Monitor is the poll engine. One Monitor serves one kiosk session at a
// time; Start and Stop bracket the session lifecycle.
type Monitor struct {
	cfg      Config
	adapter  spooler.Adapter
	store    budget.Store
	rules    *policy.Engine
	registry *recovery.Registry
	bus      *event.Bus
	alerts   *alert.Manager
	defaults pricing.Snapshot
	logger   *slog.Logger

	mu       sync.Mutex
	state    string
	cancel   context.CancelFunc
	loopDone chan struct{}

	// jobs and prices are owned by the poll goroutine between Start and
	// Stop; Start writes them before the loop exists and Stop reads them
	// after the loop has exited.
	jobs   *ledger.Ledger
	prices pricing.Snapshot

	budgetMu   sync.Mutex
	lastBudget float64
	budgetSeen bool
}

// New creates a Monitor. The rules engine may be nil when no print rules are
// configured; everything else is required.
func New(
	cfg Config,
	adapter spooler.Adapter,
	store budget.Store,
	rules *policy.Engine,
	registry *recovery.Registry,
	bus *event.Bus,
	alerts *alert.Manager,
	defaults pricing.Snapshot,
	logger *slog.Logger,
) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:      cfg,
		adapter:  adapter,
		store:    store,
		rules:    rules,
		registry: registry,
		bus:      bus,
		alerts:   alerts,
		defaults: defaults,
		logger:   logger.With("component", "monitor"),
		state:    StateStopped,
		jobs:     ledger.New(),
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastKnownBudget returns the most recent budget value the monitor observed,
// and whether one has been observed yet. For status reporting only; the
// admission path always re-reads the store.
func (m *Monitor) LastKnownBudget() (float64, bool) {
	m.budgetMu.Lock()
	defer m.budgetMu.Unlock()
	return m.lastBudget, m.budgetSeen
}

// Start loads the pricing snapshot, seeds the ledger with every job already
// queued (pre-existing jobs are never evaluated), and begins polling.
// Calling Start while already monitoring is a logged no-op that keeps the
// existing ledger state.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateMonitoring {
		m.mu.Unlock()
		m.logger.Warn("start requested while already monitoring, ignoring")
		return nil
	}

	m.prices = pricing.Load(ctx, m.store, m.defaults, m.logger)

	m.jobs.Clear()
	for _, printer := range m.adapter.ListPrinters(ctx) {
		ids := jobIDs(m.adapter.ListJobs(ctx, printer))
		m.jobs.Seed(printer, ids)
		m.logger.Debug("seeded printer ledger", "printer", printer, "existing_jobs", len(ids))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	m.state = StateMonitoring
	m.mu.Unlock()

	go m.loop(loopCtx)

	m.logger.Info("print monitoring started",
		"user_id", m.cfg.UserID,
		"poll_interval", m.cfg.PollInterval,
		"printer_pause", m.cfg.PrinterPause,
	)
	return nil
}

// Stop cancels the poll loop and clears the ledger. Already-stopped is a
// logged no-op. Stop deliberately does not resume globally paused printers;
// that belongs to the crash-recovery registry's exit path.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		m.logger.Warn("stop requested while already stopped, ignoring")
		return
	}
	cancel := m.cancel
	done := m.loopDone
	m.state = StateStopped
	m.mu.Unlock()

	cancel()
	<-done

	m.jobs.Clear()
	m.logger.Info("print monitoring stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.loopDone)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick polls every printer once. A failure on one printer never aborts the
// others, and nothing escapes to the ticker goroutine.
func (m *Monitor) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("panic in poll tick", "panic", rec)
		}
	}()

	for _, printer := range m.adapter.ListPrinters(ctx) {
		m.pollPrinter(ctx, printer)
	}
}

func (m *Monitor) pollPrinter(ctx context.Context, printer string) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("panic while polling printer", "printer", printer, "panic", rec)
		}
	}()

	jobs := m.adapter.ListJobs(ctx, printer)
	ids := jobIDs(jobs)
	fresh := m.jobs.Diff(printer, ids)

	// Replace, not union: departed jobs are forgotten, their ids may be
	// reused by the OS later. Recorded before admission so that a panic
	// mid-batch cannot make the same jobs look new again next tick.
	m.jobs.Replace(printer, ids)

	if len(fresh) > 0 {
		byID := make(map[int]spooler.Job, len(jobs))
		for _, j := range jobs {
			byID[j.ID] = j
		}
		m.admitBatch(ctx, printer, fresh, byID)
	}
}

// admitBatch runs the admission protocol for each new job, serialized. With
// PrinterPause enabled the whole queue is held first and registered for
// crash recovery, so a process death mid-batch cannot let a half-evaluated
// job slip through to the device.
func (m *Monitor) admitBatch(ctx context.Context, printer string, fresh []int, byID map[int]spooler.Job) {
	queuePaused := false
	if m.cfg.PrinterPause {
		if err := m.adapter.PausePrinter(ctx, printer); err != nil {
			m.logger.Error("queue-level pause failed, falling back to per-job pause",
				"printer", printer, "error", err)
		} else {
			m.registry.MarkPaused(printer)
			queuePaused = true
		}
	}

	for _, id := range fresh {
		job, ok := byID[id]
		if !ok {
			// Job left the queue between enumeration and admission.
			continue
		}
		m.admit(ctx, job)
	}

	if queuePaused {
		if err := m.adapter.ResumePrinter(ctx, printer); err != nil {
			// Leave the printer registered so the exit handler retries.
			m.logger.Error("failed to resume printer queue", "printer", printer, "error", err)
		} else {
			m.registry.MarkResumed(printer)
		}
	}
}

// admit applies the job-admission protocol to one newly observed job:
// pause, price, rule check, fresh budget read, deduct-then-release or
// cancel. It runs to completion before the next job in the batch starts.
func (m *Monitor) admit(ctx context.Context, job spooler.Job) {
	pages := job.TotalPages
	if pages < 1 {
		pages = 1
	}

	// No pause, no charge: a job the operator cannot hold must not be
	// deducted for, and must not be touched further. It will print
	// unmetered, which is why this is alert-worthy, not just log-worthy.
	if err := m.adapter.PauseJob(ctx, job.Printer, job.ID); err != nil {
		m.logger.Error("failed to pause job, it will print unmetered",
			"printer", job.Printer,
			"job_id", job.ID,
			"document", job.Document,
			"error", err,
		)
		m.sendAlert(alert.Alert{
			Type:     alert.TypeUnmeteredJob,
			Severity: "critical",
			Title:    "Print job escaped budget enforcement",
			Message:  "pause failed; the job printed without a budget check",
			Printer:  job.Printer,
			JobID:    job.ID,
			UserID:   m.cfg.UserID,
		})
		m.bus.Publish(event.Event{
			Type:     event.TypeError,
			Printer:  job.Printer,
			Document: job.Document,
			Message:  "a print job could not be paused and was not charged",
		})
		return
	}

	if m.rules != nil {
		res := m.rules.Evaluate(policy.JobContext{
			Document: job.Document,
			Pages:    pages,
			Printer:  job.Printer,
			Color:    job.Color,
			UserID:   m.cfg.UserID,
		})
		if res.Effect == policy.EffectDeny {
			m.cancelJob(ctx, job, "print rule "+res.RuleName)
			m.bus.Publish(event.Event{
				Type:     event.TypePrintDenied,
				Printer:  job.Printer,
				Document: job.Document,
				Pages:    pages,
				Message:  res.Message,
			})
			return
		}
	}

	cost := m.prices.JobCost(job.TotalPages, job.Color)

	// Always a fresh read. Two jobs fired in quick succession must each see
	// the other's deduction, so no cached balance is ever trusted here.
	remaining, err := m.readBudget(ctx)
	if err != nil {
		m.logger.Error("budget read failed, cancelling held job",
			"printer", job.Printer,
			"job_id", job.ID,
			"document", job.Document,
			"error", err,
		)
		m.cancelJob(ctx, job, "budget unavailable")
		m.bus.Publish(event.Event{
			Type:     event.TypeError,
			Printer:  job.Printer,
			Document: job.Document,
			Message:  "budget could not be verified; the job was cancelled",
		})
		return
	}

	if remaining < cost {
		m.cancelJob(ctx, job, "insufficient budget")
		m.logger.Info("blocked print job",
			"printer", job.Printer,
			"job_id", job.ID,
			"document", job.Document,
			"pages", pages,
			"cost", cost,
			"budget", remaining,
		)
		m.bus.Publish(event.Event{
			Type:            event.TypePrintBlocked,
			Printer:         job.Printer,
			Document:        job.Document,
			Pages:           pages,
			Cost:            cost,
			RemainingBudget: remaining,
		})
		return
	}

	newBalance := remaining - cost
	if newBalance < 0 {
		newBalance = 0
	}
	if err := m.deduct(ctx, remaining, newBalance); err != nil {
		// Never release a job on an unconfirmed deduction.
		m.logger.Error("deduct write failed, cancelling held job",
			"printer", job.Printer,
			"job_id", job.ID,
			"document", job.Document,
			"cost", cost,
			"error", err,
		)
		m.sendAlert(alert.Alert{
			Type:     alert.TypeDeductFailure,
			Severity: "warning",
			Title:    "Budget deduction failed",
			Message:  "the job was cancelled to avoid unconfirmed charging",
			Printer:  job.Printer,
			JobID:    job.ID,
			UserID:   m.cfg.UserID,
		})
		m.cancelJob(ctx, job, "deduction unconfirmed")
		m.bus.Publish(event.Event{
			Type:     event.TypeError,
			Printer:  job.Printer,
			Document: job.Document,
			Message:  "budget deduction failed; the job was cancelled and not charged",
		})
		return
	}

	m.setLastBudget(newBalance)

	if err := m.adapter.ResumeJob(ctx, job.Printer, job.ID); err != nil {
		m.logger.Error("charged job failed to resume",
			"printer", job.Printer,
			"job_id", job.ID,
			"document", job.Document,
			"error", err,
		)
		m.bus.Publish(event.Event{
			Type:     event.TypeError,
			Printer:  job.Printer,
			Document: job.Document,
			Message:  "the job was charged but could not be released; ask staff for help",
		})
		return
	}

	m.logger.Info("allowed print job",
		"printer", job.Printer,
		"job_id", job.ID,
		"document", job.Document,
		"pages", pages,
		"cost", cost,
		"remaining", newBalance,
	)
	m.bus.Publish(event.Event{
		Type:            event.TypePrintAllowed,
		Printer:         job.Printer,
		Document:        job.Document,
		Pages:           pages,
		Cost:            cost,
		RemainingBudget: newBalance,
	})
	m.bus.Publish(event.Event{
		Type:            event.TypeBudgetUpdated,
		RemainingBudget: newBalance,
	})
}

func (m *Monitor) userPath() string {
	return "users/" + m.cfg.UserID
}

func (m *Monitor) readBudget(ctx context.Context) (float64, error) {
	doc, err := m.store.Get(ctx, m.userPath())
	if err != nil {
		return 0, err
	}
	remaining, ok := doc.Float(FieldRemainingPrints)
	if !ok || remaining < 0 {
		remaining = 0
	}
	m.setLastBudget(remaining)
	return remaining, nil
}

// deduct writes the new balance. When the store supports conditional writes
// the deduction is a compare-and-swap on the balance read moments ago, so a
// concurrent writer surfaces as an error instead of a lost update.
func (m *Monitor) deduct(ctx context.Context, current, newBalance float64) error {
	if cs, ok := m.store.(budget.ConditionalStore); ok {
		return cs.UpdateFieldIf(ctx, m.userPath(), FieldRemainingPrints, current, newBalance)
	}
	return m.store.Update(ctx, m.userPath(), map[string]any{FieldRemainingPrints: newBalance})
}

func (m *Monitor) cancelJob(ctx context.Context, job spooler.Job, why string) {
	if err := m.adapter.CancelJob(ctx, job.Printer, job.ID); err != nil {
		m.logger.Error("failed to cancel held job",
			"printer", job.Printer,
			"job_id", job.ID,
			"document", job.Document,
			"reason", why,
			"error", err,
		)
	}
}

func (m *Monitor) setLastBudget(v float64) {
	m.budgetMu.Lock()
	m.lastBudget = v
	m.budgetSeen = true
	m.budgetMu.Unlock()
}

func (m *Monitor) sendAlert(a alert.Alert) {
	if m.alerts != nil {
		m.alerts.Send(a)
	}
}

func jobIDs(jobs []spooler.Job) []int {
	ids := make([]int, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}
