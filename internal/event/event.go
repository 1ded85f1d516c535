// Package event carries the transient in-process notifications the budget
// gate and session countdown emit for the surrounding kiosk UI.
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies what happened.
type Type string

const (
	// TypePrintAllowed fires after a job has been charged and released.
	TypePrintAllowed Type = "print.allowed"
	// TypePrintBlocked fires when a job costs more than the remaining budget.
	TypePrintBlocked Type = "print.blocked"
	// TypePrintDenied fires when an operator print rule cancelled a job
	// before the budget was consulted.
	TypePrintDenied Type = "print.denied"
	// TypeBudgetUpdated fires whenever the known remaining budget changes.
	TypeBudgetUpdated Type = "budget.updated"
	// TypeSessionWarning fires once per remaining-time threshold crossing.
	TypeSessionWarning Type = "session.warning"
	// TypeSessionExpired fires when the countdown reaches zero.
	TypeSessionExpired Type = "session.expired"
	// TypeError reports a failure the UI may want to surface or log.
	TypeError Type = "error"
)

// Event is a single notification. Only the fields relevant to the Type are
// populated.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Printer  string  `json:"printer,omitempty"`
	Document string  `json:"document,omitempty"`
	Pages    int     `json:"pages,omitempty"`
	Cost     float64 `json:"cost,omitempty"`

	// RemainingBudget is the balance after the deduction for allowed jobs,
	// and the balance at decision time for blocked jobs.
	RemainingBudget float64 `json:"remaining_budget"`

	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
	Message          string `json:"message,omitempty"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine; keep them fast or dispatch internally.
type Handler func(Event)

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "event.Bus")}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish stamps the event with an ID and timestamp and delivers it to every
// subscriber. A panicking handler is logged and does not stop delivery to
// the rest.
func (b *Bus) Publish(e Event) {
	e.ID = ulid.Make().String()
	e.Timestamp = time.Now().UTC()

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event handler panicked", "type", string(e.Type), "panic", rec)
		}
	}()
	h(e)
}
