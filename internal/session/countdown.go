// Package session runs the purchased-time countdown for one kiosk session.
// The clock ticks locally every second and syncs the remaining balance to
// the remote store at a coarse interval, which cuts remote write volume to
// a small fraction of a write-per-second design.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/printwarden/printwarden/internal/budget"
	"github.com/printwarden/printwarden/internal/event"
)

// Session status constants.
const (
	StatusIdle       = "idle"
	StatusActive     = "active"
	StatusExpired    = "expired"
	StatusEnded      = "ended"
	StatusTerminated = "terminated"
)

// FieldRemainingTime is the purchased-seconds field on the user document.
const FieldRemainingTime = "remainingTime"

// Config holds countdown parameters.
type Config struct {
	// UserID selects the user document (users/{id}) the balance syncs to.
	UserID string

	// SyncInterval is how often the remaining time is written back to the
	// store. Zero defaults to 60 seconds.
	SyncInterval time.Duration

	// WarnThresholds are the remaining-seconds marks that fire a one-shot
	// warning event. Nil defaults to 300 and 60.
	WarnThresholds []int
}

// Countdown is the per-session timer. One Countdown serves one session;
// Start resets all warning state.
type Countdown struct {
	cfg    Config
	store  budget.Store
	bus    *event.Bus
	logger *slog.Logger

	// tickEvery is one wall-clock second of session time. Tests shrink it.
	tickEvery time.Duration

	mu             sync.Mutex
	id             string
	status         string
	remaining      int
	warned         map[int]bool
	ticksSinceSync int
	cancel         context.CancelFunc
	loopDone       chan struct{}
	onExpire       []func()
}

// New creates a Countdown.
func New(cfg Config, store budget.Store, bus *event.Bus, logger *slog.Logger) *Countdown {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 60 * time.Second
	}
	if cfg.WarnThresholds == nil {
		cfg.WarnThresholds = []int{300, 60}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(cfg.WarnThresholds)))
	if logger == nil {
		logger = slog.Default()
	}
	return &Countdown{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		logger:    logger.With("component", "session.Countdown"),
		tickEvery: time.Second,
		status:    StatusIdle,
		warned:    make(map[int]bool),
	}
}

// OnExpire registers a callback invoked once when the countdown hits zero.
// Register before Start.
func (c *Countdown) OnExpire(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpire = append(c.onExpire, fn)
}

// ID returns the session identifier, empty before the first Start.
func (c *Countdown) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Status returns the current session status.
func (c *Countdown) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Start begins ticking down from seconds. Warning flags reset so each
// threshold can fire again for the new session. Starting an active session
// is a logged no-op.
func (c *Countdown) Start(ctx context.Context, seconds int) {
	c.mu.Lock()
	if c.status == StatusActive {
		c.mu.Unlock()
		c.logger.Warn("session start requested while already active, ignoring")
		return
	}

	c.id = "ses_" + ulid.Make().String()
	c.status = StatusActive
	c.remaining = seconds
	c.warned = make(map[int]bool)
	c.ticksSinceSync = 0

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.mu.Unlock()

	go c.loop(loopCtx)

	c.logger.Info("session started", "session_id", c.ID(), "user_id", c.cfg.UserID, "seconds", seconds)
}

// End stops the countdown with the given terminal status (StatusEnded for a
// normal logout, StatusTerminated for a forced one) and writes the final
// balance to the store. Ending an inactive session is a no-op.
func (c *Countdown) End(ctx context.Context, status string) {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return
	}
	c.status = status
	cancel := c.cancel
	done := c.loopDone
	c.mu.Unlock()

	cancel()
	<-done

	c.sync(ctx)
	c.logger.Info("session ended", "session_id", c.ID(), "status", status, "remaining", c.Remaining())
}

// Extend adds purchased seconds to a running session and re-arms any
// warning thresholds the new balance has climbed back above.
func (c *Countdown) Extend(ctx context.Context, seconds int) {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return
	}
	c.remaining += seconds
	for _, th := range c.cfg.WarnThresholds {
		if c.remaining > th {
			c.warned[th] = false
		}
	}
	remaining := c.remaining
	c.mu.Unlock()

	c.sync(ctx)
	c.logger.Info("session extended", "session_id", c.ID(), "added", seconds, "remaining", remaining)
}

func (c *Countdown) loop(ctx context.Context) {
	defer close(c.loopDone)

	ticker := time.NewTicker(c.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := c.tick(ctx); expired {
				return
			}
		}
	}
}

// tick advances the session clock by one second. Returns true when the
// session has just expired, which terminates the loop.
func (c *Countdown) tick(ctx context.Context) bool {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return true
	}
	c.remaining--
	if c.remaining < 0 {
		c.remaining = 0
	}
	remaining := c.remaining

	var warnNow []int
	for _, th := range c.cfg.WarnThresholds {
		if remaining <= th && !c.warned[th] {
			c.warned[th] = true
			warnNow = append(warnNow, th)
		}
	}

	c.ticksSinceSync++
	syncNow := c.ticksSinceSync >= int(c.cfg.SyncInterval/time.Second)
	if syncNow {
		c.ticksSinceSync = 0
	}

	expired := remaining == 0
	if expired {
		c.status = StatusExpired
	}
	callbacks := make([]func(), len(c.onExpire))
	copy(callbacks, c.onExpire)
	c.mu.Unlock()

	for _, th := range warnNow {
		c.logger.Warn("session time warning", "session_id", c.ID(), "threshold", th, "remaining", remaining)
		c.bus.Publish(event.Event{
			Type:             event.TypeSessionWarning,
			RemainingSeconds: remaining,
			Message:          "session time is running low",
		})
	}

	if syncNow || expired {
		c.sync(ctx)
	}

	if expired {
		c.logger.Info("session expired", "session_id", c.ID())
		c.bus.Publish(event.Event{Type: event.TypeSessionExpired})
		for _, fn := range callbacks {
			fn()
		}
	}
	return expired
}

// sync writes the remaining seconds to the user document, best effort. A
// failed sync costs at most one interval of drift; the next one catches up.
func (c *Countdown) sync(ctx context.Context) {
	remaining := c.Remaining()
	err := c.store.Update(ctx, "users/"+c.cfg.UserID, map[string]any{
		FieldRemainingTime: remaining,
	})
	if err != nil {
		c.logger.Error("failed to sync remaining time", "user_id", c.cfg.UserID, "error", err)
	}
}
