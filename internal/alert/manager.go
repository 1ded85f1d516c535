// Package alert delivers administrator notifications for security-relevant
// budget gate events: a job that printed unmetered because its pause failed,
// a deduction that could not be confirmed, a printer resumed by crash
// recovery. These go to an operator endpoint, not to the kiosk user.
package alert

import (
	"log/slog"
	"sync"
	"time"

	"github.com/printwarden/printwarden/internal/config"
)

// Alert types.
const (
	TypeUnmeteredJob   = "unmetered_job"   // pause failed, job printed without enforcement
	TypeDeductFailure  = "deduct_failure"  // budget write failed after a sufficient-budget decision
	TypeCrashRecovery  = "crash_recovery"  // a printer was resumed by the recovery sweep
	TypeForcedLogout   = "forced_logout"   // the kill switch ended a session
	TypeStoreUnhealthy = "store_unhealthy" // repeated remote store failures
)

// Alert represents a notification to be sent.
type Alert struct {
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"` // info, warning, critical
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Printer   string                 `json:"printer,omitempty"`
	JobID     int                    `json:"job_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sender is an interface for alert delivery channels.
type Sender interface {
	Send(alert Alert) error
	Name() string
}

// Manager orchestrates alert delivery with deduplication.
type Manager struct {
	mu       sync.Mutex
	senders  []Sender
	dedup    map[string]time.Time // dedupKey -> lastSent
	dedupTTL time.Duration
	logger   *slog.Logger
}

// NewManager creates an alert manager with the channels configured in cfg.
func NewManager(cfg config.AlertsConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		senders:  make([]Sender, 0),
		dedup:    make(map[string]time.Time),
		dedupTTL: 5 * time.Minute,
		logger:   logger.With("component", "alert.Manager"),
	}

	if cfg.Webhook.URL != "" {
		m.senders = append(m.senders, NewWebhookSender(cfg.Webhook))
	}

	return m
}

// Send dispatches an alert to all configured channels with deduplication.
// Delivery is asynchronous; the poll loop never waits on an alert endpoint.
func (m *Manager) Send(alert Alert) {
	alert.Timestamp = time.Now()

	dedupKey := alert.Type + "|" + alert.Printer + "|" + alert.UserID
	m.mu.Lock()
	if lastSent, ok := m.dedup[dedupKey]; ok && time.Since(lastSent) < m.dedupTTL {
		m.mu.Unlock()
		m.logger.Debug("alert deduplicated", "type", alert.Type, "key", dedupKey)
		return
	}
	m.dedup[dedupKey] = time.Now()
	m.mu.Unlock()

	for _, sender := range m.senders {
		go func(s Sender) {
			defer func() {
				if rec := recover(); rec != nil {
					m.logger.Error("panic in alert sender", "sender", s.Name(), "panic", rec)
				}
			}()
			if err := s.Send(alert); err != nil {
				m.logger.Error("failed to send alert",
					"sender", s.Name(),
					"type", alert.Type,
					"error", err,
				)
			}
		}(sender)
	}
}

// PruneDedup removes old dedup entries. Call periodically.
func (m *Manager) PruneDedup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for key, ts := range m.dedup {
		if now.Sub(ts) > m.dedupTTL*2 {
			delete(m.dedup, key)
		}
	}
}

// HasSenders returns true if any alert channels are configured.
func (m *Manager) HasSenders() bool {
	return len(m.senders) > 0
}
