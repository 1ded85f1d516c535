// Package killswitch gives kiosk operators an emergency stop that works
// even when the UI is wedged: creating a sentinel file on disk force-ends
// the running session. The file is watched with fsnotify so the reaction is
// immediate rather than waiting on a poll.
package killswitch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TriggerRecord logs what triggered the switch and when.
type TriggerRecord struct {
	Reason    string    `json:"reason"`
	Source    string    `json:"source"` // file, api, cli
	Timestamp time.Time `json:"timestamp"`
}

// KillSwitch force-ends the session when triggered. Triggers come from the
// watched sentinel file, the status API, or the CLI; all of them run the
// same registered callbacks exactly once per trigger.
type KillSwitch struct {
	mu        sync.RWMutex
	triggered bool
	record    TriggerRecord
	history   []TriggerRecord
	callbacks []func(reason string)

	sentinelPath string
	watcher      *fsnotify.Watcher
	done         chan struct{}
	stopOnce     sync.Once
	logger       *slog.Logger
}

// New creates a KillSwitch watching sentinelPath. The path's directory must
// exist; the file itself should not (an already-present sentinel triggers as
// soon as Start runs, so a crash during a triggered state stays triggered).
func New(sentinelPath string, logger *slog.Logger) (*KillSwitch, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sentinelPath == "" {
		return nil, fmt.Errorf("sentinel path is required")
	}

	abs, err := filepath.Abs(sentinelPath)
	if err != nil {
		return nil, fmt.Errorf("resolve sentinel path: %w", err)
	}

	return &KillSwitch{
		sentinelPath: abs,
		done:         make(chan struct{}),
		logger:       logger.With("component", "killswitch"),
	}, nil
}

// OnTrigger registers a callback invoked when the switch fires. Callbacks
// run on the triggering goroutine.
func (ks *KillSwitch) OnTrigger(fn func(reason string)) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.callbacks = append(ks.callbacks, fn)
}

// Start begins watching the sentinel's directory in a background goroutine.
// If the sentinel already exists, the switch triggers immediately.
func (ks *KillSwitch) Start() error {
	if _, err := os.Stat(ks.sentinelPath); err == nil {
		ks.Trigger("sentinel file present at startup", "file")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create sentinel watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(ks.sentinelPath)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch sentinel directory: %w", err)
	}
	ks.watcher = w

	go ks.loop()
	return nil
}

// Stop shuts down the watcher. Safe to call more than once.
func (ks *KillSwitch) Stop() {
	ks.stopOnce.Do(func() {
		close(ks.done)
		if ks.watcher != nil {
			_ = ks.watcher.Close()
		}
	})
}

func (ks *KillSwitch) loop() {
	for {
		select {
		case <-ks.done:
			return
		case ev, ok := <-ks.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != ks.sentinelPath {
				continue
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				ks.Trigger("sentinel file detected", "file")
			}
		case err, ok := <-ks.watcher.Errors:
			if !ok {
				return
			}
			ks.logger.Error("sentinel watcher error", "error", err)
		}
	}
}

// Trigger fires the switch. Re-triggering while already triggered is a
// no-op; callbacks run once per armed-to-triggered transition.
func (ks *KillSwitch) Trigger(reason, source string) {
	record := TriggerRecord{Reason: reason, Source: source, Timestamp: time.Now()}

	ks.mu.Lock()
	if ks.triggered {
		ks.history = append(ks.history, record)
		ks.mu.Unlock()
		return
	}
	ks.triggered = true
	ks.record = record
	ks.history = append(ks.history, record)
	callbacks := make([]func(string), len(ks.callbacks))
	copy(callbacks, ks.callbacks)
	ks.mu.Unlock()

	ks.logger.Error("KILL SWITCH TRIGGERED", "reason", reason, "source", source)

	for _, fn := range callbacks {
		fn(reason)
	}
}

// Reset disarms the switch and removes the sentinel file so the next
// session can start. Safe to call when not triggered.
func (ks *KillSwitch) Reset() {
	ks.mu.Lock()
	ks.triggered = false
	ks.mu.Unlock()

	if err := os.Remove(ks.sentinelPath); err != nil && !os.IsNotExist(err) {
		ks.logger.Warn("failed to remove sentinel file", "path", ks.sentinelPath, "error", err)
	}
	ks.logger.Info("kill switch reset")
}

// IsTriggered reports the current state and, when triggered, the reason.
func (ks *KillSwitch) IsTriggered() (bool, string) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.triggered {
		return false, ""
	}
	return true, ks.record.Reason
}

// History returns all trigger records for audit.
func (ks *KillSwitch) History() []TriggerRecord {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]TriggerRecord, len(ks.history))
	copy(out, ks.history)
	return out
}
