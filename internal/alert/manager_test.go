package alert

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/printwarden/printwarden/internal/config"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Alert
}

func (c *captureSender) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, a)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestManager_SendAndDedup(t *testing.T) {
	m := NewManager(config.AlertsConfig{}, nil)
	sink := &captureSender{}
	m.senders = append(m.senders, sink)

	a := Alert{Type: TypeUnmeteredJob, Printer: "HP1", JobID: 42, Severity: "critical"}
	m.Send(a)
	waitFor(t, func() bool { return sink.count() == 1 })

	// Identical alert within the dedup window is suppressed.
	m.Send(a)
	time.Sleep(20 * time.Millisecond)
	if sink.count() != 1 {
		t.Errorf("duplicate alert delivered, count = %d", sink.count())
	}

	// Different printer is a different dedup key.
	m.Send(Alert{Type: TypeUnmeteredJob, Printer: "HP2"})
	waitFor(t, func() bool { return sink.count() == 2 })
}

type panicSender struct{}

func (panicSender) Send(a Alert) error { panic("sender blew up") }

func (panicSender) Name() string { return "panic" }

func TestManager_PanickingSenderDoesNotCrashDelivery(t *testing.T) {
	m := NewManager(config.AlertsConfig{}, nil)
	sink := &captureSender{}
	m.senders = append(m.senders, panicSender{}, sink)

	m.Send(Alert{Type: TypeDeductFailure, Printer: "HP1", Severity: "critical"})

	// The healthy sender still gets the alert and the process survives the
	// panicking one.
	waitFor(t, func() bool { return sink.count() == 1 })
}

func TestManager_NoSendersConfigured(t *testing.T) {
	m := NewManager(config.AlertsConfig{}, nil)
	if m.HasSenders() {
		t.Error("HasSenders() = true with empty config")
	}
	// Must not panic.
	m.Send(Alert{Type: TypeDeductFailure})
}

func TestWebhookSender_PostsJSON(t *testing.T) {
	var gotBody Alert
	var gotSig string
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		gotSig = r.Header.Get("X-PrintWarden-Signature")
		close(done)
	}))
	defer srv.Close()

	s := NewWebhookSender(config.WebhookAlertConfig{URL: srv.URL, Secret: "s3cret"})
	err := s.Send(Alert{Type: TypeCrashRecovery, Printer: "HP1", Severity: "warning"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	<-done

	if gotBody.Type != TypeCrashRecovery || gotBody.Printer != "HP1" {
		t.Errorf("webhook body = %+v", gotBody)
	}
	if gotSig == "" {
		t.Error("signature header missing when secret configured")
	}
}

func TestWebhookSender_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(config.WebhookAlertConfig{URL: srv.URL})
	if err := s.Send(Alert{Type: TypeDeductFailure}); err == nil {
		t.Error("Send() on 502 should return error")
	}
}
