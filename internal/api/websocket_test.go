package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/printwarden/printwarden/internal/event"
)

func dialHub(t *testing.T, hub *WebSocketHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	// The handler registers the client after the handshake completes.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestWebSocketHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewWebSocketHub(nil, true)
	defer hub.Close()

	conn := dialHub(t, hub)

	// The monitor and the countdown publish from separate goroutines; every
	// event must arrive intact on the one connection.
	const perPublisher = 50
	var wg sync.WaitGroup
	for _, typ := range []event.Type{event.TypePrintAllowed, event.TypeSessionWarning} {
		wg.Add(1)
		go func(typ event.Type) {
			defer wg.Done()
			for range perPublisher {
				hub.Broadcast(event.Event{Type: typ})
			}
		}(typ)
	}
	wg.Wait()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 2*perPublisher; i++ {
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestWebSocketHub_DeadClientDropped(t *testing.T) {
	hub := NewWebSocketHub(nil, true)
	defer hub.Close()

	conn := dialHub(t, hub)
	_ = conn.Close()

	// Writes to the closed connection fail; the hub drops the client
	// instead of retrying it forever.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		hub.Broadcast(event.Event{Type: event.TypePrintAllowed})
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want 0 after client closed", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
