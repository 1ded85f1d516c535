package event

import "testing"

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	b := NewBus(nil)

	var got1, got2 []Event
	b.Subscribe(func(e Event) { got1 = append(got1, e) })
	b.Subscribe(func(e Event) { got2 = append(got2, e) })

	b.Publish(Event{Type: TypePrintAllowed, Document: "report.pdf", Cost: 5})

	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("delivery counts = %d, %d, want 1, 1", len(got1), len(got2))
	}
	if got1[0].ID == "" {
		t.Error("published event should carry an ID")
	}
	if got1[0].Timestamp.IsZero() {
		t.Error("published event should carry a timestamp")
	}
	if got1[0].Document != "report.pdf" || got1[0].Cost != 5 {
		t.Errorf("event = %+v, want document/cost preserved", got1[0])
	}
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := NewBus(nil)

	b.Subscribe(func(e Event) { panic("bad handler") })
	delivered := false
	b.Subscribe(func(e Event) { delivered = true })

	b.Publish(Event{Type: TypeError, Message: "boom"})

	if !delivered {
		t.Error("second handler should still receive the event")
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	b := NewBus(nil)
	ids := map[string]bool{}
	b.Subscribe(func(e Event) { ids[e.ID] = true })

	for range 10 {
		b.Publish(Event{Type: TypeBudgetUpdated})
	}
	if len(ids) != 10 {
		t.Errorf("got %d unique IDs out of 10 events", len(ids))
	}
}
