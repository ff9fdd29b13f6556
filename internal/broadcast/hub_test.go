package broadcast

import (
	"encoding/json"
	"errors"
	"testing"
)

type fakeWriter struct {
	messages [][]byte
	failing  bool
	closed   bool
}

func (w *fakeWriter) Write(message []byte) error {
	if w.failing {
		return errors.New("write failed")
	}
	w.messages = append(w.messages, message)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestBroadcastSkipsOriginator(t *testing.T) {
	hub := New(nil)

	origin := &fakeWriter{}
	other := &fakeWriter{}
	hub.Register(&Connection{ID: "tab-1", Writer: origin})
	hub.Register(&Connection{ID: "tab-2", Writer: other})

	msg := Message{Event: EventSettingsUpdated, Data: json.RawMessage(`{"category":1}`)}
	if err := hub.Broadcast(msg, "tab-1"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if len(origin.messages) != 0 {
		t.Fatalf("originator received %d messages", len(origin.messages))
	}
	if len(other.messages) != 1 {
		t.Fatalf("other tab received %d messages", len(other.messages))
	}

	var decoded Message
	if err := json.Unmarshal(other.messages[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Event != EventSettingsUpdated {
		t.Fatalf("event = %q", decoded.Event)
	}
}

func TestBroadcastWithEmptyOriginReachesEveryone(t *testing.T) {
	hub := New(nil)

	first := &fakeWriter{}
	second := &fakeWriter{}
	hub.Register(&Connection{ID: "tab-1", Writer: first})
	hub.Register(&Connection{ID: "tab-2", Writer: second})

	if err := hub.Broadcast(Message{Event: EventContactCreated}, ""); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(first.messages) != 1 || len(second.messages) != 1 {
		t.Fatalf("delivery counts = %d, %d", len(first.messages), len(second.messages))
	}
}

func TestBroadcastDropsFailedConnections(t *testing.T) {
	hub := New(nil)

	bad := &fakeWriter{failing: true}
	good := &fakeWriter{}
	hub.Register(&Connection{ID: "tab-bad", Writer: bad})
	hub.Register(&Connection{ID: "tab-good", Writer: good})

	if err := hub.Broadcast(Message{Event: EventContentUpdated}, ""); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if !bad.closed {
		t.Fatal("failed connection should be closed")
	}
	if hub.Len() != 1 {
		t.Fatalf("hub len = %d, want 1", hub.Len())
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := New(nil)

	conn := &Connection{ID: "tab-1", Writer: &fakeWriter{}}
	hub.Register(conn)
	hub.Unregister(conn)
	hub.Unregister(conn)

	if hub.Len() != 0 {
		t.Fatalf("hub len = %d, want 0", hub.Len())
	}
}
