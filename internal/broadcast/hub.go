// Package broadcast fans settings and record changes out to connected admin
// tabs, over websockets locally and over Redis between instances.
package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/apex-authority/backoffice/internal/metrics"
)

// Event names carried on the wire.
const (
	EventSettingsUpdated    = "settings_updated"
	EventApplicationCreated = "application_created"
	EventApplicationUpdated = "application_updated"
	EventContactCreated     = "contact_created"
	EventContactUpdated     = "contact_updated"
	EventContentUpdated     = "content_updated"
)

// Message is the envelope delivered to every connected tab.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Writer sends an encoded message to one connection.
type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection is one attached admin tab.
type Connection struct {
	ID     string
	Writer Writer
}

// Hub tracks connections and broadcasts messages to all of them.
type Hub struct {
	mu          sync.RWMutex
	connections map[*Connection]struct{}
	metrics     *metrics.Registry
}

// New creates an empty hub. metrics may be nil.
func New(reg *metrics.Registry) *Hub {
	return &Hub{
		connections: make(map[*Connection]struct{}),
		metrics:     reg,
	}
}

// Register attaches a connection.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.connections[conn] = struct{}{}
	count := len(h.connections)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetBroadcastClients(count)
	}
}

// Unregister detaches a connection. Safe to call twice.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	delete(h.connections, conn)
	count := len(h.connections)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetBroadcastClients(count)
	}
}

// Len reports the number of attached connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast delivers msg to every connection except the originator. The
// originating tab already applied the change locally, so echoing it back
// would cause a redundant refresh.
func (h *Hub) Broadcast(msg Message, originID string) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if originID != "" && c.ID == originID {
			continue
		}
		if err := c.Writer.Write(encoded); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}

	if h.metrics != nil {
		h.metrics.RecordBroadcast()
	}
	return nil
}
