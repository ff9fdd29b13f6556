package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/apex-authority/backoffice/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter adapts a websocket connection to the broadcast writer interface.
// Broadcasts reach it from request goroutines and the redis bridge at the
// same time; gorilla permits only one concurrent writer per connection, so
// Write serializes under mu.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

// websocket upgrades the request and attaches the tab to the broadcast hub
// until the socket closes. The tab query parameter identifies the tab so
// its own writes are not echoed back.
func (h *handler) websocket(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tab")
	if tabID == "" {
		tabID = uuid.NewString()
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &broadcast.Connection{ID: tabID, Writer: &wsWriter{conn: ws}}
	h.app.Hub.Register(conn)
	defer func() {
		h.app.Hub.Unregister(conn)
		_ = ws.Close()
	}()

	h.log.WithField("tab_id", tabID).Debug("tab connected")

	ws.SetReadLimit(64 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	// Tabs only listen; drain until the peer closes.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
