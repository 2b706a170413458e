package eventbus

import (
	"context"
	"net/http"
	"sync"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
)

// LogSink writes every event through apex/log, the "log writer
// (external)" collaborator spec.md describes as persisting events for
// operator view.
type LogSink struct{}

func (LogSink) Handle(_ context.Context, ev Event) {
	entry := log.WithField("event", ev.Type).WithField("server_id", ev.ServerID)
	for k, v := range ev.Fields {
		entry = entry.WithField(k, v)
	}
	entry.Info("event")
}

// WebSocketSink upgrades incoming connections and fans out events to
// every connected client, giving operator tooling a live feed.
type WebSocketSink struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection as a sink client.
func (w *WebSocketSink) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	conn, err := w.upgrader.Upgrade(resp, req, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	w.mu.Lock()
	w.clients[conn] = struct{}{}
	w.mu.Unlock()

	go w.readPump(conn)
}

// readPump drops a client once its connection errors or closes, which
// is the only way gorilla/websocket surfaces a remote disconnect.
func (w *WebSocketSink) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			w.mu.Lock()
			delete(w.clients, conn)
			w.mu.Unlock()
			conn.Close()
			return
		}
	}
}

func (w *WebSocketSink) Handle(_ context.Context, ev Event) {
	payload := map[string]any{
		"id":        ev.ID.String(),
		"type":      ev.Type,
		"server_id": ev.ServerID,
		"at":        ev.At,
		"fields":    ev.Fields,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for conn := range w.clients {
		if err := conn.WriteJSON(payload); err != nil {
			delete(w.clients, conn)
			conn.Close()
		}
	}
}

var _ Sink = LogSink{}
var _ Sink = (*WebSocketSink)(nil)
