package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"odysseywalk/pkg/narrator"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 64
)

// StreamMessage is one frame on /api/ws. The first frame carries the full
// status, later frames carry single events.
type StreamMessage struct {
	Type   string           `json:"type"`
	Status *narrator.Status `json:"status,omitempty"`
	Event  *narrator.Event  `json:"event,omitempty"`
}

// StreamHandler pushes narrator events to websocket clients.
type StreamHandler struct {
	narrator Narrator
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]struct{}
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(n Narrator) *StreamHandler {
	return &StreamHandler{
		narrator: n,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The UI is served from other origins during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *StreamHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP handles GET /api/ws
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Stream: upgrade failed", "error", err)
		return
	}
	id := uuid.NewString()
	log := slog.With("client", id)

	h.mu.Lock()
	h.clients[id] = struct{}{}
	h.mu.Unlock()
	log.Debug("Stream: client connected", "remote", r.RemoteAddr)

	out := make(chan narrator.Event, wsBuffer)
	unsub := h.narrator.Subscribe(func(ev narrator.Event) {
		select {
		case out <- ev:
		default:
			log.Warn("Stream: client too slow, dropping event", "type", ev.Type)
		}
	})

	done := make(chan struct{})
	go h.readLoop(conn, done)

	h.writeLoop(conn, out, done, log)

	unsub()
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
	_ = conn.Close()
	log.Debug("Stream: client disconnected")
}

// readLoop discards client frames and closes done when the peer goes away.
func (h *StreamHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writeLoop(conn *websocket.Conn, out <-chan narrator.Event, done <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	st := h.narrator.Status()
	if err := writeFrame(conn, StreamMessage{Type: "status", Status: &st}); err != nil {
		log.Debug("Stream: initial write failed", "error", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case ev := <-out:
			if err := writeFrame(conn, StreamMessage{Type: "event", Event: &ev}); err != nil {
				log.Debug("Stream: write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
