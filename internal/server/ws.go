package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/eightball/internal/app"
)

const (
	clientBuffer = 8
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// DetectionsHandler pushes every detection snapshot to websocket clients as JSON.
type DetectionsHandler struct {
	app         *app.App
	log         *logrus.Logger
	unsubscribe func()

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

// NewDetectionsHandler subscribes to the app's snapshots.
func NewDetectionsHandler(a *app.App, logger *logrus.Logger) *DetectionsHandler {
	h := &DetectionsHandler{
		app:     a,
		log:     logger,
		clients: make(map[*websocket.Conn]chan []byte),
	}
	h.unsubscribe = a.Subscribe(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests. The latest snapshot, if any,
// is sent right after connecting.
func (h *DetectionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer conn.Close()

	send := make(chan []byte, clientBuffer)
	if snap, ok := h.app.Latest(); ok {
		if msg, err := json.Marshal(snap); err == nil {
			send <- msg
		}
	}

	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Reads only detect the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// broadcast queues snap for every client. Slow clients drop messages rather
// than stall the pipeline.
func (h *DetectionsHandler) broadcast(snap app.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(snap)
	if err != nil {
		h.log.WithError(err).Warn("Failed to encode snapshot")
		return
	}

	for _, send := range h.clients {
		select {
		case send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *DetectionsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops receiving snapshots.
func (h *DetectionsHandler) Close() {
	h.unsubscribe()
}
