package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sakif/starblog/internal/metrics"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrUserLimit  = errors.New("realtime: user connection limit reached")
	ErrTotalLimit = errors.New("realtime: server connection limit reached")
	ErrHubClosed  = errors.New("realtime: hub is shut down")
)

// Hub maps user id to that user's live clients. Membership changes only on
// connect and disconnect.
type Hub struct {
	mu     sync.RWMutex
	conns  map[int64]map[*Client]struct{}
	total  int
	closed bool

	logger *slog.Logger
}

var _ Publisher = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

// Register joins conn to the channel of userID. The caller starts the
// client's pumps.
func (h *Hub) Register(userID int64, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.total >= maxTotalConns {
		return nil, ErrTotalLimit
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserLimit
	}

	c := newClient(h, conn, userID)
	m[c] = struct{}{}
	h.total++
	metrics.WebSocketConnections.Inc()
	return c, nil
}

// unregister removes c and closes its send channel. Calling it twice is safe.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[c.UserID]
	if !ok {
		return
	}
	if _, ok := m[c]; !ok {
		return
	}
	delete(m, c)
	if len(m) == 0 {
		delete(h.conns, c.UserID)
	}
	h.total--
	close(c.send)
	metrics.WebSocketConnections.Dec()
}

// PublishUser implements Publisher for a single process.
func (h *Hub) PublishUser(_ context.Context, userID int64, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	h.Deliver(userID, payload)
	return nil
}

// Deliver queues payload on every connection of userID and reports how many
// accepted it.
func (h *Hub) Deliver(userID int64, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.conns[userID]
	if len(clients) == 0 {
		metrics.NotificationsTotal.WithLabelValues("offline").Inc()
		return 0
	}

	n := 0
	for c := range clients {
		if c.trySend(payload) {
			n++
		}
	}
	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
	return n
}

// Connected returns the number of open connections for userID.
func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Shutdown closes every client's send channel; each WritePump then sends a
// going-away close frame and drops the connection. Later Register calls fail.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for userID, clients := range h.conns {
		for c := range clients {
			close(c.send)
			metrics.WebSocketConnections.Dec()
		}
		delete(h.conns, userID)
	}
	h.total = 0
	h.logger.Info("notification hub stopped")
	return nil
}
