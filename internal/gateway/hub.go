package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/secret-queen-chess/internal/protocol"
)

// client is one accepted socket and its outbound queue.
type client struct {
	id   string
	ws   *websocket.Conn
	send chan protocol.Message

	quit     chan struct{}
	quitOnce sync.Once
	status   websocket.StatusCode
	reason   string
}

func (c *client) shutdown(status websocket.StatusCode, reason string) {
	c.quitOnce.Do(func() {
		c.status, c.reason = status, reason
		close(c.quit)
	})
}

// Hub tracks live connections and implements session.Outbox. Sends never
// block the event loop: a full queue closes the connection.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*client

	queue        int
	writeTimeout time.Duration
	log          *zap.Logger
}

func NewHub(queue int, writeTimeout time.Duration, log *zap.Logger) *Hub {
	if queue < 1 {
		queue = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{conns: make(map[string]*client), queue: queue, writeTimeout: writeTimeout, log: log}
}

func (h *Hub) add(id string, ws *websocket.Conn) *client {
	c := &client{id: id, ws: ws, send: make(chan protocol.Message, h.queue), quit: make(chan struct{})}
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

func (h *Hub) get(id string) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Send(connID string, msg protocol.Message) {
	c, ok := h.get(connID)
	if !ok {
		return
	}
	select {
	case <-c.quit:
	case c.send <- msg:
	default:
		h.log.Warn("send_overflow", zap.String("conn_id", connID), zap.String("type", msg.Type))
		c.shutdown(websocket.StatusPolicyViolation, "too slow")
	}
}

// Close flushes what is already queued for connID and then closes it.
func (h *Hub) Close(connID string, reason string) {
	if c, ok := h.get(connID); ok {
		c.shutdown(websocket.StatusNormalClosure, reason)
	}
}

// CloseAll asks every connection to go away, used on shutdown.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.shutdown(websocket.StatusGoingAway, reason)
	}
}

// writeLoop owns all writes to c.ws.
func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			if err := h.write(ctx, c, msg); err != nil {
				h.log.Debug("write_failed", zap.String("conn_id", c.id), zap.Error(err))
				_ = c.ws.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-c.quit:
			for {
				select {
				case msg := <-c.send:
					if err := h.write(ctx, c, msg); err != nil {
						_ = c.ws.Close(c.status, c.reason)
						return
					}
				default:
					_ = c.ws.Close(c.status, c.reason)
					return
				}
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, c *client, msg protocol.Message) error {
	wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, c.ws, msg)
}
