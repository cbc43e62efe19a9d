// Package stream pushes reset decisions to WebSocket subscribers of a
// session.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/pkg/logger"
	"github.com/okian/anchordrift/pkg/metrics"
)

const (
	defaultBufferSize = 64
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = pongWait * 9 / 10
)

type subscriber struct {
	session string
	send    chan []byte
	closed  chan struct{}
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}

// Hub tracks subscribers per session. A subscriber that falls behind by
// more than its buffer loses decisions rather than slowing the workers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	total  int
	closed bool

	bufferSize int
	upgrader   websocket.Upgrader
	logger     logger.Logger
}

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber send buffer.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:       make(map[string]map[*subscriber]struct{}),
		bufferSize: defaultBufferSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("stream")
	}
	return h
}

// Publish sends d to every subscriber of its session.
func (h *Hub) Publish(ctx context.Context, d model.Decision) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subs[d.SessionID]
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	for sub := range subs {
		select {
		case sub.send <- payload:
		default:
			metrics.RecordSinkError("stream_drop")
			h.logger.Debug(ctx, "subscriber lagging, decision dropped", logger.String("session_id", d.SessionID))
		}
	}
	return nil
}

// Subscribers returns the number of subscribers of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Serve upgrades the request and streams decisions of sessionID until the
// client goes away, the session is dropped, or the hub is closed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	sub := &subscriber{
		session: sessionID,
		send:    make(chan []byte, h.bufferSize),
		closed:  make(chan struct{}),
	}
	if !h.add(sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return
	}
	defer h.remove(sub)

	go h.readLoop(conn, sub)
	h.writeLoop(r.Context(), conn, sub)
}

// readLoop only services control frames; subscribers never send data.
func (h *Hub) readLoop(conn *websocket.Conn, sub *subscriber) {
	defer sub.close()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(context.Background(), "websocket read error",
					logger.String("session_id", sub.session), logger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				metrics.RecordSinkError("stream")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	set, ok := h.subs[sub.session]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[sub.session] = set
	}
	set[sub] = struct{}{}
	h.total++
	metrics.UpdateStreamClients(h.total)
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.session]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.session)
	}
	h.total--
	metrics.UpdateStreamClients(h.total)
}

// Drop disconnects every subscriber of a deleted session.
func (h *Hub) Drop(sessionID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[sessionID] {
		sub.close()
	}
}

// Close disconnects all subscribers and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			sub.close()
		}
	}
	return nil
}
