// Package realtime fans the live memory set out to websocket clients.
package realtime

import (
	"context"
	"net/http"
	"slices"

	"memorymap/internal/memory"
	"memorymap/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	MessageTypeMemories = "memories"
	MessageTypeError    = "error"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// Source is the upstream change feed, normally a memory.Store.
type Source interface {
	Subscribe(ctx context.Context, onRecords func([]memory.Memory), onError func(error)) (func(), error)
}

// Hub keeps one upstream subscription per process and caches the latest set
// so new clients are served immediately.
type Hub struct {
	// Origins allowed to upgrade; empty allows any.
	Origins []string

	src        Source
	log        *zap.Logger
	register   chan *Client
	unregister chan *Client
	updates    chan Message
	clients    map[*Client]bool
	last       *Message
	done       chan struct{}
}

func NewHub(src Source, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		src:        src,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		updates:    make(chan Message, 16),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run blocks until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	publish := func(m Message) {
		select {
		case h.updates <- m:
		case <-ctx.Done():
		}
	}
	unsubscribe, err := h.src.Subscribe(ctx,
		func(ms []memory.Memory) {
			publish(Message{Type: MessageTypeMemories, Data: ms})
		},
		func(err error) {
			h.log.Warn("memory subscription error", zap.Error(err))
			publish(Message{Type: MessageTypeError, Data: ErrorData{Message: "live updates interrupted, retrying"}})
		},
	)
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			h.log.Info("realtime hub stopped")
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = true
			metrics.Subscribers.Inc()
			if h.last != nil {
				select {
				case c.send <- *h.last:
				default:
				}
			}
			h.log.Debug("subscriber connected", zap.Int("total_clients", len(h.clients)))

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}
			h.log.Debug("subscriber disconnected", zap.Int("total_clients", len(h.clients)))

		case m := <-h.updates:
			if m.Type == MessageTypeMemories {
				h.last = &m
			}
			h.broadcast(m)
		}
	}
}

func (h *Hub) broadcast(m Message) {
	for c := range h.clients {
		select {
		case c.send <- m:
		default:
			h.log.Warn("dropping slow subscriber")
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	metrics.Subscribers.Dec()
}

func (h *Hub) join(ctx context.Context, c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
	case <-ctx.Done():
	}
	return false
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.Origins) == 0 {
		return true
	}
	return slices.Contains(h.Origins, r.Header.Get("Origin"))
}

// ServeHTTP upgrades the request and streams memory sets until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newClient(h, conn)
	if !h.join(r.Context(), c) {
		_ = conn.Close()
		return
	}
	c.start()
}
