package websocket

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chainfundit/backend/models"
)

const authTimeout = 10 * time.Second

// Conn is the subset of *websocket.Conn the hub uses.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Authorizer accepts the token from the first client message or rejects it.
type Authorizer func(token string) error

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type outbound struct {
	Type  string             `json:"type"`
	Event models.PayoutEvent `json:"event"`
}

var errNotAuthorized = errors.New("first message must be an auth message")

// Hub fans payout status events out to connected admin dashboards.
type Hub struct {
	register   chan Conn
	unregister chan Conn
	broadcast  chan models.PayoutEvent
	clients    map[Conn]struct{}
	authorize  Authorizer
	logger     *zap.Logger
}

func NewHub(authorize Authorizer, logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan Conn),
		unregister: make(chan Conn),
		broadcast:  make(chan models.PayoutEvent, 256),
		clients:    make(map[Conn]struct{}),
		authorize:  authorize,
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
			}
			return
		case conn := <-h.register:
			h.clients[conn] = struct{}{}
			h.logger.Debug("dashboard connected", zap.Int("clients", len(h.clients)))
		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case event := <-h.broadcast:
			msg := outbound{Type: "payout_status", Event: event}
			for conn := range h.clients {
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Warn("dropping dashboard connection", zap.Error(err))
					delete(h.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

// PublishPayoutEvent never blocks the payout pipeline; events are dropped
// when the buffer is full.
func (h *Hub) PublishPayoutEvent(event models.PayoutEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("dashboard event buffer full",
			zap.String("payout_id", event.PayoutID.String()),
			zap.String("status", event.Status))
	}
}

// Serve authenticates conn and keeps it registered until the client goes away.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	if err := h.handshake(conn); err != nil {
		_ = conn.WriteJSON(map[string]string{"type": "error", "message": err.Error()})
		conn.Close()
		return err
	}

	select {
	case h.register <- conn:
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
	_ = conn.WriteJSON(map[string]string{"type": "ready"})

	// The dashboard never sends anything after auth; reading detects disconnects.
	var discard map[string]interface{}
	for {
		if err := conn.ReadJSON(&discard); err != nil {
			break
		}
	}

	select {
	case h.unregister <- conn:
	case <-ctx.Done():
	}
	return nil
}

func (h *Hub) handshake(conn Conn) error {
	type result struct {
		msg authMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		var msg authMessage
		err := conn.ReadJSON(&msg)
		done <- result{msg, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		if r.msg.Type != "auth" || r.msg.Token == "" {
			return errNotAuthorized
		}
		return h.authorize(r.msg.Token)
	case <-time.After(authTimeout):
		return errNotAuthorized
	}
}
