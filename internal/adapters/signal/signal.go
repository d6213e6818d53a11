// Package signal is the network-facing relay: it owns the websocket
// connections, authenticates joins through the access validator and
// forwards negotiation messages between the participants they target.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/access"
	"github.com/edforge/interview/internal/auth"
	"github.com/edforge/interview/internal/core"
	"github.com/edforge/interview/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller relays signaling frames between authenticated connections.
type Controller struct {
	Registry *core.Registry
	Access   *access.Validator
	Store    access.Store
}

func NewController(reg *core.Registry, v *access.Validator, store access.Store) *Controller {
	return &Controller{Registry: reg, Access: v, Store: store}
}

// connState is the per-connection session: who the connection belongs to
// and which room it currently sits in. It is only touched by the
// connection's own read pump, so no lock is needed.
type connState struct {
	identity auth.Identity
	room     domain.SessionID
}

// WsConn adapts a gorilla websocket to core.SignalConnection with a
// buffered outbound channel. A full buffer surfaces ErrBackpressure
// instead of blocking the sender.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades an already-authenticated request and runs the
// connection's pumps. Identity comes from the bearer middleware; an
// unauthenticated request never reaches this point.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context, id auth.Identity) {
	log.Info().Str("module", "signal").Str("user", string(id.UserID)).Str("role", string(id.Role)).Msg("new signaling connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	st := &connState{identity: id}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		ctl.writePump(ctx, conn)
	}()
	go func() {
		defer cancel()
		ctl.readPump(ctx, st, conn)
	}()
}
