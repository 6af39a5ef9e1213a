// Package wsstream is the Pinned Stream Gateway (SPEC_FULL.md §4.10, grounded on
// the original's WSConnectionManager and adapted from the teacher's
// internal/proxy bidirectional websocket handler): it pins one idle session
// for the lifetime of a WebSocket connection and dispatches repeated
// execute_js / execute_side / get_page_source messages against it without
// re-contending the Lock Repository between messages.
package wsstream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sideruntime/sidesvc/internal/apperr"
	"github.com/sideruntime/sidesvc/internal/dispatcher"
	"github.com/sideruntime/sidesvc/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades HTTP requests to pinned WebSocket sessions.
type Gateway struct {
	dispatcher *dispatcher.Dispatcher
	streamTTL  time.Duration
	log        logrus.FieldLogger
}

// New builds a Gateway. streamTTL is the lock TTL a pinned connection holds.
// The lock is acquired once at connect and is not renewed, so it lapses
// streamTTL after connect even while the connection stays open; it is
// released on disconnect, with TTL expiry as the backstop if the connection
// dies silently.
func New(d *dispatcher.Dispatcher, streamTTL time.Duration, log logrus.FieldLogger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{dispatcher: d, streamTTL: streamTTL, log: log}
}

// connection is one pinned WebSocket session: a stable session id, the lock
// token guarding it, and the socket itself. Writes are serialized because
// gorilla/websocket connections are not safe for concurrent writers.
type connection struct {
	id        string
	sessionID string
	token     string
	ws        *websocket.Conn
	writeMu   sync.Mutex
}

func (c *connection) send(resp models.StreamResponse) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(resp)
}

// HandleConnection upgrades r, pins an idle session for its lifetime, and
// serves messages until the client disconnects.
func (g *Gateway) HandleConnection(w http.ResponseWriter, r *http.Request) {
	sessionID, err := g.dispatcher.PickIdleSession()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	// Pin on the raw session id so this lock occupies the same keyspace
	// AcquireScoped uses in executeAny/executeOn; a prefixed key would let a
	// one-shot execution grab a session this connection has pinned.
	lockKey := sessionID
	token, _, err := g.dispatcher.Locks.Acquire(lockKey, g.streamTTL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("stream: upgrade failed")
		_ = g.dispatcher.Locks.Release(lockKey, token)
		return
	}

	conn := &connection{
		id:        uuid.New().String(),
		sessionID: sessionID,
		token:     token,
		ws:        ws,
	}
	g.log.WithFields(logrus.Fields{"connection_id": conn.id, "session_id": sessionID}).Info("stream: connected")

	defer func() {
		ws.Close()
		if err := g.dispatcher.Locks.Release(lockKey, conn.token); err != nil {
			g.log.WithError(err).Warn("stream: lock release failed on disconnect")
		}
		g.log.WithFields(logrus.Fields{"connection_id": conn.id, "session_id": sessionID}).Info("stream: disconnected")
	}()

	ctx := r.Context()
	for {
		var msg models.StreamMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.log.WithError(err).Warn("stream: read error")
			}
			return
		}
		resp := g.dispatch(ctx, conn, msg)
		if err := conn.send(resp); err != nil {
			g.log.WithError(err).Warn("stream: write error")
			return
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, conn *connection, msg models.StreamMessage) models.StreamResponse {
	switch msg.Type {
	case "execute_js":
		return g.handleExecuteJS(ctx, conn, msg)
	case "execute_side":
		return g.handleExecuteSide(ctx, conn, msg)
	case "get_page_source":
		return g.handleGetPageSource(ctx, conn)
	default:
		return errorResponse(apperr.New(apperr.CommandFailed, "unsupported message type %q", msg.Type))
	}
}

func errorResponse(err error) models.StreamResponse {
	return models.StreamResponse{Type: "error", Message: err.Error()}
}
