// Package transport serves the streaming protocol over WebSocket. Each
// connection runs at most one session at a time; closing the connection
// cancels whatever it is running.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/telemetry"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
	"github.com/mohammad-safakhou/sentiscope/internal/protocol"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
)

// Orchestrator is the session API the transport drives.
type Orchestrator interface {
	Start(ctx context.Context, req session.StartRequest, sink session.Sink) (string, error)
	Cancel(id string) error
}

type Options struct {
	ServerVersion  string
	Capabilities   []string
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	SendBuffer     int
	MaxMessageSize int64
	Logger         *zap.Logger
	Metrics        *telemetry.Metrics
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if len(o.Capabilities) == 0 {
		o.Capabilities = []string{"query", "cancel", "artifacts"}
	}
	return o
}

// Handler upgrades HTTP requests to protocol connections.
type Handler struct {
	orch     Orchestrator
	opts     Options
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHandler(orch Orchestrator, opts Options) *Handler {
	opts = opts.withDefaults()
	h := &Handler{orch: orch, opts: opts, log: opts.Logger.Named("ws")}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	c := &conn{
		h:    h,
		ws:   ws,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
		ids:  map[string]struct{}{},
	}
	if m := h.opts.Metrics; m != nil {
		m.Connections.Inc()
		defer m.Connections.Dec()
	}
	go c.writeLoop()
	c.write(protocol.TypeConnected, "", "", protocol.Connected{
		ServerVersion: h.opts.ServerVersion,
		Capabilities:  h.opts.Capabilities,
	})
	c.readLoop(r.Context())
}

type conn struct {
	h    *Handler
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	running atomic.Int32 // sessions started and not yet terminal

	mu  sync.Mutex
	ids map[string]struct{}
}

// Send implements session.Sink for every session this connection starts.
func (c *conn) Send(ev session.Event) {
	env, err := ev.Envelope()
	if err != nil {
		c.h.log.Error("encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	// free the connection before the client can observe the terminal frame
	if ev.Terminal() {
		c.mu.Lock()
		delete(c.ids, ev.SessionID)
		c.running.Add(-1)
		c.mu.Unlock()
	}
	c.enqueue(env)
}

func (c *conn) write(t protocol.Type, sessionID, messageID string, payload any) {
	env, err := protocol.NewEnvelope(t, sessionID, messageID, payload, time.Now())
	if err != nil {
		c.h.log.Error("encode envelope", zap.String("type", string(t)), zap.Error(err))
		return
	}
	c.enqueue(env)
}

// enqueue hands a frame to the writer, giving up once the connection is gone.
func (c *conn) enqueue(env protocol.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	case <-c.done:
	}
}

func (c *conn) fail(sessionID, messageID string, e protocol.Error) {
	c.write(protocol.TypeError, sessionID, messageID, e)
}

func (c *conn) readLoop(ctx context.Context) {
	defer c.close()
	pong := c.h.opts.PongTimeout
	c.ws.SetReadLimit(c.h.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pong))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pong))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pong))

		in, err := protocol.DecodeInbound(raw)
		if err != nil {
			payload := protocol.ErrorFrom(err)
			if errors.Is(err, protocol.ErrUnknownType) {
				payload = protocol.Error{Code: apperr.CodeBadMessage, Message: err.Error(), Recoverable: true}
			}
			c.fail("", in.MessageID, payload)
			continue
		}
		switch in.Type {
		case protocol.TypeQuery:
			c.startQuery(ctx, in)
		case protocol.TypeCancel:
			c.cancel(in)
		}
	}
}

func (c *conn) startQuery(ctx context.Context, in protocol.Inbound) {
	if c.running.Load() > 0 {
		// the running session keeps its stream; the rejection is tied to the message only
		busy := &session.BusyError{SessionID: c.current()}
		c.fail("", in.MessageID, protocol.ErrorFrom(busy))
		return
	}
	c.running.Add(1)
	id, err := c.h.orch.Start(ctx, session.StartRequest{
		Query:     in.Query.Query,
		SessionID: in.Query.SessionID,
		MessageID: in.MessageID,
		Artifacts: in.Query.Artifacts,
	}, c)
	if err != nil {
		c.running.Add(-1)
		c.fail(in.Query.SessionID, in.MessageID, protocol.ErrorFrom(err))
		return
	}
	c.mu.Lock()
	if c.running.Load() > 0 {
		c.ids[id] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *conn) cancel(in protocol.Inbound) {
	id := in.Cancel.SessionID
	if err := c.h.orch.Cancel(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.fail(id, in.MessageID, protocol.Error{Code: apperr.CodeNotFound, Message: err.Error(), Recoverable: true})
			return
		}
		c.fail(id, in.MessageID, protocol.ErrorFrom(err))
	}
}

func (c *conn) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.ids {
		return id
	}
	return ""
}

// close cancels the connection's sessions and stops the writer.
func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		c.mu.Lock()
		ids := make([]string, 0, len(c.ids))
		for id := range c.ids {
			ids = append(ids, id)
		}
		c.mu.Unlock()
		for _, id := range ids {
			if err := c.h.orch.Cancel(id); err == nil {
				c.h.log.Info("session cancelled on disconnect", zap.String("session_id", id))
			}
		}
	})
}

func (c *conn) writeLoop() {
	ping := time.NewTicker(c.h.opts.PongTimeout * 9 / 10)
	defer ping.Stop()
	for {
		select {
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.h.log.Debug("websocket write", zap.Error(err))
				c.close()
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
