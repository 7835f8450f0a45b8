// Package transport adapts gorilla WebSocket connections to hub sockets.
package transport

import (
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autopeer-io/roverhub/internal/hub"
	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/options"
)

// Acceptor is the hub side of the transport.
type Acceptor interface {
	Admit(socket hub.Socket) (string, error)
	Receive(socketID string, frame []byte) error
	Leave(socketID string) error
}

// Handler upgrades HTTP requests and pumps frames between the peer and the hub.
type Handler struct {
	hub      Acceptor
	opts     *options.HubOptions
	upgrader websocket.Upgrader
	log      log.Logger

	wg sync.WaitGroup
}

// NewHandler returns an http.Handler serving hub sockets.
func NewHandler(acceptor Acceptor, opts *options.HubOptions) *Handler {
	h := &Handler{
		hub:  acceptor,
		opts: opts,
		log:  log.WithName("transport"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, r.Header.Get("Origin"))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}

	c := newConn(ws, r.RemoteAddr, h.opts, h.log)
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()

	socketID, err := h.hub.Admit(c)
	if err != nil {
		h.log.Warn("Hub refused socket", "remote", r.RemoteAddr, "error", err.Error())
		c.Close()
		h.wg.Done()
		return
	}

	go func() {
		defer h.wg.Done()
		c.readPump(socketID, h.hub)
	}()
}

// Wait blocks until every pump started by the handler has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Conn is one peer connection. Outbound frames are queued on a buffered
// channel drained by the write pump; a full queue drops the frame.
type Conn struct {
	ws     *websocket.Conn
	remote string
	opts   *options.HubOptions
	log    log.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

var _ hub.Socket = (*Conn)(nil)

func newConn(ws *websocket.Conn, remote string, opts *options.HubOptions, logger log.Logger) *Conn {
	return &Conn{
		ws:     ws,
		remote: remote,
		opts:   opts,
		log:    logger,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues frame for the write pump without blocking.
func (c *Conn) Send(frame []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and tears down the
// connection. The read pump then fails and reports the socket as gone.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

func (c *Conn) RemoteAddr() string { return c.remote }

func (c *Conn) readPump(socketID string, acceptor Acceptor) {
	defer func() {
		c.Close()
		if err := acceptor.Leave(socketID); err != nil {
			c.log.Debug("Leave not delivered", "socketID", socketID, "error", err.Error())
		}
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("Socket read failed", "socketID", socketID, "error", err.Error())
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := acceptor.Receive(socketID, data); err != nil {
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes frames queued before Close so that a final reply is not lost.
func (c *Conn) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
