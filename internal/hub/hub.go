// Package hub routes messages between rover and frontend sockets.
//
// All registry and correlation state is owned by a single event loop: one
// socket event (admit, frame, close) or API call is handled to completion
// before the next is dequeued, which preserves per-socket ordering without
// locks.
package hub

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/internal/pkg/metrics"
	"github.com/autopeer-io/roverhub/pkg/log"
)

// ErrHubClosed is returned when work is submitted after the loop stopped.
var ErrHubClosed = errors.New("hub is closed")

const (
	defaultEventBuffer  = 1024
	defaultStoreTimeout = 5 * time.Second
)

// Config holds the collaborators of a Hub.
type Config struct {
	Store store.Store

	// Mirror and Archive are optional.
	Mirror  Mirror
	Archive MapArchive

	EventBuffer  int
	StoreTimeout time.Duration

	Clock       func() time.Time
	NewSocketID func() string
	Logger      log.Logger
}

type eventKind string

const (
	eventAdmit   eventKind = "admit"
	eventFrame   eventKind = "frame"
	eventLeave   eventKind = "leave"
	eventRequest eventKind = "request"
)

type event struct {
	kind     eventKind
	socketID string
	socket   Socket
	frame    []byte

	call func(ctx context.Context)
	done chan struct{}
}

// Hub is a single-process rover/frontend relay. Construct one per server.
type Hub struct {
	cfg Config

	registry   *Registry
	router     *Router
	correlator *Correlator
	ingestor   *Ingestor

	events  chan event
	done    chan struct{}
	running atomic.Bool

	// ctx is the Run context; background tasks started by handlers derive from it.
	ctx context.Context

	log log.Logger
}

// New creates a hub. Call Run to start processing.
func New(cfg Config) *Hub {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewSocketID == nil {
		cfg.NewSocketID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = log.WithName("hub")
	}

	h := &Hub{
		cfg:      cfg,
		registry: NewRegistry(),
		events:   make(chan event, cfg.EventBuffer),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		log:      cfg.Logger,
	}
	h.router = newRouter(h.registry, cfg.Mirror, cfg.Clock, cfg.Logger.WithName("router"))
	h.correlator = newCorrelator(cfg.Store, h.router, cfg.Clock, cfg.Logger.WithName("correlator"))
	h.ingestor = newIngestor(cfg.Store, h.router, cfg.Clock, cfg.Logger.WithName("ingestor"))
	return h
}

// Run processes events until ctx is cancelled, then removes every socket as
// if it had closed: rovers are marked disconnected before the loop exits.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return fmt.Errorf("hub is already running")
	}
	h.ctx = ctx
	h.log.Info("Hub loop started")

	defer func() {
		h.drain()
		close(h.done)
		h.running.Store(false)
		h.log.Info("Hub loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-h.events:
			h.handleSafely(ev)
		}
	}
}

// drain removes every registered socket after ctx is gone. Rovers go first
// so frontends still receive their DISCONNECT.
func (h *Hub) drain() {
	base := context.Background()
	var frontends []string
	for _, c := range h.registry.all() {
		if c.Role() == RoleRover {
			h.remove(base, c.SocketID())
			continue
		}
		frontends = append(frontends, c.SocketID())
	}
	for _, id := range frontends {
		h.remove(base, id)
	}
}

// Ready reports whether the loop is accepting events.
func (h *Hub) Ready() bool {
	return h.running.Load()
}

// handleSafely runs one event to completion. A panicking handler is logged
// and the loop moves on.
func (h *Hub) handleSafely(ev event) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.log.Error(fmt.Errorf("panic: %v", r), "Hub event handler panicked",
				"event", string(ev.kind), "socketID", ev.socketID, "stack", string(debug.Stack()))
		}
		if ev.done != nil {
			close(ev.done)
		}
		metrics.EventDuration.WithLabelValues(string(ev.kind)).Observe(time.Since(start).Seconds())
	}()

	switch ev.kind {
	case eventAdmit:
		h.admit(ev.socketID, ev.socket)
	case eventFrame:
		h.handleFrame(ev.socketID, ev.frame)
	case eventLeave:
		h.remove(h.ctx, ev.socketID)
	case eventRequest:
		ev.call(h.ctx)
	}
}

// storeContext bounds the store calls of one handler.
func (h *Hub) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, h.cfg.StoreTimeout)
}

func (h *Hub) submit(ctx context.Context, ev event) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Admit registers a new socket and returns its id. The socket receives a
// CONNECT acknowledgment once the loop has recorded it.
func (h *Hub) Admit(socket Socket) (string, error) {
	socketID := h.cfg.NewSocketID()
	if err := h.submit(context.Background(), event{kind: eventAdmit, socketID: socketID, socket: socket}); err != nil {
		return "", err
	}
	return socketID, nil
}

// Receive queues one inbound frame from socketID. Frames of one socket are
// handled in the order Receive is called.
func (h *Hub) Receive(socketID string, frame []byte) error {
	return h.submit(context.Background(), event{kind: eventFrame, socketID: socketID, frame: frame})
}

// Leave queues the removal of a closed socket.
func (h *Hub) Leave(socketID string) error {
	return h.submit(context.Background(), event{kind: eventLeave, socketID: socketID})
}

// do runs fn on the loop and waits for it to finish.
func (h *Hub) do(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	if err := h.submit(ctx, event{kind: eventRequest, call: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendCommand dispatches a command to a rover on behalf of a non-socket
// caller. The command is recorded even when the rover is not connected.
func (h *Hub) SendCommand(ctx context.Context, roverID int64, command string) (DispatchResult, error) {
	var (
		res DispatchResult
		err error
	)
	callErr := h.do(ctx, func(context.Context) {
		sctx, cancel := h.storeContext()
		defer cancel()
		res, err = h.correlator.dispatch(sctx, roverID, command)
	})
	if callErr != nil {
		return DispatchResult{}, callErr
	}
	return res, err
}

// Connections returns a snapshot of the registry.
func (h *Hub) Connections(ctx context.Context) ([]ConnectionInfo, error) {
	var out []ConnectionInfo
	if err := h.do(ctx, func(context.Context) {
		out = h.registry.Snapshot()
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Hub) updateConnectionGauge() {
	var frontends, rovers int
	for _, c := range h.registry.all() {
		switch c.Role() {
		case RoleFrontend:
			frontends++
		case RoleRover:
			rovers++
		}
	}
	metrics.Connections.WithLabelValues(string(RoleFrontend)).Set(float64(frontends))
	metrics.Connections.WithLabelValues(string(RoleRover)).Set(float64(rovers))
}
