package hub

import (
	"time"

	"github.com/autopeer-io/roverhub/internal/pkg/metrics"
	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

// Mirror receives a copy of every frontend broadcast. Implementations must
// not block.
type Mirror interface {
	Mirror(env protocol.Envelope)
}

// Router delivers envelopes to one rover, one socket, or every frontend.
// Sends never block and failures are logged, never returned to unrelated callers.
type Router struct {
	registry *Registry
	mirror   Mirror
	now      func() time.Time
	log      log.Logger
}

func newRouter(registry *Registry, mirror Mirror, now func() time.Time, logger log.Logger) *Router {
	return &Router{registry: registry, mirror: mirror, now: now, log: logger}
}

// toRover sends env to the socket bound to roverID and reports whether the
// frame was accepted by an open socket.
func (r *Router) toRover(roverID int64, env protocol.Envelope) bool {
	c, ok := r.registry.rover(roverID)
	if !ok {
		return false
	}
	frame, ok := r.encode(env)
	if !ok {
		return false
	}
	return r.send(c, frame, env.Type)
}

// toFrontends sends env to a snapshot of every frontend connection and
// returns how many accepted it.
func (r *Router) toFrontends(env protocol.Envelope) int {
	env = env.Stamp(r.now())
	frame, ok := r.encode(env)
	if !ok {
		return 0
	}

	sent := 0
	for _, c := range r.registry.frontends() {
		if r.send(c, frame, env.Type) {
			sent++
		}
	}

	if r.mirror != nil {
		r.mirror.Mirror(env)
	}
	return sent
}

// toSocket unicasts env to one connection.
func (r *Router) toSocket(socketID string, env protocol.Envelope) bool {
	c, ok := r.registry.get(socketID)
	if !ok {
		r.log.Debug("Dropping frame for unknown socket", "socketID", socketID, "type", env.Type)
		return false
	}
	frame, ok := r.encode(env)
	if !ok {
		return false
	}
	return r.send(c, frame, env.Type)
}

func (r *Router) encode(env protocol.Envelope) ([]byte, bool) {
	frame, err := env.Encode(r.now())
	if err != nil {
		r.log.Error(err, "Failed to encode frame", "type", env.Type)
		return nil, false
	}
	return frame, true
}

func (r *Router) send(c *Connection, frame []byte, t protocol.MessageType) bool {
	if c.socket.Send(frame) {
		return true
	}
	metrics.DroppedSendsTotal.Inc()
	r.log.Debug("Dropped frame, socket closed or saturated", "socketID", c.socketID, "type", t)
	return false
}
