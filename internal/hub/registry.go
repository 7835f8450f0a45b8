package hub

import (
	"slices"
	"strings"
)

// Registry tracks every open connection. It is owned by the hub loop and
// is not safe for concurrent use.
type Registry struct {
	conns  map[string]*Connection
	rovers map[int64]string // roverID -> socketID of the current binding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		rovers: make(map[int64]string),
	}
}

func (r *Registry) add(c *Connection) {
	r.conns[c.socketID] = c
}

func (r *Registry) get(socketID string) (*Connection, bool) {
	c, ok := r.conns[socketID]
	return c, ok
}

// bindRover records c as the live socket of its rover. Any previous socket
// bound to the same rover is dropped from the registry and returned so the
// caller can close it.
func (r *Registry) bindRover(c *Connection) (superseded *Connection) {
	b, ok := c.Rover()
	if !ok {
		return nil
	}
	if prev, ok := r.rovers[b.RoverID]; ok && prev != c.socketID {
		superseded = r.conns[prev]
		delete(r.conns, prev)
	}
	r.rovers[b.RoverID] = c.socketID
	return superseded
}

// remove deletes the entry for socketID. It returns nil when the socket is
// unknown, which is the case for connections already superseded.
func (r *Registry) remove(socketID string) *Connection {
	c, ok := r.conns[socketID]
	if !ok {
		return nil
	}
	delete(r.conns, socketID)
	if b, ok := c.Rover(); ok && r.rovers[b.RoverID] == socketID {
		delete(r.rovers, b.RoverID)
	}
	return c
}

// rover returns the connection currently bound to roverID.
func (r *Registry) rover(roverID int64) (*Connection, bool) {
	socketID, ok := r.rovers[roverID]
	if !ok {
		return nil, false
	}
	c, ok := r.conns[socketID]
	return c, ok
}

// frontends returns a snapshot of every frontend connection. Broadcasts
// iterate the snapshot, so registry changes during a send do not affect it.
func (r *Registry) frontends() []*Connection {
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		if c.Role() == RoleFrontend {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) all() []*Connection {
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of open connections.
func (r *Registry) Len() int { return len(r.conns) }

// Snapshot returns a copy of every entry ordered by socket id.
func (r *Registry) Snapshot() []ConnectionInfo {
	out := make([]ConnectionInfo, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c.info())
	}
	slices.SortFunc(out, func(a, b ConnectionInfo) int { return strings.Compare(a.SocketID, b.SocketID) })
	return out
}
