package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/roverhub/internal/pkg/util/fsm"
)

// Socket is the transport side of a connection.
type Socket interface {
	// Send queues one frame without blocking. It reports false when the
	// socket is closed or its buffer is full; the frame is then dropped.
	Send(frame []byte) bool

	// Close tears down the transport. It is safe to call more than once.
	Close()

	// RemoteAddr is the peer address recorded for newly created rovers.
	RemoteAddr() string
}

// Role is the classification of a connection.
type Role string

const (
	RoleFrontend Role = "frontend"
	RoleRover    Role = "rover"
	roleClosed   Role = "closed"
)

const (
	eventClassify = "classify"
	eventClose    = "close"
)

// ErrAlreadyClassified is returned when a rover socket announces itself again.
var ErrAlreadyClassified = errors.New("socket is already classified as a rover")

// RoverBinding is the identity attached to a rover connection. It is set
// exactly once.
type RoverBinding struct {
	RoverID    int64
	Identifier string
}

// Connection is one admitted socket. It starts as a frontend and may be
// upgraded once to a rover; the lifecycle is enforced by a state machine.
type Connection struct {
	socketID string
	socket   Socket
	state    *fsm.FSM
	binding  RoverBinding
}

func newConnection(socketID string, socket Socket) *Connection {
	c := &Connection{socketID: socketID, socket: socket}

	events := fsm.Events{
		{Name: eventClassify, Src: []string{string(RoleFrontend)}, Dst: string(RoleRover)},
		{Name: eventClose, Src: []string{string(RoleFrontend), string(RoleRover), string(roleClosed)}, Dst: string(roleClosed)},
	}
	callbacks := fsm.Callbacks{
		"before_" + eventClassify:    c.guardBinding,
		"enter_" + string(RoleRover): fsmutil.WrapEvent(c.bind),
	}
	c.state = fsm.NewFSM(string(RoleFrontend), events, callbacks)
	return c
}

// guardBinding cancels a classification that carries no usable rover id.
func (c *Connection) guardBinding(_ context.Context, e *fsm.Event) {
	if len(e.Args) != 1 {
		e.Cancel(fmt.Errorf("classify expects a rover binding"))
		return
	}
	if b, ok := e.Args[0].(RoverBinding); !ok || b.RoverID <= 0 {
		e.Cancel(fmt.Errorf("classify expects a rover binding with an id"))
	}
}

func (c *Connection) bind(_ context.Context, e *fsm.Event) error {
	b, ok := e.Args[0].(RoverBinding)
	if !ok {
		return fmt.Errorf("unexpected classify argument %T", e.Args[0])
	}
	c.binding = b
	return nil
}

// SocketID returns the connection's unique token.
func (c *Connection) SocketID() string { return c.socketID }

// Role returns the current classification.
func (c *Connection) Role() Role { return Role(c.state.Current()) }

// Rover returns the rover binding, if the connection is a rover.
func (c *Connection) Rover() (RoverBinding, bool) {
	if c.binding.RoverID == 0 {
		return RoverBinding{}, false
	}
	return c.binding, true
}

func (c *Connection) classify(ctx context.Context, b RoverBinding) error {
	if c.Role() == RoleRover {
		return ErrAlreadyClassified
	}
	if err := c.state.Event(ctx, eventClassify, b); err != nil {
		return fmt.Errorf("classify socket %s: %w", c.socketID, err)
	}
	return nil
}

func (c *Connection) close(ctx context.Context) {
	_ = fsmutil.Fire(ctx, c.state, eventClose)
	c.socket.Close()
}

// ConnectionInfo is a read-only view of a registry entry.
type ConnectionInfo struct {
	SocketID        string `json:"socketId"`
	Role            Role   `json:"role"`
	RoverID         int64  `json:"roverId,omitempty"`
	RoverIdentifier string `json:"roverIdentifier,omitempty"`
	RemoteAddr      string `json:"remoteAddr,omitempty"`
}

func (c *Connection) info() ConnectionInfo {
	return ConnectionInfo{
		SocketID:        c.socketID,
		Role:            c.Role(),
		RoverID:         c.binding.RoverID,
		RoverIdentifier: c.binding.Identifier,
		RemoteAddr:      c.socket.RemoteAddr(),
	}
}
