package model

import "time"

// ClientSession records the socket a rover is currently bound to.
// There is at most one session per rover.
type ClientSession struct {
	ID        int64     `json:"id"`
	RoverID   int64     `json:"roverId"`
	SocketID  string    `json:"socketId"`
	Connected bool      `json:"connected"`
	LastPing  time.Time `json:"lastPing"`
}

// SessionUpdate is a partial update of a ClientSession.
type SessionUpdate struct {
	SocketID  *string
	Connected *bool
	LastPing  *time.Time
}

func (u SessionUpdate) Apply(s *ClientSession) {
	if u.SocketID != nil {
		s.SocketID = *u.SocketID
	}
	if u.Connected != nil {
		s.Connected = *u.Connected
	}
	if u.LastPing != nil {
		s.LastPing = *u.LastPing
	}
}
