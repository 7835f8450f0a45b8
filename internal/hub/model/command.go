package model

import "time"

// CommandStatus defines the execution status of a command.
type CommandStatus string

const (
	CommandStatusPending CommandStatus = "pending"
	CommandStatusSuccess CommandStatus = "success"
	CommandStatusFailed  CommandStatus = "failed"
	CommandStatusError   CommandStatus = "error"
)

// Valid reports whether s is a status a rover may report.
func (s CommandStatus) Valid() bool {
	switch s {
	case CommandStatusPending, CommandStatusSuccess, CommandStatusFailed, CommandStatusError:
		return true
	}
	return false
}

// Terminal reports whether s resolves a command.
func (s CommandStatus) Terminal() bool {
	return s.Valid() && s != CommandStatusPending
}

// ResponseRoverNotConnected is recorded when dispatch finds no bound rover socket.
const ResponseRoverNotConnected = "Rover not connected"

// Command represents an instruction sent to a rover.
// Once it leaves pending it is immutable.
type Command struct {
	ID        int64         `json:"id"`
	RoverID   int64         `json:"roverId"`
	Command   string        `json:"command"`
	Status    CommandStatus `json:"status"`
	Response  string        `json:"response,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
