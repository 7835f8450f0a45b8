// Package store defines the persistence port consumed by the hub and its
// in-memory and SQLite implementations.
package store

import (
	"context"
	"errors"

	"github.com/autopeer-io/roverhub/internal/hub/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultListLimit bounds listings when the caller passes no limit.
const DefaultListLimit = 100

// RoverStore persists rover records.
type RoverStore interface {
	GetRover(ctx context.Context, id int64) (*model.Rover, error)
	GetRoverByIdentifier(ctx context.Context, identifier string) (*model.Rover, error)
	CreateRover(ctx context.Context, rover *model.Rover) (*model.Rover, error)
	UpdateRover(ctx context.Context, id int64, update model.RoverUpdate) (*model.Rover, error)
	ListRovers(ctx context.Context) ([]model.Rover, error)
}

// SessionStore persists the socket binding of each rover.
type SessionStore interface {
	GetClientSessionByRoverID(ctx context.Context, roverID int64) (*model.ClientSession, error)
	GetClientSessionBySocketID(ctx context.Context, socketID string) (*model.ClientSession, error)
	CreateClientSession(ctx context.Context, session *model.ClientSession) (*model.ClientSession, error)
	UpdateClientSession(ctx context.Context, id int64, update model.SessionUpdate) (*model.ClientSession, error)
}

// CommandStore persists the command log.
type CommandStore interface {
	CreateCommand(ctx context.Context, cmd *model.Command) (*model.Command, error)
	GetCommand(ctx context.Context, id int64) (*model.Command, error)
	ListCommands(ctx context.Context, roverID int64, limit int) ([]model.Command, error)

	// ResolveCommand moves a pending command to status with response. It is a
	// compare-and-swap: when the command is no longer pending nothing changes
	// and applied is false. The returned command is the stored record.
	ResolveCommand(ctx context.Context, id int64, status model.CommandStatus, response string) (cmd *model.Command, applied bool, err error)
}

// TelemetryStore persists telemetry samples.
type TelemetryStore interface {
	CreateTelemetry(ctx context.Context, sample *model.TelemetrySample) (*model.TelemetrySample, error)
	ListTelemetry(ctx context.Context, roverID int64, limit int) ([]model.TelemetrySample, error)
}

// Store is the full persistence port.
type Store interface {
	RoverStore
	SessionStore
	CommandStore
	TelemetryStore

	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
