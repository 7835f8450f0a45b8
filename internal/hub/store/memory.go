package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/autopeer-io/roverhub/internal/hub/model"
)

// Memory is a process-local Store. All records are copied on the way in and
// out so callers never share memory with the store.
type Memory struct {
	mu sync.RWMutex

	rovers    map[int64]*model.Rover
	sessions  map[int64]*model.ClientSession
	commands  map[int64]*model.Command
	telemetry map[int64][]model.TelemetrySample

	nextRover, nextSession, nextCommand, nextSample int64
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rovers:    make(map[int64]*model.Rover),
		sessions:  make(map[int64]*model.ClientSession),
		commands:  make(map[int64]*model.Command),
		telemetry: make(map[int64][]model.TelemetrySample),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) GetRover(_ context.Context, id int64) (*model.Rover, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rovers[id]
	if !ok {
		return nil, fmt.Errorf("rover %d: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) GetRoverByIdentifier(_ context.Context, identifier string) (*model.Rover, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rovers {
		if r.Identifier == identifier {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("rover %q: %w", identifier, ErrNotFound)
}

func (m *Memory) CreateRover(_ context.Context, rover *model.Rover) (*model.Rover, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rovers {
		if r.Identifier == rover.Identifier {
			return nil, fmt.Errorf("rover identifier %q already exists", rover.Identifier)
		}
	}

	m.nextRover++
	cp := *rover
	cp.ID = m.nextRover
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.rovers[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *Memory) UpdateRover(_ context.Context, id int64, update model.RoverUpdate) (*model.Rover, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rovers[id]
	if !ok {
		return nil, fmt.Errorf("rover %d: %w", id, ErrNotFound)
	}
	update.Apply(r)
	cp := *r
	return &cp, nil
}

func (m *Memory) ListRovers(_ context.Context) ([]model.Rover, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Rover, 0, len(m.rovers))
	for _, r := range m.rovers {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b model.Rover) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) GetClientSessionByRoverID(_ context.Context, roverID int64) (*model.ClientSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.RoverID == roverID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("session for rover %d: %w", roverID, ErrNotFound)
}

func (m *Memory) GetClientSessionBySocketID(_ context.Context, socketID string) (*model.ClientSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.SocketID == socketID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("session for socket %s: %w", socketID, ErrNotFound)
}

func (m *Memory) CreateClientSession(_ context.Context, session *model.ClientSession) (*model.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.RoverID == session.RoverID {
			return nil, fmt.Errorf("session for rover %d already exists", session.RoverID)
		}
	}

	m.nextSession++
	cp := *session
	cp.ID = m.nextSession
	m.sessions[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *Memory) UpdateClientSession(_ context.Context, id int64, update model.SessionUpdate) (*model.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	update.Apply(s)
	cp := *s
	return &cp, nil
}

func (m *Memory) CreateCommand(_ context.Context, cmd *model.Command) (*model.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextCommand++
	cp := *cmd
	cp.ID = m.nextCommand
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	m.commands[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *Memory) GetCommand(_ context.Context, id int64) (*model.Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.commands[id]
	if !ok {
		return nil, fmt.Errorf("command %d: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ListCommands(_ context.Context, roverID int64, limit int) ([]model.Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Command, 0)
	for _, c := range m.commands {
		if c.RoverID == roverID {
			out = append(out, *c)
		}
	}
	// Newest first; ids break timestamp ties.
	slices.SortFunc(out, func(a, b model.Command) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return truncate(out, normalizeLimit(limit)), nil
}

func (m *Memory) ResolveCommand(_ context.Context, id int64, status model.CommandStatus, response string) (*model.Command, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.commands[id]
	if !ok {
		return nil, false, fmt.Errorf("command %d: %w", id, ErrNotFound)
	}
	if c.Status != model.CommandStatusPending {
		cp := *c
		return &cp, false, nil
	}
	c.Status = status
	c.Response = response
	cp := *c
	return &cp, true, nil
}

func (m *Memory) CreateTelemetry(_ context.Context, sample *model.TelemetrySample) (*model.TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSample++
	cp := *sample
	cp.ID = m.nextSample
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	m.telemetry[cp.RoverID] = append(m.telemetry[cp.RoverID], cp)
	return &cp, nil
}

func (m *Memory) ListTelemetry(_ context.Context, roverID int64, limit int) ([]model.TelemetrySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	samples := m.telemetry[roverID]
	out := make([]model.TelemetrySample, len(samples))
	// Stored in insertion order; listings are newest first.
	for i, s := range samples {
		out[len(samples)-1-i] = s
	}
	return truncate(out, normalizeLimit(limit)), nil
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
