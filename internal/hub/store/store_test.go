package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/autopeer-io/roverhub/internal/hub/model"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "hub.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestRoverLifecycle(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetRoverByIdentifier(ctx, "R-001")
		require.ErrorIs(t, err, ErrNotFound)

		created, err := s.CreateRover(ctx, model.NewRover("R-001", "10.0.0.2"))
		require.NoError(t, err)
		assert.Positive(t, created.ID)
		assert.Equal(t, "Rover R-001", created.Name)
		assert.Equal(t, model.RoverStatusDisconnected, created.Status)
		assert.Equal(t, 100, created.BatteryLevel)

		_, err = s.CreateRover(ctx, model.NewRover("R-001", ""))
		assert.Error(t, err, "identifiers are unique")

		seen := time.Now().Truncate(time.Millisecond)
		updated, err := s.UpdateRover(ctx, created.ID, model.RoverUpdate{
			Status:    ptr.To(model.RoverStatusIdle),
			Connected: ptr.To(true),
			LastSeen:  &seen,
		})
		require.NoError(t, err)
		assert.Equal(t, model.RoverStatusIdle, updated.Status)
		assert.True(t, updated.Connected)
		assert.Equal(t, 100, updated.BatteryLevel, "absent fields are untouched")
		assert.True(t, updated.LastSeen.Equal(seen))

		byIdent, err := s.GetRoverByIdentifier(ctx, "R-001")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byIdent.ID)

		_, err = s.UpdateRover(ctx, 999, model.RoverUpdate{Connected: ptr.To(false)})
		require.ErrorIs(t, err, ErrNotFound)

		_, err = s.CreateRover(ctx, model.NewRover("R-002", ""))
		require.NoError(t, err)
		rovers, err := s.ListRovers(ctx)
		require.NoError(t, err)
		require.Len(t, rovers, 2)
		assert.Equal(t, "R-001", rovers[0].Identifier)
		assert.Equal(t, "R-002", rovers[1].Identifier)
	})
}

func TestClientSessions(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rover, err := s.CreateRover(ctx, model.NewRover("R-001", ""))
		require.NoError(t, err)

		_, err = s.GetClientSessionByRoverID(ctx, rover.ID)
		require.ErrorIs(t, err, ErrNotFound)

		sess, err := s.CreateClientSession(ctx, &model.ClientSession{RoverID: rover.ID, SocketID: "sock-a", Connected: true})
		require.NoError(t, err)

		_, err = s.UpdateClientSession(ctx, sess.ID, model.SessionUpdate{SocketID: ptr.To("sock-b")})
		require.NoError(t, err)

		_, err = s.GetClientSessionBySocketID(ctx, "sock-a")
		require.ErrorIs(t, err, ErrNotFound)

		got, err := s.GetClientSessionBySocketID(ctx, "sock-b")
		require.NoError(t, err)
		assert.Equal(t, rover.ID, got.RoverID)
		assert.True(t, got.Connected)

		got, err = s.UpdateClientSession(ctx, sess.ID, model.SessionUpdate{Connected: ptr.To(false)})
		require.NoError(t, err)
		assert.False(t, got.Connected)
		assert.Equal(t, "sock-b", got.SocketID)
	})
}

func TestResolveCommandFirstWins(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		cmd, err := s.CreateCommand(ctx, &model.Command{RoverID: 1, Command: "move forward 1", Status: model.CommandStatusPending})
		require.NoError(t, err)

		got, applied, err := s.ResolveCommand(ctx, cmd.ID, model.CommandStatusSuccess, "Moving forward 1 units")
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, model.CommandStatusSuccess, got.Status)

		got, applied, err = s.ResolveCommand(ctx, cmd.ID, model.CommandStatusFailed, "late")
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, model.CommandStatusSuccess, got.Status)
		assert.Equal(t, "Moving forward 1 units", got.Response)

		_, _, err = s.ResolveCommand(ctx, 999, model.CommandStatusSuccess, "")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestResolveCommandConcurrent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		cmd, err := s.CreateCommand(ctx, &model.Command{RoverID: 1, Command: "stop", Status: model.CommandStatusPending})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			applied atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := s.ResolveCommand(ctx, cmd.ID, model.CommandStatusSuccess, "done")
				if err == nil && ok {
					applied.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), applied.Load())
	})
}

func TestListCommandsNewestFirst(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now()
		for i, text := range []string{"a", "b", "c"} {
			_, err := s.CreateCommand(ctx, &model.Command{
				RoverID: 1, Command: text, Status: model.CommandStatusPending,
				Timestamp: base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}
		_, err := s.CreateCommand(ctx, &model.Command{RoverID: 2, Command: "other", Status: model.CommandStatusPending})
		require.NoError(t, err)

		cmds, err := s.ListCommands(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, cmds, 2)
		assert.Equal(t, "c", cmds[0].Command)
		assert.Equal(t, "b", cmds[1].Command)
	})
}

func TestTelemetryRoundTrip(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now()

		first, err := model.ParseTelemetry(3, json.RawMessage(`{"batteryLevel":73,"currentPosition":{"x":1}}`), base)
		require.NoError(t, err)
		_, err = s.CreateTelemetry(ctx, first)
		require.NoError(t, err)

		second, err := model.ParseTelemetry(3, json.RawMessage(`{"temperature":21.5}`), base.Add(time.Second))
		require.NoError(t, err)
		_, err = s.CreateTelemetry(ctx, second)
		require.NoError(t, err)

		samples, err := s.ListTelemetry(ctx, 3, 0)
		require.NoError(t, err)
		require.Len(t, samples, 2)

		assert.Equal(t, 21.5, *samples[0].Temperature)
		assert.Nil(t, samples[0].BatteryLevel)

		assert.Equal(t, 73, *samples[1].BatteryLevel)
		assert.Nil(t, samples[1].Temperature)
		assert.JSONEq(t, `{"x":1}`, string(samples[1].CurrentPosition))
	})
}
