package hub

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classified(t *testing.T, id string, roverID int64) *Connection {
	t.Helper()
	c := newConnection(id, &fakeSocket{})
	require.NoError(t, c.classify(context.Background(), RoverBinding{RoverID: roverID, Identifier: fmt.Sprintf("R-%d", roverID)}))
	return c
}

func TestConnectionLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newConnection("a", &fakeSocket{})
	assert.Equal(t, RoleFrontend, c.Role())
	_, ok := c.Rover()
	assert.False(t, ok)

	require.Error(t, c.classify(ctx, RoverBinding{}), "a binding needs a rover id")
	assert.Equal(t, RoleFrontend, c.Role())

	require.NoError(t, c.classify(ctx, RoverBinding{RoverID: 3, Identifier: "R-3"}))
	assert.Equal(t, RoleRover, c.Role())
	b, ok := c.Rover()
	require.True(t, ok)
	assert.Equal(t, int64(3), b.RoverID)

	assert.ErrorIs(t, c.classify(ctx, RoverBinding{RoverID: 4}), ErrAlreadyClassified)
	b, _ = c.Rover()
	assert.Equal(t, int64(3), b.RoverID, "binding is immutable")

	c.close(ctx)
	c.close(ctx)
	assert.Equal(t, roleClosed, c.Role())
	assert.True(t, c.socket.(*fakeSocket).isClosed())
}

func TestRegistryBindRoverLastWins(t *testing.T) {
	r := NewRegistry()
	first := classified(t, "a", 1)
	second := classified(t, "b", 1)
	r.add(first)
	r.add(second)

	assert.Nil(t, r.bindRover(first))
	assert.Same(t, first, r.bindRover(second))

	got, ok := r.rover(1)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Nil(t, r.remove("a"), "superseded entry is already gone")

	assert.Same(t, second, r.remove("b"))
	_, ok = r.rover(1)
	assert.False(t, ok)
}

func TestRegistryFrontendsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.add(newConnection("f1", &fakeSocket{}))
	r.add(newConnection("f2", &fakeSocket{}))
	rover := classified(t, "r1", 9)
	r.add(rover)
	r.bindRover(rover)

	snap := r.frontends()
	require.Len(t, snap, 2)
	r.remove("f1")
	assert.Len(t, snap, 2, "snapshots are not affected by later removals")
	assert.Len(t, r.frontends(), 1)

	info := r.Snapshot()
	require.Len(t, info, 2)
	assert.Equal(t, "f2", info[0].SocketID)
	assert.Equal(t, ConnectionInfo{SocketID: "r1", Role: RoleRover, RoverID: 9, RoverIdentifier: "R-9"}, info[1])
}

// Random connect/classify/close sequences never leave two rover entries
// bound to the same rover, and every rover index points at a live entry.
func TestRegistryInvariantsUnderChurn(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewRegistry()
	ctx := context.Background()
	next := 0

	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || r.Len() == 0:
			next++
			r.add(newConnection(fmt.Sprintf("s%d", next), &fakeSocket{}))
		case op == 1:
			c := pick(rng, r)
			if c.Role() != RoleFrontend {
				continue
			}
			require.NoError(t, c.classify(ctx, RoverBinding{RoverID: int64(rng.Intn(5) + 1)}))
			if old := r.bindRover(c); old != nil {
				old.close(ctx)
			}
		default:
			r.remove(pick(rng, r).socketID)
		}

		perRover := map[int64]int{}
		for id, c := range r.conns {
			require.Equal(t, id, c.socketID)
			if b, ok := c.Rover(); ok {
				perRover[b.RoverID]++
			}
		}
		for roverID, n := range perRover {
			require.Equal(t, 1, n, "rover %d bound %d times", roverID, n)
		}
		for roverID, socketID := range r.rovers {
			c, ok := r.conns[socketID]
			require.True(t, ok)
			b, _ := c.Rover()
			require.Equal(t, roverID, b.RoverID)
		}
	}
}

func pick(rng *rand.Rand, r *Registry) *Connection {
	all := r.Snapshot()
	c, _ := r.get(all[rng.Intn(len(all))].SocketID)
	return c
}
