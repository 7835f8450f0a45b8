package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/roverhub/internal/hub/model"
	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/internal/pkg/metrics"
	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

// DispatchResult is what a caller learns about a dispatched command.
type DispatchResult struct {
	CommandID int64 `json:"commandId"`
	Delivered bool  `json:"delivered"`
}

// Correlator issues commands to rovers and matches their responses back.
// A command is recorded pending before delivery is attempted, delivery is
// attempted exactly once, and only the first resolution is accepted.
type Correlator struct {
	commands store.CommandStore
	router   *Router
	now      func() time.Time
	log      log.Logger
}

func newCorrelator(commands store.CommandStore, router *Router, now func() time.Time, logger log.Logger) *Correlator {
	return &Correlator{commands: commands, router: router, now: now, log: logger}
}

func (c *Correlator) dispatch(ctx context.Context, roverID int64, text string) (DispatchResult, error) {
	cmd, err := c.commands.CreateCommand(ctx, &model.Command{
		RoverID:   roverID,
		Command:   text,
		Status:    model.CommandStatusPending,
		Timestamp: c.now(),
	})
	if err != nil {
		metrics.CommandsDispatchedTotal.WithLabelValues("error").Inc()
		return DispatchResult{}, fmt.Errorf("record command: %w", err)
	}

	env := protocol.MustNew(protocol.TypeCommand, roverID, protocol.CommandDispatch{Command: text, CommandID: cmd.ID})
	if c.router.toRover(roverID, env) {
		metrics.CommandsDispatchedTotal.WithLabelValues("delivered").Inc()
		c.log.Info("Command sent", "commandID", cmd.ID, "roverID", roverID, "command", text)
		return DispatchResult{CommandID: cmd.ID, Delivered: true}, nil
	}

	metrics.CommandsDispatchedTotal.WithLabelValues("not_connected").Inc()
	if _, _, err := c.commands.ResolveCommand(ctx, cmd.ID, model.CommandStatusFailed, model.ResponseRoverNotConnected); err != nil {
		c.log.Error(err, "Failed to mark undelivered command", "commandID", cmd.ID, "roverID", roverID)
	}
	c.log.Info("Command not delivered, rover not connected", "commandID", cmd.ID, "roverID", roverID)
	return DispatchResult{CommandID: cmd.ID}, nil
}

// resolve applies a rover's response. Invalid, progress, duplicate and
// unknown responses are logged and dropped.
func (c *Correlator) resolve(ctx context.Context, roverID int64, res protocol.CommandResult) error {
	id := int64(res.CommandID)
	status := model.CommandStatus(res.Status)

	switch {
	case id <= 0:
		c.log.Warn("Dropping command response without commandId", "roverID", roverID)
		return nil
	case !status.Valid():
		c.log.Warn("Dropping command response with unknown status", "roverID", roverID, "commandID", id, "status", res.Status)
		return nil
	case !status.Terminal():
		c.log.Debug("Ignoring progress report", "roverID", roverID, "commandID", id)
		return nil
	}

	cmd, applied, err := c.commands.ResolveCommand(ctx, id, status, res.Response)
	if errors.Is(err, store.ErrNotFound) {
		metrics.DuplicateResponsesTotal.Inc()
		c.log.Debug("Ignoring response for unknown command", "roverID", roverID, "commandID", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve command %d: %w", id, err)
	}
	if !applied {
		metrics.DuplicateResponsesTotal.Inc()
		c.log.Debug("Ignoring response for resolved command", "roverID", roverID, "commandID", id, "status", cmd.Status)
		return nil
	}
	if cmd.RoverID != roverID {
		c.log.Warn("Command resolved by a different rover", "commandID", id, "target", cmd.RoverID, "sender", roverID)
	}

	metrics.CommandsResolvedTotal.WithLabelValues(string(cmd.Status)).Inc()
	c.router.toFrontends(protocol.MustNew(protocol.TypeCommandResponse, cmd.RoverID, protocol.CommandResult{
		CommandID: protocol.ID(cmd.ID),
		Status:    string(cmd.Status),
		Response:  cmd.Response,
	}))
	return nil
}
