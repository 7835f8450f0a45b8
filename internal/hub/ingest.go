package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/utils/ptr"

	"github.com/autopeer-io/roverhub/internal/hub/model"
	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

// MapArchive stores map snapshots pushed by rovers.
type MapArchive interface {
	SaveMap(ctx context.Context, roverID int64, at time.Time, data []byte) (string, error)
}

// Ingestor records rover telemetry and status and fans it out to frontends.
type Ingestor struct {
	store  store.Store
	router *Router
	now    func() time.Time
	log    log.Logger
}

func newIngestor(s store.Store, router *Router, now func() time.Time, logger log.Logger) *Ingestor {
	return &Ingestor{store: s, router: router, now: now, log: logger}
}

// telemetry persists one sample and relays the payload as received. Any
// sample refreshes lastSeen; the battery level only when reported.
func (i *Ingestor) telemetry(ctx context.Context, roverID int64, payload json.RawMessage) error {
	var frame protocol.TelemetryFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return fmt.Errorf("%w: telemetry payload: %v", protocol.ErrInvalidMessage, err)
	}

	readings := frame.Readings(payload)
	now := i.now()
	sample, err := model.ParseTelemetry(roverID, readings, now)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	if _, err := i.store.CreateTelemetry(ctx, sample); err != nil {
		return fmt.Errorf("record telemetry: %w", err)
	}

	update := model.RoverUpdate{LastSeen: &now, BatteryLevel: sample.BatteryLevel}
	if _, err := i.store.UpdateRover(ctx, roverID, update); err != nil {
		return fmt.Errorf("update rover %d: %w", roverID, err)
	}

	i.router.toFrontends(protocol.Envelope{Type: protocol.TypeTelemetry, RoverID: protocol.NumericRover(roverID), Payload: readings})
	return nil
}

// status records a reported status and broadcasts the re-read rover record.
func (i *Ingestor) status(ctx context.Context, roverID int64, status model.RoverStatus) error {
	rover, err := i.store.UpdateRover(ctx, roverID, model.RoverUpdate{
		Status:   &status,
		LastSeen: ptr.To(i.now()),
	})
	if err != nil {
		return fmt.Errorf("update rover %d: %w", roverID, err)
	}

	i.router.toFrontends(protocol.MustNew(protocol.TypeStatusUpdate, roverID, protocol.StatusBroadcast{
		Status: string(rover.Status),
		Rover:  rover,
	}))
	return nil
}

// roverError marks the rover as failed and relays its error payload.
func (i *Ingestor) roverError(ctx context.Context, roverID int64, payload json.RawMessage) error {
	if _, err := i.store.UpdateRover(ctx, roverID, model.RoverUpdate{
		Status:   ptr.To(model.RoverStatusError),
		LastSeen: ptr.To(i.now()),
	}); err != nil {
		return fmt.Errorf("update rover %d: %w", roverID, err)
	}

	i.router.toFrontends(protocol.Envelope{Type: protocol.TypeError, RoverID: protocol.NumericRover(roverID), Payload: payload})
	return nil
}
