package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"k8s.io/utils/ptr"

	"github.com/autopeer-io/roverhub/internal/hub/model"
	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/internal/pkg/metrics"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

const (
	replyInvalidMessage = "Invalid message format"
	replyProcessing     = "Error processing message"
)

var (
	errNotRover      = errors.New("socket is not registered as a rover")
	errRoverRequired = errors.New("roverId is required")
	errUnknownRover  = errors.New("unknown rover")
	errEmptyCommand  = errors.New("command must not be empty")
	errEmptyIdentity = errors.New("rover identifier must not be empty")
	errUnknownStatus = errors.New("unknown rover status")
)

func (h *Hub) admit(socketID string, socket Socket) {
	if _, exists := h.registry.get(socketID); exists {
		// Socket ids are never reused while referenced; refuse a colliding one.
		h.log.Error(fmt.Errorf("duplicate socket id"), "Refusing socket", "socketID", socketID)
		socket.Close()
		return
	}

	h.registry.add(newConnection(socketID, socket))
	h.updateConnectionGauge()
	h.log.Info("Socket admitted", "socketID", socketID, "remote", socket.RemoteAddr())

	h.router.toSocket(socketID, protocol.MustNew(protocol.TypeConnect, 0, protocol.ConnectAck{
		Success:  true,
		SocketID: socketID,
	}))
}

func (h *Hub) handleFrame(socketID string, frame []byte) {
	conn, ok := h.registry.get(socketID)
	if !ok {
		h.log.Debug("Dropping frame from unknown socket", "socketID", socketID)
		return
	}

	env, err := protocol.Decode(frame, h.cfg.Clock())
	if err != nil {
		metrics.MessagesReceivedTotal.WithLabelValues("invalid").Inc()
		h.log.Debug("Invalid frame", "socketID", socketID, "error", err.Error())
		h.replyError(socketID, err)
		return
	}
	metrics.MessagesReceivedTotal.WithLabelValues(string(env.Type)).Inc()

	ctx, cancel := h.storeContext()
	defer cancel()

	if err := h.dispatchEnvelope(ctx, conn, env); err != nil {
		h.log.Error(err, "Failed to handle message", "socketID", socketID, "type", env.Type)
		h.replyError(socketID, err)
	}
}

func (h *Hub) dispatchEnvelope(ctx context.Context, conn *Connection, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeConnect:
		return h.handleConnect(ctx, conn, env)
	case protocol.TypeCommand:
		return h.handleCommand(ctx, conn, env)
	case protocol.TypeRequestMap:
		return h.handleRequestMap(ctx, conn, env)
	case protocol.TypeDisconnect:
		h.log.Debug("Ignoring DISCONNECT from socket, closing the socket ends the session", "socketID", conn.socketID)
		return nil
	}

	// The remaining types originate from rovers.
	b, ok := conn.Rover()
	if !ok {
		return fmt.Errorf("%s: %w", env.Type, errNotRover)
	}

	switch env.Type {
	case protocol.TypeTelemetry:
		return h.ingestor.telemetry(ctx, b.RoverID, env.Payload)
	case protocol.TypeStatusUpdate:
		var report protocol.StatusReport
		if err := env.DecodePayload(&report); err != nil {
			return err
		}
		status := model.RoverStatus(report.Status)
		if !status.Valid() {
			return fmt.Errorf("%w: %w %q", protocol.ErrInvalidMessage, errUnknownStatus, report.Status)
		}
		return h.ingestor.status(ctx, b.RoverID, status)
	case protocol.TypeError:
		return h.ingestor.roverError(ctx, b.RoverID, env.Payload)
	case protocol.TypeCommandResponse:
		var res protocol.CommandResult
		if err := env.DecodePayload(&res); err != nil {
			return err
		}
		return h.correlator.resolve(ctx, b.RoverID, res)
	case protocol.TypeMapData:
		return h.relayMap(b, env)
	}
	return fmt.Errorf("%w: unhandled type %s", protocol.ErrInvalidMessage, env.Type)
}

// handleConnect classifies a socket announcing itself as a rover. Any other
// CONNECT payload leaves the socket a frontend.
func (h *Hub) handleConnect(ctx context.Context, conn *Connection, env protocol.Envelope) error {
	var req protocol.ConnectRequest
	if err := env.DecodePayload(&req); err != nil {
		return err
	}
	if req.Type != protocol.RoleRover {
		h.log.Debug("CONNECT without rover role, socket stays a frontend", "socketID", conn.socketID, "role", req.Type)
		return nil
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return fmt.Errorf("%w: %w", protocol.ErrInvalidMessage, errEmptyIdentity)
	}
	if conn.Role() == RoleRover {
		return ErrAlreadyClassified
	}
	return h.classifyAsRover(ctx, conn, identifier)
}

func (h *Hub) classifyAsRover(ctx context.Context, conn *Connection, identifier string) error {
	now := h.cfg.Clock()

	rover, err := h.cfg.Store.GetRoverByIdentifier(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		rover, err = h.cfg.Store.CreateRover(ctx, model.NewRover(identifier, conn.socket.RemoteAddr()))
		if err == nil {
			h.log.Info("Registered new rover", "roverID", rover.ID, "identifier", identifier)
		}
	}
	if err != nil {
		return fmt.Errorf("look up rover %q: %w", identifier, err)
	}

	rover, err = h.cfg.Store.UpdateRover(ctx, rover.ID, model.RoverUpdate{
		Connected: ptr.To(true),
		Status:    ptr.To(model.RoverStatusIdle),
		LastSeen:  &now,
	})
	if err != nil {
		return fmt.Errorf("mark rover %d connected: %w", rover.ID, err)
	}

	if err := h.bindSession(ctx, rover.ID, conn.socketID); err != nil {
		return err
	}

	binding := RoverBinding{RoverID: rover.ID, Identifier: identifier}
	if err := conn.classify(ctx, binding); err != nil {
		return err
	}
	if old := h.registry.bindRover(conn); old != nil {
		h.log.Info("Rover reconnected, closing superseded socket",
			"roverID", rover.ID, "socketID", conn.socketID, "superseded", old.socketID)
		old.close(ctx)
	}
	h.updateConnectionGauge()
	h.log.Info("Socket classified as rover", "socketID", conn.socketID, "roverID", rover.ID, "identifier", identifier)

	h.router.toFrontends(protocol.MustNew(protocol.TypeStatusUpdate, rover.ID, protocol.StatusBroadcast{
		Status:    string(model.RoverStatusIdle),
		Connected: ptr.To(true),
		Rover:     rover,
	}))
	h.router.toSocket(conn.socketID, protocol.MustNew(protocol.TypeConnect, rover.ID, protocol.ConnectAck{
		Success:         true,
		SocketID:        conn.socketID,
		RoverID:         rover.ID,
		RoverIdentifier: identifier,
	}))
	return nil
}

// bindSession upserts the rover's client session onto socketID.
func (h *Hub) bindSession(ctx context.Context, roverID int64, socketID string) error {
	now := h.cfg.Clock()

	sess, err := h.cfg.Store.GetClientSessionByRoverID(ctx, roverID)
	switch {
	case err == nil:
		_, err = h.cfg.Store.UpdateClientSession(ctx, sess.ID, model.SessionUpdate{
			SocketID:  &socketID,
			Connected: ptr.To(true),
			LastPing:  &now,
		})
	case errors.Is(err, store.ErrNotFound):
		_, err = h.cfg.Store.CreateClientSession(ctx, &model.ClientSession{
			RoverID:   roverID,
			SocketID:  socketID,
			Connected: true,
			LastPing:  now,
		})
	}
	if err != nil {
		return fmt.Errorf("bind session of rover %d: %w", roverID, err)
	}
	return nil
}

// remove drops a closed socket. A rover socket that is still the live
// binding of its rover marks the rover disconnected and is announced once.
func (h *Hub) remove(base context.Context, socketID string) {
	conn := h.registry.remove(socketID)
	if conn == nil {
		return
	}
	conn.close(base)
	h.updateConnectionGauge()

	b, ok := conn.Rover()
	if !ok {
		h.log.Info("Socket closed", "socketID", socketID)
		return
	}
	h.log.Info("Rover socket closed", "socketID", socketID, "roverID", b.RoverID)

	ctx, cancel := context.WithTimeout(base, h.cfg.StoreTimeout)
	defer cancel()

	now := h.cfg.Clock()
	if _, err := h.cfg.Store.UpdateRover(ctx, b.RoverID, model.RoverUpdate{
		Connected: ptr.To(false),
		Status:    ptr.To(model.RoverStatusDisconnected),
		LastSeen:  &now,
	}); err != nil {
		h.log.Error(err, "Failed to mark rover disconnected", "roverID", b.RoverID)
	}

	if sess, err := h.cfg.Store.GetClientSessionBySocketID(ctx, socketID); err == nil {
		if _, err := h.cfg.Store.UpdateClientSession(ctx, sess.ID, model.SessionUpdate{Connected: ptr.To(false)}); err != nil {
			h.log.Error(err, "Failed to close client session", "roverID", b.RoverID, "socketID", socketID)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.Error(err, "Failed to look up client session", "roverID", b.RoverID, "socketID", socketID)
	}

	env := protocol.MustNew(protocol.TypeDisconnect, b.RoverID, protocol.DisconnectNotice{RoverIdentifier: b.Identifier})
	env.RoverIdentifier = b.Identifier
	h.router.toFrontends(env)
}

// handleCommand dispatches a frontend's command and answers the caller with
// the command id and whether the rover was reached.
func (h *Hub) handleCommand(ctx context.Context, conn *Connection, env protocol.Envelope) error {
	roverID, err := h.targetRover(ctx, env)
	if err != nil {
		return err
	}

	var req protocol.CommandRequest
	if err := env.DecodePayload(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Command) == "" {
		return fmt.Errorf("%w: %w", protocol.ErrInvalidMessage, errEmptyCommand)
	}

	res, err := h.correlator.dispatch(ctx, roverID, req.Command)
	if err != nil {
		return err
	}

	reply := protocol.CommandResult{CommandID: protocol.ID(res.CommandID), Status: string(model.CommandStatusPending)}
	if !res.Delivered {
		reply.Status = string(model.CommandStatusFailed)
		reply.Response = model.ResponseRoverNotConnected
	}
	h.router.toSocket(conn.socketID, protocol.MustNew(protocol.TypeCommandResponse, roverID, reply))
	return nil
}

// handleRequestMap forwards a map request to the target rover.
func (h *Hub) handleRequestMap(ctx context.Context, conn *Connection, env protocol.Envelope) error {
	roverID, err := h.targetRover(ctx, env)
	if err != nil {
		return err
	}

	fwd := protocol.Envelope{Type: protocol.TypeRequestMap, RoverID: protocol.NumericRover(roverID), Payload: env.Payload}
	if h.router.toRover(roverID, fwd) {
		return nil
	}
	h.router.toSocket(conn.socketID, protocol.MustNew(protocol.TypeError, roverID, protocol.ErrorReply{
		Message: model.ResponseRoverNotConnected,
	}))
	return nil
}

// relayMap broadcasts a rover's map snapshot and archives it in the background.
func (h *Hub) relayMap(b RoverBinding, env protocol.Envelope) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: MAP_DATA payload is required", protocol.ErrInvalidMessage)
	}

	h.router.toFrontends(protocol.Envelope{Type: protocol.TypeMapData, RoverID: protocol.NumericRover(b.RoverID), Payload: env.Payload})

	if h.cfg.Archive == nil {
		return nil
	}
	at := h.cfg.Clock()
	payload := env.Payload
	base := h.ctx
	go func() {
		ctx, cancel := context.WithTimeout(base, h.cfg.StoreTimeout)
		defer cancel()
		key, err := h.cfg.Archive.SaveMap(ctx, b.RoverID, at, payload)
		if err != nil {
			h.log.Error(err, "Failed to archive map", "roverID", b.RoverID)
			return
		}
		h.log.Debug("Map archived", "roverID", b.RoverID, "key", key)
	}()
	return nil
}

// targetRover normalizes the envelope's roverId to a canonical id. Numeric
// ids are trusted as is; identifiers are resolved through the store.
func (h *Hub) targetRover(ctx context.Context, env protocol.Envelope) (int64, error) {
	ref := env.RoverID
	if ref.Resolved() {
		return ref.ID, nil
	}

	identifier := env.RoverIdentifier
	if ref != nil && ref.Identifier != "" {
		identifier = ref.Identifier
	}
	if identifier == "" {
		return 0, fmt.Errorf("%w: %w", protocol.ErrInvalidMessage, errRoverRequired)
	}

	rover, err := h.cfg.Store.GetRoverByIdentifier(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("%w %q", errUnknownRover, identifier)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve rover %q: %w", identifier, err)
	}
	return rover.ID, nil
}

func (h *Hub) replyError(socketID string, err error) {
	reply := protocol.ErrorReply{Message: replyProcessing, Details: err.Error()}
	if errors.Is(err, protocol.ErrInvalidMessage) {
		reply.Message = replyInvalidMessage
	}
	h.router.toSocket(socketID, protocol.MustNew(protocol.TypeError, 0, reply))
}
