package protocol

import "encoding/json"

// RoleRover is the CONNECT payload type announcing a rover.
const RoleRover = "rover"

// ConnectRequest is the payload a socket sends to classify itself.
type ConnectRequest struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// ConnectAck acknowledges admission and, for rovers, classification.
type ConnectAck struct {
	Success         bool   `json:"success"`
	SocketID        string `json:"socketId"`
	RoverID         int64  `json:"roverId,omitempty"`
	RoverIdentifier string `json:"roverIdentifier,omitempty"`
}

// CommandRequest is what a frontend sends to have a command dispatched.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandDispatch is what a rover receives.
type CommandDispatch struct {
	Command   string `json:"command"`
	CommandID int64  `json:"commandId"`
}

// CommandResult is sent by rovers as COMMAND_RESPONSE and re-broadcast to frontends.
type CommandResult struct {
	CommandID ID     `json:"commandId"`
	Status    string `json:"status"`
	Response  string `json:"response"`
}

// StatusReport is the STATUS_UPDATE payload sent by rovers.
type StatusReport struct {
	Status string `json:"status"`
}

// StatusBroadcast is the STATUS_UPDATE payload broadcast to frontends.
type StatusBroadcast struct {
	Status    string `json:"status"`
	Connected *bool  `json:"connected,omitempty"`
	Rover     any    `json:"rover"`
}

// DisconnectNotice is broadcast when a rover socket closes.
type DisconnectNotice struct {
	RoverIdentifier string `json:"roverIdentifier"`
}

// ErrorReply is sent to a socket whose frame could not be processed.
type ErrorReply struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TelemetryFrame is the TELEMETRY payload as rovers send it. Rovers either
// wrap readings in sensorData or send them at the top level.
type TelemetryFrame struct {
	SensorData json.RawMessage `json:"sensorData,omitempty"`
}

// Readings returns the sensor object regardless of wrapping.
func (f TelemetryFrame) Readings(payload json.RawMessage) json.RawMessage {
	if len(f.SensorData) > 0 && string(f.SensorData) != "null" {
		return f.SensorData
	}
	return payload
}
