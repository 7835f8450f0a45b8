package model

import "time"

// RoverStatus is the liveness status of a rover.
type RoverStatus string

const (
	RoverStatusDisconnected RoverStatus = "disconnected"
	RoverStatusIdle         RoverStatus = "idle"
	RoverStatusActive       RoverStatus = "active"
	RoverStatusError        RoverStatus = "error"
)

// Valid reports whether s is a known status.
func (s RoverStatus) Valid() bool {
	switch s {
	case RoverStatusDisconnected, RoverStatusIdle, RoverStatusActive, RoverStatusError:
		return true
	}
	return false
}

// DefaultBatteryLevel is assigned to rovers created on first connect.
const DefaultBatteryLevel = 100

// Rover is the persistent record of a remote agent.
type Rover struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	IPAddress  string `json:"ipAddress,omitempty"`

	// Liveness. Connected=false implies Status=disconnected.
	Status       RoverStatus `json:"status"`
	Connected    bool        `json:"connected"`
	BatteryLevel int         `json:"batteryLevel"`
	LastSeen     time.Time   `json:"lastSeen"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewRover returns the record created for an identifier seen for the first time.
func NewRover(identifier, ipAddress string) *Rover {
	return &Rover{
		Identifier:   identifier,
		Name:         "Rover " + identifier,
		IPAddress:    ipAddress,
		Status:       RoverStatusDisconnected,
		BatteryLevel: DefaultBatteryLevel,
	}
}

// RoverUpdate is a partial update. Nil fields are left untouched.
type RoverUpdate struct {
	Status       *RoverStatus
	Connected    *bool
	BatteryLevel *int
	IPAddress    *string
	LastSeen     *time.Time
}

// Apply copies the set fields of u onto r.
func (u RoverUpdate) Apply(r *Rover) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Connected != nil {
		r.Connected = *u.Connected
	}
	if u.BatteryLevel != nil {
		r.BatteryLevel = *u.BatteryLevel
	}
	if u.IPAddress != nil {
		r.IPAddress = *u.IPAddress
	}
	if u.LastSeen != nil {
		r.LastSeen = *u.LastSeen
	}
}

// RoverStats summarizes the fleet for dashboards.
type RoverStats struct {
	TotalRovers     int `json:"totalRovers"`
	ConnectedRovers int `json:"connectedRovers"`
	ActiveRovers    int `json:"activeRovers"`
	ErrorRovers     int `json:"errorRovers"`
}

// Stats counts rovers by liveness.
func Stats(rovers []Rover) RoverStats {
	s := RoverStats{TotalRovers: len(rovers)}
	for _, r := range rovers {
		if r.Connected {
			s.ConnectedRovers++
		}
		switch r.Status {
		case RoverStatusActive:
			s.ActiveRovers++
		case RoverStatusError:
			s.ErrorRovers++
		}
	}
	return s
}
