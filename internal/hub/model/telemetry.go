package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"k8s.io/utils/ptr"
)

// TelemetrySample is one reading batch from a rover. Missing readings stay nil;
// a missing reading is not a zero reading.
type TelemetrySample struct {
	ID      int64 `json:"id"`
	RoverID int64 `json:"roverId"`

	Temperature      *float64 `json:"temperature,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	BatteryLevel     *int     `json:"batteryLevel,omitempty"`
	SignalStrength   *int     `json:"signalStrength,omitempty"`
	CPUUsage         *float64 `json:"cpuUsage,omitempty"`
	MemoryUsage      *float64 `json:"memoryUsage,omitempty"`
	DistanceTraveled *float64 `json:"distanceTraveled,omitempty"`
	Trips            *int     `json:"trips,omitempty"`

	CurrentPosition json.RawMessage `json:"currentPosition,omitempty"`
	MapData         json.RawMessage `json:"mapData,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

type telemetryWire struct {
	Temperature      *float64        `json:"temperature"`
	Speed            *float64        `json:"speed"`
	Latitude         *float64        `json:"latitude"`
	Longitude        *float64        `json:"longitude"`
	BatteryLevel     *float64        `json:"batteryLevel"`
	SignalStrength   *float64        `json:"signalStrength"`
	CPUUsage         *float64        `json:"cpuUsage"`
	MemoryUsage      *float64        `json:"memoryUsage"`
	DistanceTraveled *float64        `json:"distanceTraveled"`
	Trips            *float64        `json:"trips"`
	CurrentPosition  json.RawMessage `json:"currentPosition"`
	MapData          json.RawMessage `json:"mapdata"`
}

// ParseTelemetry builds a sample from a rover's sensor object.
func ParseTelemetry(roverID int64, raw json.RawMessage, ts time.Time) (*TelemetrySample, error) {
	var w telemetryWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode telemetry: %w", err)
	}

	return &TelemetrySample{
		RoverID:          roverID,
		Temperature:      w.Temperature,
		Speed:            w.Speed,
		Latitude:         w.Latitude,
		Longitude:        w.Longitude,
		BatteryLevel:     roundInt(w.BatteryLevel),
		SignalStrength:   roundInt(w.SignalStrength),
		CPUUsage:         w.CPUUsage,
		MemoryUsage:      w.MemoryUsage,
		DistanceTraveled: w.DistanceTraveled,
		Trips:            roundInt(w.Trips),
		CurrentPosition:  nonNull(w.CurrentPosition),
		MapData:          nonNull(w.MapData),
		Timestamp:        ts,
	}, nil
}

// Numeric returns the sample's numeric readings keyed by wire name.
func (s *TelemetrySample) Numeric() map[string]any {
	out := make(map[string]any, 10)
	put := func(k string, v *float64) {
		if v != nil {
			out[k] = *v
		}
	}
	putInt := func(k string, v *int) {
		if v != nil {
			out[k] = int64(*v)
		}
	}
	put("temperature", s.Temperature)
	put("speed", s.Speed)
	put("latitude", s.Latitude)
	put("longitude", s.Longitude)
	putInt("batteryLevel", s.BatteryLevel)
	putInt("signalStrength", s.SignalStrength)
	put("cpuUsage", s.CPUUsage)
	put("memoryUsage", s.MemoryUsage)
	put("distanceTraveled", s.DistanceTraveled)
	putInt("trips", s.Trips)
	return out
}

func roundInt(v *float64) *int {
	if v == nil {
		return nil
	}
	return ptr.To(int(math.Round(*v)))
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}
