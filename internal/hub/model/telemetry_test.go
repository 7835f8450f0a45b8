package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTelemetryKeepsMissingReadingsNil(t *testing.T) {
	ts := time.Unix(100, 0)
	s, err := ParseTelemetry(4, json.RawMessage(`{"batteryLevel":73,"speed":0,"currentPosition":{"x":1,"y":2}}`), ts)
	require.NoError(t, err)

	require.NotNil(t, s.BatteryLevel)
	assert.Equal(t, 73, *s.BatteryLevel)
	require.NotNil(t, s.Speed)
	assert.Zero(t, *s.Speed)
	assert.Nil(t, s.Temperature)
	assert.Nil(t, s.Trips)
	assert.Nil(t, s.MapData)
	assert.JSONEq(t, `{"x":1,"y":2}`, string(s.CurrentPosition))
	assert.Equal(t, int64(4), s.RoverID)
	assert.Equal(t, ts, s.Timestamp)

	assert.Equal(t, map[string]any{"batteryLevel": int64(73), "speed": 0.0}, s.Numeric())
}

func TestParseTelemetryRejectsWrongShape(t *testing.T) {
	_, err := ParseTelemetry(1, json.RawMessage(`{"batteryLevel":"full"}`), time.Now())
	assert.Error(t, err)
}

func TestRoverUpdateApply(t *testing.T) {
	r := NewRover("R-001", "10.0.0.2")
	assert.Equal(t, "Rover R-001", r.Name)
	assert.Equal(t, RoverStatusDisconnected, r.Status)
	assert.Equal(t, DefaultBatteryLevel, r.BatteryLevel)

	idle := RoverStatusIdle
	on := true
	RoverUpdate{Status: &idle, Connected: &on}.Apply(r)
	assert.Equal(t, RoverStatusIdle, r.Status)
	assert.True(t, r.Connected)
	assert.Equal(t, DefaultBatteryLevel, r.BatteryLevel)
}

func TestStats(t *testing.T) {
	got := Stats([]Rover{
		{Connected: true, Status: RoverStatusActive},
		{Connected: true, Status: RoverStatusIdle},
		{Connected: true, Status: RoverStatusError},
		{Status: RoverStatusDisconnected},
	})
	assert.Equal(t, RoverStats{TotalRovers: 4, ConnectedRovers: 3, ActiveRovers: 1, ErrorRovers: 1}, got)
}
