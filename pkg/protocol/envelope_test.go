package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
		check   func(t *testing.T, env Envelope)
	}{
		{
			name:  "connect as rover",
			frame: `{"type":"CONNECT","payload":{"type":"rover","identifier":"R-001"}}`,
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, TypeConnect, env.Type)
				assert.Equal(t, fixedNow.UnixMilli(), env.Timestamp)
				assert.Nil(t, env.RoverID)
			},
		},
		{
			name:  "sender timestamp kept",
			frame: `{"type":"TELEMETRY","payload":{},"timestamp":42}`,
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, int64(42), env.Timestamp)
			},
		},
		{
			name:  "numeric rover id",
			frame: `{"type":"COMMAND","roverId":1,"payload":{"command":"stop"}}`,
			check: func(t *testing.T, env Envelope) {
				require.NotNil(t, env.RoverID)
				assert.Equal(t, int64(1), env.RoverID.ID)
			},
		},
		{
			name:  "numeric string rover id",
			frame: `{"type":"COMMAND","roverId":"12","payload":{"command":"stop"}}`,
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, int64(12), env.RoverID.ID)
			},
		},
		{
			name:  "identifier string rover id",
			frame: `{"type":"COMMAND","roverId":"R-001","payload":{"command":"stop"}}`,
			check: func(t *testing.T, env Envelope) {
				assert.False(t, env.RoverID.Resolved())
				assert.Equal(t, "R-001", env.RoverID.Identifier)
			},
		},
		{name: "unknown type", frame: `{"type":"HELLO"}`, wantErr: true},
		{name: "missing type", frame: `{"payload":{}}`, wantErr: true},
		{name: "type wrong shape", frame: `{"type":5}`, wantErr: true},
		{name: "timestamp wrong shape", frame: `{"type":"CONNECT","timestamp":"now"}`, wantErr: true},
		{name: "fractional rover id", frame: `{"type":"COMMAND","roverId":1.5}`, wantErr: true},
		{name: "negative rover id", frame: `{"type":"COMMAND","roverId":-3}`, wantErr: true},
		{name: "array frame", frame: `[1,2]`, wantErr: true},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "empty", frame: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.frame), fixedNow)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			tt.check(t, env)
		})
	}
}

func TestEncodeStampsMissingTimestamp(t *testing.T) {
	env := MustNew(TypeCommand, 3, CommandDispatch{Command: "move forward 1", CommandID: 7})

	raw, err := env.Encode(fixedNow)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "COMMAND", out["type"])
	assert.EqualValues(t, 3, out["roverId"])
	assert.EqualValues(t, fixedNow.UnixMilli(), out["timestamp"])
	assert.Equal(t, map[string]any{"command": "move forward 1", "commandId": float64(7)}, out["payload"])

	env.Timestamp = 5
	raw, err = env.Encode(fixedNow)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.EqualValues(t, 5, out["timestamp"])
}

func TestDecodePayload(t *testing.T) {
	env, err := Decode([]byte(`{"type":"COMMAND_RESPONSE","payload":{"commandId":"7","status":"success","response":"ok"}}`), fixedNow)
	require.NoError(t, err)

	var res CommandResult
	require.NoError(t, env.DecodePayload(&res))
	assert.Equal(t, ID(7), res.CommandID)
	assert.Equal(t, "success", res.Status)

	env.Payload = nil
	assert.ErrorIs(t, env.DecodePayload(&res), ErrInvalidMessage)

	env.Payload = json.RawMessage(`{"commandId":true}`)
	assert.ErrorIs(t, env.DecodePayload(&res), ErrInvalidMessage)
}

func TestTelemetryReadings(t *testing.T) {
	wrapped := json.RawMessage(`{"sensorData":{"batteryLevel":73}}`)
	var f TelemetryFrame
	require.NoError(t, json.Unmarshal(wrapped, &f))
	assert.JSONEq(t, `{"batteryLevel":73}`, string(f.Readings(wrapped)))

	flat := json.RawMessage(`{"batteryLevel":50,"speed":0.4}`)
	f = TelemetryFrame{}
	require.NoError(t, json.Unmarshal(flat, &f))
	assert.JSONEq(t, string(flat), string(f.Readings(flat)))
}

func TestRoverRefMarshal(t *testing.T) {
	raw, err := json.Marshal(NumericRover(9))
	require.NoError(t, err)
	assert.Equal(t, "9", string(raw))

	raw, err = json.Marshal(&RoverRef{Identifier: "R-002"})
	require.NoError(t, err)
	assert.Equal(t, `"R-002"`, string(raw))
}

func TestIDAcceptsNumbersStringsAndNull(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{`7`, 7, false},
		{`"12"`, 12, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
		{`1.5`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var res CommandResult
			err := json.Unmarshal([]byte(`{"commandId":`+tt.in+`}`), &res)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.CommandID)
		})
	}
}

