package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/roverhub/pkg/mqtt/topic"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

type recordingSink struct {
	mu     sync.Mutex
	name   string
	events []protocol.Envelope
	err    error
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, env)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestFanoutPublishesToEverySink(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	failing := &recordingSink{name: "failing", err: errors.New("broker down")}
	f := NewFanout([]Sink{failing, ok}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Start(ctx) }()

	f.Mirror(protocol.MustNew(protocol.TypeStatusUpdate, 1, protocol.StatusReport{Status: "idle"}))
	f.Mirror(protocol.MustNew(protocol.TypeDisconnect, 1, protocol.DisconnectNotice{RoverIdentifier: "r-1"}))

	require.Eventually(t, func() bool { return ok.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, failing.count())

	cancel()
	require.NoError(t, <-done)
	assert.True(t, ok.isClosed())
	assert.True(t, failing.isClosed())
}

func TestFanoutDropsWhenQueueFull(t *testing.T) {
	sink := &recordingSink{name: "slow"}
	f := NewFanout([]Sink{sink}, 1)

	env := protocol.MustNew(protocol.TypeTelemetry, 2, map[string]any{"speed": 1})
	f.Mirror(env)
	f.Mirror(env)

	assert.Len(t, f.queue, 1)
}

type fakeMQTTClient struct {
	mu        sync.Mutex
	connected bool
	topics    []string
	payloads  [][]byte
	qos       []int
	retained  []bool
	stopped   bool
}

func (c *fakeMQTTClient) Start(context.Context) error           { return nil }
func (c *fakeMQTTClient) AwaitConnection(context.Context) error { return nil }
func (c *fakeMQTTClient) IsConnected() bool                     { return c.connected }

func (c *fakeMQTTClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

func (c *fakeMQTTClient) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload)
	c.qos = append(c.qos, qos)
	c.retained = append(c.retained, retain)
	return nil
}

func TestMQTTSinkTopics(t *testing.T) {
	client := &fakeMQTTClient{connected: true}
	s := newMQTTSink(client, topic.NewTopicBuilder("rovers/v1"), 1)

	require.NoError(t, s.Publish(context.Background(),
		protocol.MustNew(protocol.TypeCommandResponse, 4, protocol.CommandResult{CommandID: 9, Status: "success"})))
	require.NoError(t, s.Publish(context.Background(),
		protocol.MustNew(protocol.TypeError, 0, protocol.ErrorReply{Message: "boom"})))

	assert.Equal(t, []string{"rovers/v1/command_response/4", "rovers/v1/error/all"}, client.topics)
	assert.Equal(t, []int{1, 1}, client.qos)

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(client.payloads[0], &env))
	assert.Equal(t, protocol.TypeCommandResponse, env.Type)

	require.NoError(t, s.Close())
	assert.Equal(t, "rovers/v1/hub/status", client.topics[2])
	assert.True(t, client.retained[2])
	assert.True(t, client.stopped)
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkKeysByRover(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{writer: w}

	require.NoError(t, s.Publish(context.Background(),
		protocol.MustNew(protocol.TypeStatusUpdate, 12, protocol.StatusReport{Status: "active"})))
	require.NoError(t, s.Publish(context.Background(),
		protocol.MustNew(protocol.TypeError, 0, protocol.ErrorReply{Message: "x"})))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "12", string(w.msgs[0].Key))
	assert.Equal(t, "hub", string(w.msgs[1].Key))
	assert.Equal(t, "STATUS_UPDATE", string(w.msgs[0].Headers[0].Value))
	assert.Contains(t, string(w.msgs[0].Value), `"status":"active"`)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

type fakePointWriter struct {
	points []*write.Point
}

func (w *fakePointWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	w.points = append(w.points, points...)
	return nil
}

func TestInfluxSinkWritesTelemetryOnly(t *testing.T) {
	w := &fakePointWriter{}
	s := &InfluxSink{writer: w, measurement: "telemetry"}
	ctx := context.Background()

	env := protocol.MustNew(protocol.TypeTelemetry, 3, map[string]any{"temperature": 21.5, "batteryLevel": 80.4})
	env.Timestamp = 1_700_000_000_000

	require.NoError(t, s.Publish(ctx, env))
	require.NoError(t, s.Publish(ctx, protocol.MustNew(protocol.TypeStatusUpdate, 3, protocol.StatusReport{Status: "idle"})))
	require.NoError(t, s.Publish(ctx, protocol.MustNew(protocol.TypeTelemetry, 3, map[string]any{"note": "none"})))

	require.Len(t, w.points, 1)
	p := w.points[0]
	assert.Equal(t, "telemetry", p.Name())
	assert.Equal(t, time.UnixMilli(1_700_000_000_000), p.Time())

	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "roverId", p.TagList()[0].Key)
	assert.Equal(t, "3", p.TagList()[0].Value)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, map[string]any{"temperature": 21.5, "batteryLevel": int64(80)}, fields)
}
