package notifier

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/autopeer-io/roverhub/internal/hub/model"
	"github.com/autopeer-io/roverhub/pkg/options"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink writes one point per TELEMETRY event; other types are skipped.
// TELEMETRY broadcasts carry the flat sensor readings.
type InfluxSink struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
}

var _ Sink = (*InfluxSink)(nil)

func NewInfluxSink(opts *options.InfluxOptions) *InfluxSink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &InfluxSink{
		client:      client,
		writer:      client.WriteAPIBlocking(opts.Org, opts.Bucket),
		measurement: opts.Measurement,
	}
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) Publish(ctx context.Context, env protocol.Envelope) error {
	point, ok, err := s.point(env)
	if err != nil || !ok {
		return err
	}
	return s.writer.WritePoint(ctx, point)
}

// point builds the telemetry point for env. ok is false when env carries
// nothing to record.
func (s *InfluxSink) point(env protocol.Envelope) (*write.Point, bool, error) {
	if env.Type != protocol.TypeTelemetry || !env.RoverID.Resolved() {
		return nil, false, nil
	}

	sample, err := model.ParseTelemetry(env.RoverID.ID, env.Payload, time.UnixMilli(env.Timestamp))
	if err != nil {
		return nil, false, err
	}

	fields := sample.Numeric()
	if len(fields) == 0 {
		return nil, false, nil
	}
	tags := map[string]string{"roverId": roverKey(env)}
	return write.NewPoint(s.measurement, tags, fields, sample.Timestamp), true, nil
}

func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
