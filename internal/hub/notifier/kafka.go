package notifier

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/autopeer-io/roverhub/pkg/options"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink appends each envelope to a topic keyed by rover id, so one
// rover's events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

var _ Sink = (*KafkaSink)(nil)

func NewKafkaSink(opts *options.KafkaOptions) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: opts.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        opts.Async,
		Compression:  kafka.Snappy,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, env protocol.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(roverKey(env)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(env.Type)},
		},
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
