package notifier

import (
	"context"

	"github.com/autopeer-io/roverhub/pkg/options"
)

// NewSinks builds every sink enabled in the options.
func NewSinks(ctx context.Context, mqttOpts *options.MqttOptions, kafkaOpts *options.KafkaOptions, influxOpts *options.InfluxOptions) ([]Sink, error) {
	var sinks []Sink

	if mqttOpts.Enabled() {
		s, err := NewMQTTSink(ctx, mqttOpts)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if kafkaOpts.Enabled() {
		sinks = append(sinks, NewKafkaSink(kafkaOpts))
	}
	if influxOpts.Enabled() {
		sinks = append(sinks, NewInfluxSink(influxOpts))
	}
	return sinks, nil
}
