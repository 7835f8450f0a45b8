package mqtt_test

import (
	"context"
	"time"

	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/mqtt"
	"github.com/autopeer-io/roverhub/pkg/mqtt/topic"
)

// ExampleClient shows how the hub mirrors a telemetry frame to a broker.
func ExampleClient() {
	topics := topic.NewTopicBuilder("rovers/v1")

	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "rover-hub-example",
		KeepAlive:      60,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		WillTopic:      topics.HubStatus(),
		WillPayload:    []byte("offline"),
		WillRetain:     true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}
	defer client.Disconnect(context.Background())

	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "Connection timed out")
		return
	}

	payload := []byte(`{"type":"TELEMETRY","roverId":1,"payload":{"batteryLevel":73}}`)
	if err := client.Publish(ctx, topics.Event("TELEMETRY", 1), 0, false, payload); err != nil {
		log.Error(err, "Failed to publish message")
	}
}
