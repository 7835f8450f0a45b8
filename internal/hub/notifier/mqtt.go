package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/autopeer-io/roverhub/pkg/log"
	pkgmqtt "github.com/autopeer-io/roverhub/pkg/mqtt"
	"github.com/autopeer-io/roverhub/pkg/mqtt/topic"
	"github.com/autopeer-io/roverhub/pkg/options"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

var (
	hubOnline  = []byte(`{"online":true}`)
	hubOffline = []byte(`{"online":false}`)
)

// MQTTSink publishes each envelope to {root}/{type}/{roverId}.
type MQTTSink struct {
	client pkgmqtt.Client
	topics *topic.TopicBuilder
	qos    int
}

var _ Sink = (*MQTTSink)(nil)

// NewMQTTSink connects a dedicated egress client. The broker announces the
// hub offline through a retained will if the connection drops.
func NewMQTTSink(ctx context.Context, opts *options.MqttOptions) (*MQTTSink, error) {
	topics := topic.NewTopicBuilder(opts.TopicRoot)

	cfg := opts.ToClientConfig()
	if cfg.ClientID == "" {
		host, _ := os.Hostname()
		cfg.ClientID = "rover-hub-" + host
	}
	cfg.WillTopic = topics.HubStatus()
	cfg.WillPayload = hubOffline
	cfg.WillQoS = 1
	cfg.WillRetain = true

	client, err := pkgmqtt.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mqtt mirror: %w", err)
	}

	s := newMQTTSink(client, topics, opts.QoS)
	go func() {
		if err := client.AwaitConnection(ctx); err != nil {
			return
		}
		if err := client.Publish(ctx, topics.HubStatus(), 1, true, hubOnline); err != nil {
			log.Error(err, "Failed to announce hub online", "topic", topics.HubStatus())
		}
	}()
	return s, nil
}

func newMQTTSink(client pkgmqtt.Client, topics *topic.TopicBuilder, qos int) *MQTTSink {
	return &MQTTSink{client: client, topics: topics, qos: qos}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Publish(ctx context.Context, env protocol.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var roverID int64
	if env.RoverID.Resolved() {
		roverID = env.RoverID.ID
	}
	return s.client.Publish(ctx, s.topics.Event(string(env.Type), roverID), s.qos, false, payload)
}

// Close announces the hub offline and disconnects.
func (s *MQTTSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	if s.client.IsConnected() {
		_ = s.client.Publish(ctx, s.topics.HubStatus(), 1, true, hubOffline)
	}
	s.client.Disconnect(ctx)
	return nil
}
