package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*KafkaOptions)(nil)

// KafkaOptions configures the optional Kafka mirror of hub broadcasts.
type KafkaOptions struct {
	Brokers      []string      `json:"brokers" mapstructure:"brokers"`
	Topic        string        `json:"topic" mapstructure:"topic"`
	BatchTimeout time.Duration `json:"batch-timeout" mapstructure:"batch-timeout"`
	Async        bool          `json:"async" mapstructure:"async"`
}

func NewKafkaOptions() *KafkaOptions {
	return &KafkaOptions{
		Topic:        "rover-hub.events",
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
}

func (o *KafkaOptions) Enabled() bool {
	return o != nil && len(o.Brokers) > 0
}

func (o *KafkaOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}
	var errs []error
	if o.Topic == "" {
		errs = append(errs, fmt.Errorf("--kafka.topic is required when brokers are set"))
	}
	return errs
}

func (o *KafkaOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringSliceVar(&o.Brokers, "kafka.brokers", o.Brokers, "Kafka bootstrap brokers for mirroring hub events (empty disables the mirror).")
	fs.StringVar(&o.Topic, "kafka.topic", o.Topic, "Kafka topic receiving mirrored hub events.")
	fs.DurationVar(&o.BatchTimeout, "kafka.batch-timeout", o.BatchTimeout, "Maximum time a partial batch is held before flushing.")
	fs.BoolVar(&o.Async, "kafka.async", o.Async, "Write to Kafka without waiting for acknowledgements.")
}
