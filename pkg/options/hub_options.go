package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HubOptions)(nil)

// HubOptions tunes the socket hub: the upgrade path, per-socket buffering and
// the keep-alive timings of the WebSocket transport.
type HubOptions struct {
	Path string `json:"path" mapstructure:"path"`

	// SendBuffer is the number of outbound frames queued per socket before
	// further sends to that socket are dropped.
	SendBuffer int `json:"send-buffer" mapstructure:"send-buffer"`

	// EventBuffer is the capacity of the hub event queue.
	EventBuffer int `json:"event-buffer" mapstructure:"event-buffer"`

	WriteWait      time.Duration `json:"write-wait" mapstructure:"write-wait"`
	PongWait       time.Duration `json:"pong-wait" mapstructure:"pong-wait"`
	MaxMessageSize int64         `json:"max-message-size" mapstructure:"max-message-size"`

	// StoreTimeout bounds every persistent store call made by a handler.
	StoreTimeout time.Duration `json:"store-timeout" mapstructure:"store-timeout"`

	// AllowedOrigins restricts browser origins; empty accepts any origin.
	AllowedOrigins []string `json:"allowed-origins" mapstructure:"allowed-origins"`
}

// NewHubOptions creates a HubOptions object with default parameters.
func NewHubOptions() *HubOptions {
	return &HubOptions{
		Path:           "/ws",
		SendBuffer:     256,
		EventBuffer:    1024,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 4 << 20,
		StoreTimeout:   5 * time.Second,
	}
}

// PingPeriod is how often the transport pings a peer; it must stay below PongWait.
func (o *HubOptions) PingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

func (o *HubOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if !strings.HasPrefix(o.Path, "/") {
		errs = append(errs, fmt.Errorf("--hub.path must start with '/', got %q", o.Path))
	}
	if o.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("--hub.send-buffer must be positive"))
	}
	if o.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("--hub.event-buffer must be positive"))
	}
	if o.PongWait <= 0 || o.WriteWait <= 0 {
		errs = append(errs, fmt.Errorf("--hub.pong-wait and --hub.write-wait must be positive"))
	}
	if o.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("--hub.max-message-size must be positive"))
	}
	return errs
}

func (o *HubOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, "hub.path", o.Path, "HTTP path that upgrades to the hub WebSocket.")
	fs.IntVar(&o.SendBuffer, "hub.send-buffer", o.SendBuffer, "Outbound frames buffered per socket before dropping.")
	fs.IntVar(&o.EventBuffer, "hub.event-buffer", o.EventBuffer, "Capacity of the hub event queue.")
	fs.DurationVar(&o.WriteWait, "hub.write-wait", o.WriteWait, "Time allowed to write a frame to a peer.")
	fs.DurationVar(&o.PongWait, "hub.pong-wait", o.PongWait, "Time allowed to read the next pong from a peer.")
	fs.Int64Var(&o.MaxMessageSize, "hub.max-message-size", o.MaxMessageSize, "Maximum inbound frame size in bytes.")
	fs.DurationVar(&o.StoreTimeout, "hub.store-timeout", o.StoreTimeout, "Timeout applied to each persistent store call.")
	fs.StringSliceVar(&o.AllowedOrigins, "hub.allowed-origins", o.AllowedOrigins, "Allowed Origin headers for socket upgrades (empty allows all).")
}
