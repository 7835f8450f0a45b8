// Package notifier mirrors hub broadcasts to external systems.
package notifier

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/autopeer-io/roverhub/internal/pkg/metrics"
	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

// Sink publishes mirrored envelopes to one external system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, env protocol.Envelope) error
	Close() error
}

const (
	defaultQueueSize      = 1024
	defaultPublishTimeout = 5 * time.Second
)

// Fanout queues mirrored envelopes and publishes them to every sink from a
// single background worker. A full queue drops the envelope.
type Fanout struct {
	sinks   []Sink
	queue   chan protocol.Envelope
	timeout time.Duration
	log     log.Logger

	closeOnce sync.Once
}

// NewFanout returns a fanout over sinks. queueSize <= 0 selects a default.
func NewFanout(sinks []Sink, queueSize int) *Fanout {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Fanout{
		sinks:   sinks,
		queue:   make(chan protocol.Envelope, queueSize),
		timeout: defaultPublishTimeout,
		log:     log.WithName("notifier"),
	}
}

// Mirror enqueues env without blocking.
func (f *Fanout) Mirror(env protocol.Envelope) {
	select {
	case f.queue <- env:
	default:
		for _, s := range f.sinks {
			metrics.MirrorPublishTotal.WithLabelValues(s.Name(), "dropped").Inc()
		}
		f.log.Warn("Mirror queue full, dropping event", "type", env.Type)
	}
}

// Start publishes queued envelopes until ctx is cancelled, then closes the sinks.
func (f *Fanout) Start(ctx context.Context) error {
	f.log.Info("Event mirror started", "sinks", len(f.sinks))
	defer f.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-f.queue:
			f.publish(ctx, env)
		}
	}
}

func (f *Fanout) publish(ctx context.Context, env protocol.Envelope) {
	for _, s := range f.sinks {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := s.Publish(pctx, env)
		cancel()

		if err != nil {
			metrics.MirrorPublishTotal.WithLabelValues(s.Name(), "error").Inc()
			f.log.Error(err, "Failed to mirror event", "sink", s.Name(), "type", env.Type)
			continue
		}
		metrics.MirrorPublishTotal.WithLabelValues(s.Name(), "ok").Inc()
	}
}

func (f *Fanout) close() {
	f.closeOnce.Do(func() {
		for _, s := range f.sinks {
			if err := s.Close(); err != nil {
				f.log.Error(err, "Failed to close sink", "sink", s.Name())
			}
		}
	})
}

// roverKey renders the envelope's rover id, or "hub" for hub-wide events.
func roverKey(env protocol.Envelope) string {
	if env.RoverID.Resolved() {
		return strconv.FormatInt(env.RoverID.ID, 10)
	}
	return "hub"
}
