package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// Connections tracks open sockets by role (frontend, rover).
	Connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roverhub_connections",
			Help: "Number of open hub sockets by role.",
		},
		[]string{"role"},
	)

	// MessagesReceivedTotal counts inbound frames by envelope type.
	// Frames that fail validation are counted with type="invalid".
	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roverhub_messages_received_total",
			Help: "Total number of frames received from sockets.",
		},
		[]string{"type"},
	)

	// CommandsDispatchedTotal counts dispatch attempts.
	CommandsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roverhub_commands_dispatched_total",
			Help: "Total number of commands dispatched to rovers.",
		},
		[]string{"outcome"}, // outcome: delivered/not_connected/error
	)

	// CommandsResolvedTotal counts accepted command resolutions by final status.
	CommandsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roverhub_commands_resolved_total",
			Help: "Total number of command responses that resolved a pending command.",
		},
		[]string{"status"},
	)

	// DuplicateResponsesTotal counts responses for resolved or unknown commands.
	DuplicateResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roverhub_command_responses_ignored_total",
			Help: "Total number of command responses ignored because the command was not pending.",
		},
	)

	// DroppedSendsTotal counts outbound frames dropped because a socket was closed or saturated.
	DroppedSendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roverhub_dropped_sends_total",
			Help: "Total number of outbound frames dropped.",
		},
	)

	// MirrorPublishTotal counts event mirror publishes by sink and result.
	MirrorPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roverhub_mirror_publish_total",
			Help: "Total number of events handed to external sinks.",
		},
		[]string{"sink", "result"}, // result: ok/error/dropped
	)

	// EventDuration records how long the hub loop spends on each event.
	EventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roverhub_event_duration_seconds",
			Help:    "Time spent handling one hub event, store round trips included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// HTTPRequestsTotal counts REST requests by route template and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roverhub_http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"route", "method", "code"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Connections,
		MessagesReceivedTotal,
		CommandsDispatchedTotal,
		CommandsResolvedTotal,
		DuplicateResponsesTotal,
		DroppedSendsTotal,
		MirrorPublishTotal,
		EventDuration,
		HTTPRequestsTotal,
	)
}
