// Package metrics exposes the dispatcher's Prometheus instrumentation.
// Grounded on teacher_dialog/metrics.go's MetricsCollector field
// selection (dialogs total/active, transaction counters, state
// transitions, error counters), but ships unconditionally: the teacher
// gates this file behind a `+build prometheus` tag, which SPEC_FULL.md
// §2.10 drops in favor of always-on instrumentation registered through
// promauto.With on the registerer passed to NewCollector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every metric the dispatcher updates over its
// lifetime. Construct one with NewCollector and pass it to dum.New.
type Collector struct {
	DialogsCreated    prometheus.Counter
	DialogsActive     prometheus.Gauge
	DialogSetsActive  prometheus.Gauge
	UsagesCreated     *prometheus.CounterVec // by kind
	UsagesTerminated  *prometheus.CounterVec // by kind
	RequestsSent      *prometheus.CounterVec // by method
	RequestsReceived  *prometheus.CounterVec // by method
	ResponsesSent     *prometheus.CounterVec // by status class
	StateTransitions  *prometheus.CounterVec // by usage kind, from, to
	MergedRequests    prometheus.Counter
	AuthChallenges    prometheus.Counter
	DispatchErrors    *prometheus.CounterVec // by category
	EventQueueDepth   prometheus.Gauge
	EventProcessTime  prometheus.Histogram
}

// NewCollector registers and returns a Collector under the given
// Prometheus registerer. Pass prometheus.DefaultRegisterer in
// production, a fresh prometheus.NewRegistry() in tests to avoid
// cross-test collisions on the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		DialogsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "dialog",
			Name:      "created_total",
			Help:      "Total dialogs created.",
		}),
		DialogsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dum",
			Subsystem: "dialog",
			Name:      "active",
			Help:      "Currently active dialogs.",
		}),
		DialogSetsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dum",
			Subsystem: "dialog_set",
			Name:      "active",
			Help:      "Currently active dialog sets.",
		}),
		UsagesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "usage",
			Name:      "created_total",
			Help:      "Total usages created, by kind.",
		}, []string{"kind"}),
		UsagesTerminated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "usage",
			Name:      "terminated_total",
			Help:      "Total usages terminated, by kind.",
		}, []string{"kind"}),
		RequestsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "request",
			Name:      "sent_total",
			Help:      "Requests sent, by method.",
		}, []string{"method"}),
		RequestsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "request",
			Name:      "received_total",
			Help:      "Requests received, by method.",
		}, []string{"method"}),
		ResponsesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "response",
			Name:      "sent_total",
			Help:      "Responses sent, by status class (1xx..6xx).",
		}, []string{"class"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "usage",
			Name:      "state_transitions_total",
			Help:      "Usage state transitions, by kind/from/to.",
		}, []string{"kind", "from", "to"}),
		MergedRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "request",
			Name:      "merged_total",
			Help:      "Requests rejected as merged (RFC 3261 §8.2.2.2).",
		}),
		AuthChallenges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "auth",
			Name:      "challenges_total",
			Help:      "Digest challenges issued.",
		}),
		DispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dum",
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Dispatch errors, by dumerr category.",
		}, []string{"category"}),
		EventQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dum",
			Subsystem: "dispatch",
			Name:      "event_queue_depth",
			Help:      "Pending events in the dispatcher's FIFO.",
		}),
		EventProcessTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dum",
			Subsystem: "dispatch",
			Name:      "event_process_seconds",
			Help:      "Time spent processing one dispatcher event.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
