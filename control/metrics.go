// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics for the client connection and message flow.
// A nil *Metrics discards every observation.

package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wamp"

// Metrics groups the client collectors.
type Metrics struct {
	framesReceived    *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	messagesUnknown   prometheus.Counter
	invocations       *prometheus.CounterVec
	taskFailures      *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_received_total",
			Help:      "WebSocket frames received by opcode.",
		}, []string{"opcode"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_sent_total",
			Help:      "WebSocket frames sent by opcode.",
		}, []string{"opcode"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Protocol messages received by kind.",
		}, []string{"kind"}),
		messagesUnknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_unknown_total",
			Help:      "Protocol messages dropped for an unknown kind.",
		}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "invocations_total",
			Help:      "Procedure invocations by outcome.",
		}, []string{"outcome"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "background_task_failures_total",
			Help:      "Background tasks that returned an error or panicked.",
		}, []string{"task"}),
		handshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "handshake_duration_seconds",
			Help:      "Opening handshake duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}
	return m
}

// Collectors lists every collector, for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.framesReceived, m.framesSent, m.messagesReceived, m.messagesUnknown,
		m.invocations, m.taskFailures, m.handshakeDuration,
	}
}

func (m *Metrics) FrameReceived(opcode string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(opcode).Inc()
}

func (m *Metrics) FrameSent(opcode string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(opcode).Inc()
}

func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) UnknownMessage() {
	if m == nil {
		return
	}
	m.messagesUnknown.Inc()
}

// Invocation counts a procedure run; outcome is "ok" or "error".
func (m *Metrics) Invocation(outcome string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TaskFailure(task string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(task).Inc()
}

func (m *Metrics) ObserveHandshake(d time.Duration) {
	if m == nil {
		return
	}
	m.handshakeDuration.Observe(d.Seconds())
}
