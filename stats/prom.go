package stats

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics optionally mirrors collector counters onto a Prometheus
// registry, grounded on the teacher's internal/observability.NBICollector
// register-or-reuse-existing helpers and internal/sbi.SBIMetrics'
// counter-per-event-kind shape, generalized from "NBI RPCs" to "simulated
// actor messages."
type PromMetrics struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	advanceDuration  prometheus.Histogram
}

// NewPromMetrics registers actor-message counters and an advance-latency
// histogram against reg, defaulting to the global registry when reg is
// nil. Registering the same collector twice (e.g. across multiple engines
// in one process) reuses the existing collector rather than erroring.
func NewPromMetrics(reg prometheus.Registerer) (*PromMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vtsim_messages_sent_total",
		Help: "Total number of messages sent by a simulated actor, labeled by actor name.",
	}, []string{"actor"})
	sent, err := registerCounterVec(reg, sent, "vtsim_messages_sent_total")
	if err != nil {
		return nil, err
	}

	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vtsim_messages_received_total",
		Help: "Total number of messages received by a simulated actor, labeled by actor name.",
	}, []string{"actor"})
	received, err = registerCounterVec(reg, received, "vtsim_messages_received_total")
	if err != nil {
		return nil, err
	}

	advance, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vtsim_advance_duration_seconds",
		Help:    "Wall-clock time spent inside a single VirtualClock.Advance call.",
		Buckets: prometheus.DefBuckets,
	}), "vtsim_advance_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &PromMetrics{messagesSent: sent, messagesReceived: received, advanceDuration: advance}, nil
}

// ObserveSend increments the sent counter for actor.
func (m *PromMetrics) ObserveSend(actor string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(actor).Inc()
}

// ObserveReceive increments the received counter for actor.
func (m *PromMetrics) ObserveReceive(actor string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(actor).Inc()
}

// ObserveAdvanceSeconds records the wall-clock duration of an Advance call.
func (m *PromMetrics) ObserveAdvanceSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.advanceDuration.Observe(seconds)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
