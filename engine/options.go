package engine

import (
	"time"

	"github.com/signalsfoundry/vtsim/internal/logging"
	"github.com/signalsfoundry/vtsim/stats"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a SimulationEngine at construction.
type Option func(*SimulationEngine)

// WithTrace enables trace collection (spec.md §4.5 `new({trace: bool})`),
// optionally bounding growth at cap entries (0 means unbounded).
func WithTrace(enabled bool, cap int) Option {
	return func(e *SimulationEngine) {
		e.traceEnabled = enabled
		e.traceCap = cap
	}
}

// WithLogger attaches a structured logger used for lifecycle and
// handler-failure messages across the clock and engine.
func WithLogger(l logging.Logger) Option {
	return func(e *SimulationEngine) { e.logger = l }
}

// WithTracer attaches an OpenTelemetry tracer, propagated to the owned
// VirtualClock (one span per Advance/dispatch, see internal/otelsim).
func WithTracer(t trace.Tracer) Option {
	return func(e *SimulationEngine) { e.tracer = t }
}

// WithPromMetrics attaches Prometheus counters mirroring per-actor send/
// receive activity; see stats.NewPromMetrics.
func WithPromMetrics(m *stats.PromMetrics) Option {
	return func(e *SimulationEngine) { e.prom = m }
}

// WithQuiescencePatience overrides the owned VirtualClock's quiescence
// patience-window function; see vclock.WithQuiescencePatience.
func WithQuiescencePatience(fn func(targetMs int64) time.Duration) Option {
	return func(e *SimulationEngine) { e.patience = fn }
}

// WithQuiescenceMinInterval overrides the owned VirtualClock's backoff
// initial interval during quiescence detection; see
// vclock.WithQuiescenceMinInterval.
func WithQuiescenceMinInterval(d time.Duration) Option {
	return func(e *SimulationEngine) { e.quiescenceMin = d }
}

// WithCheckInterval sets the default CheckInterval used by Run's
// condition-checked mode when RunOptions.CheckInterval is zero. Defaults
// to 100ms (spec.md §4.5.1).
func WithCheckInterval(ms int64) Option {
	return func(e *SimulationEngine) { e.defaultCheckInterval = ms }
}
