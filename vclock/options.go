package vclock

import (
	"time"

	"github.com/signalsfoundry/vtsim/internal/logging"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a VirtualClock at construction.
type Option func(*VirtualClock)

// WithLogger attaches a structured logger used for handler-failure and
// lifecycle messages. Defaults to a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(c *VirtualClock) { c.logger = l }
}

// WithTracer attaches an OpenTelemetry tracer used to emit one span per
// Advance call and one child span per dispatched event. Defaults to the
// global no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *VirtualClock) { c.tracer = t }
}

// WithQuiescencePatience overrides the patience-window function used during
// quiescence detection (see patienceWindow). Exposed for tests that want to
// exercise the backoff loop without waiting on real wall-clock time.
func WithQuiescencePatience(fn func(targetMs int64) time.Duration) Option {
	return func(c *VirtualClock) { c.patience = fn }
}

// WithQuiescenceMinInterval overrides the backoff loop's initial (smallest)
// wait interval during quiescence detection. Defaults to one microsecond.
func WithQuiescenceMinInterval(d time.Duration) Option {
	return func(c *VirtualClock) { c.minInterval = d }
}
