// Package engine implements the SimulationEngine: the DSL layer that
// builds an actor graph over a VirtualClock, drives it with fixed-duration
// or condition-checked advancement, and aggregates per-actor statistics and
// an ordered message trace. See spec.md §4.5.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/vtsim/actorsim"
	"github.com/signalsfoundry/vtsim/internal/logging"
	"github.com/signalsfoundry/vtsim/internal/predicate"
	"github.com/signalsfoundry/vtsim/stats"
	"github.com/signalsfoundry/vtsim/timectrl"
	"github.com/signalsfoundry/vtsim/vclock"
	"github.com/signalsfoundry/vtsim/vtserver"
	"go.opentelemetry.io/otel/trace"
)

// SimulationEngine builds an actor graph over a VirtualClock and advances
// it to produce deterministic statistics and a message trace (spec.md §3
// "SimulationEngine state", §4.5 public API).
type SimulationEngine struct {
	clock   *vclock.VirtualClock
	backend *vclock.Backend

	mu       sync.Mutex
	registry map[string]*vtserver.Server

	collector     *stats.Collector
	prom          *stats.PromMetrics
	logger        logging.Logger
	tracer        trace.Tracer
	patience      func(targetMs int64) time.Duration
	quiescenceMin time.Duration

	traceEnabled         bool
	traceCap             int
	defaultCheckInterval int64

	actualDuration  int64
	terminatedEarly bool
}

// New constructs a SimulationEngine with a fresh VirtualClock and an empty
// actor registry (spec.md §4.5 `new({trace: bool}) -> sim`).
func New(opts ...Option) *SimulationEngine {
	e := &SimulationEngine{
		registry:             make(map[string]*vtserver.Server),
		logger:               logging.Noop(),
		defaultCheckInterval: 100,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.collector = stats.New(e.traceEnabled, e.traceCap)

	var clockOpts []vclock.Option
	clockOpts = append(clockOpts, vclock.WithLogger(e.logger))
	if e.tracer != nil {
		clockOpts = append(clockOpts, vclock.WithTracer(e.tracer))
	}
	if e.patience != nil {
		clockOpts = append(clockOpts, vclock.WithQuiescencePatience(e.patience))
	}
	if e.quiescenceMin > 0 {
		clockOpts = append(clockOpts, vclock.WithQuiescenceMinInterval(e.quiescenceMin))
	}

	e.clock = vclock.New(clockOpts...)
	e.backend = vclock.NewBackend(e.clock)
	e.collector.Start(e.clock.Now())
	return e
}

// Resolve implements vtserver.Router, looking actors and foreign servers up
// by their registered name (spec.md §9: "Registry owned by the
// SimulationEngine; not process-global").
func (e *SimulationEngine) Resolve(name string) (timectrl.Dispatchable, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	srv, ok := e.registry[name]
	return srv, ok
}

// AddActor registers a simulated actor under name, built from def, and
// starts its send-pattern tick chain (spec.md §4.5
// `add_actor(sim, name, opts) -> sim`).
func (e *SimulationEngine) AddActor(ctx context.Context, name string, def actorsim.Definition) error {
	e.mu.Lock()
	if _, exists := e.registry[name]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	e.mu.Unlock()

	actor := actorsim.NewActor(name, def)
	server, err := vtserver.New(name, e.backend, e, actor, nil,
		vtserver.WithStats(),
		vtserver.WithLogger(e.logger),
		vtserver.WithTraceSink(e.traceSink(name)),
	)
	if err != nil {
		return fmt.Errorf("engine: add actor %s: %w", name, err)
	}
	actor.Bind(server)

	e.mu.Lock()
	e.registry[name] = server
	e.mu.Unlock()

	return actor.Start(ctx)
}

// AddForeign registers a caller-supplied VirtualTimeServer under name, so
// real server code can be exercised side-by-side with simulated actors
// (spec.md §4.5 `add_foreign(sim, name, {init, handler}) -> sim`).
func (e *SimulationEngine) AddForeign(name string, callbacks vtserver.Callbacks, args any) (*vtserver.Server, error) {
	e.mu.Lock()
	if _, exists := e.registry[name]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	e.mu.Unlock()

	server, err := vtserver.New(name, e.backend, e, callbacks, args,
		vtserver.WithStats(),
		vtserver.WithLogger(e.logger),
		vtserver.WithTraceSink(e.traceSink(name)),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: add foreign %s: %w", name, err)
	}

	e.mu.Lock()
	e.registry[name] = server
	e.mu.Unlock()

	return server, nil
}

// traceSink returns a vtserver trace callback that records into the
// engine's collector (and, if attached, Prometheus counters), tagged with
// the given sender name.
func (e *SimulationEngine) traceSink(from string) func(atMs int64, _, to string, msg any, kind vtserver.MessageKind) {
	return func(atMs int64, _, to string, msg any, kind vtserver.MessageKind) {
		e.collector.RecordSend(atMs, from, to, msg, convertKind(kind))
		if e.prom != nil {
			e.prom.ObserveSend(from)
			e.prom.ObserveReceive(to)
		}
	}
}

func convertKind(k vtserver.MessageKind) stats.Kind {
	switch k {
	case vtserver.KindCast:
		return stats.KindCast
	case vtserver.KindCall:
		return stats.KindCall
	default:
		return stats.KindSend
	}
}

// Stats returns a live snapshot built from every registered server's own
// counters (spec.md §6.3).
func (e *SimulationEngine) Stats() stats.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	actors := make(map[string]stats.ActorStats, len(e.registry))
	var total uint64
	now := e.clock.Now()
	start := e.collector.StartTime()

	for name, srv := range e.registry {
		snap := srv.Stats()
		a := stats.ActorStats{
			SentCount:     snap.SentCount,
			ReceivedCount: snap.ReceivedCount,
			FirstSendTime: snap.FirstSendMs,
			LastSendTime:  snap.LastSendMs,
		}
		if now > start {
			a.RatePerSecond = float64(a.SentCount) * 1000 / float64(now-start)
		}
		actors[name] = a
		total += a.SentCount
	}

	return stats.Snapshot{Actors: actors, TotalMessages: total, StartTime: start, EndTime: now}
}

// Trace returns the accumulated message trace, in
// (timestamp, insertion_index) order (spec.md §6.4).
func (e *SimulationEngine) Trace() []stats.TraceEvent {
	return e.collector.Trace()
}

// ActualDuration returns the virtual milliseconds actually simulated by the
// most recent Run call; may be less than requested if a terminate
// condition fired.
func (e *SimulationEngine) ActualDuration() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actualDuration
}

// TerminatedEarly reports whether the most recent Run call stopped because
// its terminate condition fired, rather than exhausting its duration.
func (e *SimulationEngine) TerminatedEarly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminatedEarly
}

// Stop terminates every registered actor/foreign server and cancels the
// timers each one tracks, as described on vtserver.Server.Stop (spec.md
// §4.5 `stop(sim)`). Idempotent.
func (e *SimulationEngine) Stop(ctx context.Context) {
	e.mu.Lock()
	servers := make([]*vtserver.Server, 0, len(e.registry))
	for _, srv := range e.registry {
		servers = append(servers, srv)
	}
	e.mu.Unlock()

	for _, srv := range servers {
		srv.Stop(ctx, nil)
	}
}

// predicateExprCache avoids recompiling identical TerminateWhen strings
// across repeated Run calls on different engines within one process.
var predicateExprCache sync.Map // map[string]*predicate.Expr

func compilePredicate(expr string) (*predicate.Expr, error) {
	if v, ok := predicateExprCache.Load(expr); ok {
		return v.(*predicate.Expr), nil
	}
	compiled, err := predicate.Parse(expr)
	if err != nil {
		return nil, err
	}
	predicateExprCache.Store(expr, compiled)
	return compiled, nil
}
