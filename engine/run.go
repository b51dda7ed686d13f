package engine

import (
	"context"
	"time"

	"github.com/signalsfoundry/vtsim/internal/predicate"
	"github.com/signalsfoundry/vtsim/stats"
)

// RunOptions configures a single Run call. Exactly one of the two modes
// applies (spec.md §4.5.1):
//
//   - Fixed-duration: set Duration; TerminateWhen and TerminateFunc both
//     empty/nil. The engine calls clock.Advance(Duration) once.
//   - Condition-checked: set MaxDuration and one of TerminateWhen (a
//     predicate DSL string, e.g. "sent_count(producer) >= 10") or
//     TerminateFunc. The engine steps by CheckInterval, evaluating the
//     condition against a live snapshot after each step.
type RunOptions struct {
	Duration      int64
	MaxDuration   int64
	TerminateWhen string
	TerminateFunc TerminateFunc
	CheckInterval int64
}

// TerminateFunc is the programmatic alternative to a TerminateWhen DSL
// string: a plain Go predicate over the live stats snapshot and trace
// accumulated so far (spec.md §4.5.1).
type TerminateFunc func(snap stats.Snapshot, trace []stats.TraceEvent) bool

// Run advances the engine's clock per RunOptions, populating
// ActualDuration/TerminatedEarly for later inspection (spec.md §4.5.1).
func (e *SimulationEngine) Run(ctx context.Context, opts RunOptions) error {
	if opts.TerminateWhen == "" && opts.TerminateFunc == nil {
		if opts.Duration == 0 {
			return ErrNoRunMode
		}
		return e.runFixed(ctx, opts.Duration)
	}
	return e.runConditionChecked(ctx, opts)
}

func (e *SimulationEngine) runFixed(ctx context.Context, duration int64) error {
	if _, err := e.advance(ctx, duration); err != nil {
		return err
	}
	e.mu.Lock()
	e.actualDuration = duration
	e.terminatedEarly = false
	e.mu.Unlock()
	return nil
}

// advance calls the owned VirtualClock's Advance, observing its wall-clock
// cost on the optional Prometheus histogram (stats.PromMetrics.
// ObserveAdvanceSeconds) so operators can watch for the very regression
// spec.md §4.2's design rationale warns against: a naive per-event
// wall-clock cost proportional to simulated duration.
func (e *SimulationEngine) advance(ctx context.Context, step int64) (int64, error) {
	wallStart := time.Now()
	now, err := e.clock.Advance(ctx, step)
	if e.prom != nil {
		e.prom.ObserveAdvanceSeconds(time.Since(wallStart).Seconds())
	}
	return now, err
}

func (e *SimulationEngine) runConditionChecked(ctx context.Context, opts RunOptions) error {
	checkInterval := opts.CheckInterval
	if checkInterval == 0 {
		checkInterval = e.defaultCheckInterval
	}

	var expr *predicate.Expr
	if opts.TerminateWhen != "" {
		compiled, err := compilePredicate(opts.TerminateWhen)
		if err != nil {
			return err
		}
		expr = compiled
	}

	var elapsed int64
	for elapsed < opts.MaxDuration {
		step := checkInterval
		if elapsed+step > opts.MaxDuration {
			step = opts.MaxDuration - elapsed
		}

		if _, err := e.advance(ctx, step); err != nil {
			return err
		}
		elapsed += step

		snap := e.Stats()
		terminate, err := e.evaluateTerminate(expr, opts.TerminateFunc, snap)
		if err != nil {
			return err
		}
		if terminate {
			e.mu.Lock()
			e.actualDuration = elapsed
			e.terminatedEarly = true
			e.mu.Unlock()
			return nil
		}
	}

	e.mu.Lock()
	e.actualDuration = elapsed
	e.terminatedEarly = false
	e.mu.Unlock()
	return nil
}

func (e *SimulationEngine) evaluateTerminate(expr *predicate.Expr, fn TerminateFunc, snap stats.Snapshot) (bool, error) {
	if expr != nil {
		return expr.Eval(snap)
	}
	if fn != nil {
		return fn(snap, e.collector.Trace()), nil
	}
	return false, nil
}
