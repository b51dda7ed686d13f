package predicate

import (
	"fmt"

	"github.com/signalsfoundry/vtsim/stats"
)

// metricFuncs maps a metric name to its Snapshot accessor. Adding a new
// metric to terminate_when expressions means adding one entry here.
var metricFuncs = map[string]func(stats.Snapshot, string) float64{
	"sent_count": func(s stats.Snapshot, actor string) float64 {
		return float64(s.SentCount(actor))
	},
	"received_count": func(s stats.Snapshot, actor string) float64 {
		return float64(s.ReceivedCount(actor))
	},
	"rate_per_second": func(s stats.Snapshot, actor string) float64 {
		return s.Actors[actor].RatePerSecond
	},
}

// ErrUnknownMetric is returned when a Comparison names a metric function
// this package does not recognize.
type ErrUnknownMetric struct{ Name string }

func (e *ErrUnknownMetric) Error() string {
	return fmt.Sprintf("predicate: unknown metric %q", e.Name)
}

// Eval compiles expr and evaluates it against snap, returning whether the
// predicate currently holds. Compilation errors and unknown-metric errors
// are both reported via err; in either case the returned bool is false.
func Eval(expr string, snap stats.Snapshot) (bool, error) {
	parsed, err := Parse(expr)
	if err != nil {
		return false, fmt.Errorf("predicate: parse %q: %w", expr, err)
	}
	return parsed.Eval(snap)
}

// Eval evaluates a compiled Expr against a live Snapshot (spec.md §4.5.1:
// "the predicate must see effects that have already occurred").
func (e *Expr) Eval(snap stats.Snapshot) (bool, error) {
	for _, clause := range e.Or {
		ok, err := clause.eval(snap)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (a *AndClause) eval(snap stats.Snapshot) (bool, error) {
	for _, cmp := range a.Comparisons {
		ok, err := cmp.eval(snap)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *Comparison) eval(snap stats.Snapshot) (bool, error) {
	fn, ok := metricFuncs[c.Metric.Func]
	if !ok {
		return false, &ErrUnknownMetric{Name: c.Metric.Func}
	}
	lhs := fn(snap, c.Metric.Arg)

	switch c.Operator {
	case "==":
		return lhs == c.Value, nil
	case "!=":
		return lhs != c.Value, nil
	case "<":
		return lhs < c.Value, nil
	case "<=":
		return lhs <= c.Value, nil
	case ">":
		return lhs > c.Value, nil
	case ">=":
		return lhs >= c.Value, nil
	default:
		return false, fmt.Errorf("predicate: unknown operator %q", c.Operator)
	}
}
