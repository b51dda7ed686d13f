// Package actorsim implements the Actor & SendPattern engine: a declarative
// layer over vtserver.Server that fans messages out to named targets on a
// schedule, and dispatches inbound messages through a pluggable receive
// behavior. See spec.md §4.4.
package actorsim

// PatternKind tags which SendPattern variant is active. Using a tagged
// struct (kind + parameters) instead of storing a callback closure per
// variant keeps actor definitions comparable and serialisable, and avoids
// the dynamic-callback-in-state pattern flagged in spec.md §9.
type PatternKind int

const (
	// PatternNone marks a receive-only actor with no self-scheduled tick.
	PatternNone PatternKind = iota
	// PatternPeriodic emits Message to every target every Interval ms,
	// starting at now+Interval.
	PatternPeriodic
	// PatternRate is periodic normalized from a per-second rate.
	PatternRate
	// PatternBurst emits Count copies of Message to every target every
	// Interval ms, in one batch.
	PatternBurst
)

// SendPattern is the immutable, declarative description of how an actor
// generates outbound traffic (spec.md §4.4's "Send patterns" table).
type SendPattern struct {
	Kind     PatternKind
	Interval int64 // ms; required for Periodic/Rate/Burst
	Count    int   // required for Burst, >= 1
	Message  any
}

// None returns a receive-only send pattern.
func None() SendPattern { return SendPattern{Kind: PatternNone} }

// Periodic returns a pattern emitting msg to every target every interval ms.
func Periodic(interval int64, msg any) SendPattern {
	return SendPattern{Kind: PatternPeriodic, Interval: interval, Message: msg}
}

// Rate returns a pattern equivalent to Periodic(1000/perSecond, msg)
// (spec.md §4.4: "rate(per_second, msg) ... equivalent to
// periodic(1000/rate, msg)").
func Rate(perSecond float64, msg any) SendPattern {
	interval := int64(1000 / perSecond)
	if interval < 1 {
		interval = 1
	}
	return SendPattern{Kind: PatternRate, Interval: interval, Message: msg}
}

// Burst returns a pattern emitting count copies of msg to every target every
// interval ms, in one batch. Burst(1, interval, msg) is observably
// equivalent to Periodic(interval, msg) (spec.md §8 boundary behavior).
func Burst(count int, interval int64, msg any) SendPattern {
	return SendPattern{Kind: PatternBurst, Interval: interval, Count: count, Message: msg}
}

// tickSignal is the self-message an actor schedules to drive its own send
// pattern (spec.md §4.4: "realised by scheduling a self-message {:__tick__}
// at the appropriate cadence").
type tickSignal struct{}
