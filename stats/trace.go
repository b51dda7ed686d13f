// Package stats implements the engine-level statistics and trace
// collector: a per-actor counters map plus an ordered message trace, and an
// optional Prometheus wiring. See spec.md §6.3/§6.4.
package stats

// Kind distinguishes the three message semantics a trace event records,
// mirroring vtserver.MessageKind without importing it (stats must not
// depend on vtserver: the engine composes both).
type Kind int

const (
	KindSend Kind = iota
	KindCast
	KindCall
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindCast:
		return "cast"
	case KindCall:
		return "call"
	default:
		return "unknown"
	}
}

// TraceEvent is one observed send, in the structural shape of spec.md §6.4.
type TraceEvent struct {
	Timestamp int64
	From      string
	To        string
	Message   any
	Kind      Kind
}
