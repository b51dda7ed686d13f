// Package vtserver implements the VirtualTimeServer: a stateful
// callback-driven process whose time primitives are routed through a bound
// timectrl.TimeBackend instead of the host OS clock. See spec.md §4.3.
package vtserver

import (
	"context"

	"github.com/signalsfoundry/vtsim/timectrl"
)

// MessageKind distinguishes the three message semantics named in spec.md
// §4.3: fire-and-forget (Send), semantically-asynchronous fire-and-forget
// (Cast), and request/response (Call). It is carried on trace events and
// picked by whichever Server API the caller used, not inferred from payload
// shape.
type MessageKind int

const (
	KindSend MessageKind = iota
	KindCast
	KindCall
)

func (k MessageKind) String() string {
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

// envelopeKind is the internal wire shape used between Server instances; it
// is a superset of MessageKind with the control messages (reply, timeout)
// a call needs.
type envelopeKind int

const (
	envSend envelopeKind = iota
	envCast
	envCall
	envCallReply
	envCallTimeout
	envInfo
)

// Envelope is what actually travels through the TimeBackend. Dispatch
// type-asserts incoming messages to *Envelope; a foreign Dispatchable that
// receives a raw (non-Envelope) message is treated as handle_info, so
// foreign actors (spec.md §6.5 "process-in-the-loop" testing) can be driven
// without depending on this package.
type Envelope struct {
	Kind    envelopeKind
	Payload any
	From    string
	CallID  string

	// Internal marks a self-directed control message (a send-pattern tick
	// reschedule, a Sleep wake, a Call timeout) that exists purely to drive
	// this server's own state machine. It is not a "message" in spec.md
	// §6.3/§6.4's sense and must not inflate sent_count/received_count or
	// the trace.
	Internal bool
}

// Outbound names a logical send target by registry name; the name is
// resolved to a Dispatchable at send time via Router, never cached as a
// direct reference (spec.md §9, non-tree actor references).
type Outbound struct {
	Target  string
	Message any
}

// ResultKind tags which variant of the callback contract (spec.md §4.3) a
// CallbackResult carries.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultSend
	ResultSendAfter
	ResultReply
	ResultError
)

// CallbackResult is the sum type returned by every callback. Exactly one of
// Messages/Reply/Err is meaningful, selected by Kind.
type CallbackResult struct {
	Kind     ResultKind
	Messages []Outbound // ResultSend / ResultSendAfter
	Delay    int64      // ResultSendAfter
	Reply    any        // ResultReply
	State    any        // new user state after this callback, always set
	Err      error      // ResultError
}

// OK returns a no-op CallbackResult carrying the (possibly unchanged) state.
func OK(state any) CallbackResult { return CallbackResult{Kind: ResultOK, State: state} }

// Send returns a CallbackResult that enqueues messages for immediate
// delivery (at the current now).
func Send(state any, msgs ...Outbound) CallbackResult {
	return CallbackResult{Kind: ResultSend, State: state, Messages: msgs}
}

// SendAfter returns a CallbackResult that enqueues messages for delivery at
// now+delay.
func SendAfter(state any, delay int64, msgs ...Outbound) CallbackResult {
	return CallbackResult{Kind: ResultSendAfter, State: state, Delay: delay, Messages: msgs}
}

// Reply returns a CallbackResult that replies to the pending call that
// invoked HandleCall.
func Reply(state any, value any) CallbackResult {
	return CallbackResult{Kind: ResultReply, State: state, Reply: value}
}

// Failed returns a CallbackResult carrying a handler error; the dispatcher
// records it but does not corrupt server or clock state.
func Failed(state any, err error) CallbackResult {
	return CallbackResult{Kind: ResultError, State: state, Err: err}
}

// CallResult is delivered to HandleInfo when a Call initiated via
// Server.Call resolves, either with a reply or a timeout.
type CallResult struct {
	CallID string
	Value  any
	Err    error // non-nil (ErrCallTimeout) if the call timed out
}

// WakeSignal is delivered to HandleInfo when a Sleep scheduled via
// Server.Sleep elapses (spec.md §4.3: sleep is modelled as a self
// send_after plus a state-machine step, since this runtime has no
// cooperative coroutines to suspend).
type WakeSignal struct{}

// Router resolves a logical actor/server name to its current dispatch
// target. Owned by the SimulationEngine registry, never by individual
// servers, so cyclic actor graphs never require owning references
// (spec.md §9).
type Router interface {
	Resolve(name string) (timectrl.Dispatchable, bool)
}

// Callbacks is the user-supplied behavior driving a Server, analogous to a
// classic request-handling server's init/handle_*/terminate lifecycle
// (spec.md §4.3, §6.2).
type Callbacks interface {
	Init(args any) (state any, err error)
	HandleCall(ctx context.Context, msg any, from string, state any) CallbackResult
	HandleCast(ctx context.Context, msg any, state any) CallbackResult
	HandleInfo(ctx context.Context, msg any, state any) CallbackResult
	Terminate(ctx context.Context, reason error, state any)
}
