package actorsim

import (
	"context"

	"github.com/signalsfoundry/vtsim/timectrl"
	"github.com/signalsfoundry/vtsim/vtserver"
)

// Definition is the immutable, declarative description of a simulated
// actor: a send pattern, the targets it fans out to, a receive behavior for
// inbound messages, and the state it starts in (spec.md §3, "Actor
// (simulation layer)").
type Definition struct {
	SendPattern  SendPattern
	Targets      []string
	Receive      ReceiveBehavior
	InitialState any
}

// Actor wraps a vtserver.Server with a Definition, realizing the send
// pattern as a self-scheduled tick and routing inbound messages to the
// Definition's ReceiveBehavior (spec.md §4.4). An Actor implements
// vtserver.Callbacks directly rather than holding one, so the engine
// constructs the pair together: see Bind.
type Actor struct {
	name   string
	def    Definition
	server *vtserver.Server

	// selfTimerHandle is the handle of the actor's currently outstanding
	// tick, if its send pattern is periodic/rate/burst (spec.md §3). It is
	// cancelled in Terminate; Server.Stop also cancels it as a backstop, so
	// double-cancellation here is a harmless no-op.
	selfTimerHandle timectrl.Handle
}

// NewActor constructs an Actor for name with the given Definition. The
// returned Actor must be bound to a vtserver.Server (via vtserver.New(name,
// backend, router, actor, nil) followed by actor.Bind(server)) before
// Start is called.
func NewActor(name string, def Definition) *Actor {
	if def.Receive == nil {
		def.Receive = DefaultBehavior()
	}
	return &Actor{name: name, def: def}
}

// Name returns the actor's registry name.
func (a *Actor) Name() string { return a.name }

// Bind attaches the vtserver.Server driving this actor's time primitives.
// Must be called once, after the server is constructed with this Actor as
// its Callbacks.
func (a *Actor) Bind(server *vtserver.Server) { a.server = server }

// Start schedules the actor's first tick, if its send pattern is anything
// other than PatternNone. Idempotent only in the sense that calling it
// twice schedules two independent tick chains; callers (the engine) must
// call it exactly once per actor.
func (a *Actor) Start(ctx context.Context) error {
	if a.def.SendPattern.Kind == PatternNone {
		return nil
	}
	handle, err := a.server.ScheduleSelf(ctx, a.def.SendPattern.Interval, tickSignal{})
	if err != nil {
		return err
	}
	a.selfTimerHandle = handle
	return nil
}

// Init implements vtserver.Callbacks.
func (a *Actor) Init(any) (any, error) {
	return a.def.InitialState, nil
}

// HandleCast implements vtserver.Callbacks, routing ticks to the send
// pattern and everything else to the receive behavior.
func (a *Actor) HandleCast(ctx context.Context, msg any, state any) vtserver.CallbackResult {
	if _, ok := msg.(tickSignal); ok {
		return a.handleTick(ctx, state)
	}
	return a.def.Receive.Receive(ctx, msg, state)
}

// HandleInfo implements vtserver.Callbacks. Ticks are delivered as casts
// (see Start), so this only ever carries call replies/timeouts and foreign
// info messages through to the receive behavior.
func (a *Actor) HandleInfo(ctx context.Context, msg any, state any) vtserver.CallbackResult {
	return a.def.Receive.Receive(ctx, msg, state)
}

// HandleCall implements vtserver.Callbacks, delegating to the same receive
// behavior as casts and info; the caller's name is not passed on, so a
// behavior cannot tell a call from a cast. A ResultReply from the behavior
// is routed back to the caller by the server.
func (a *Actor) HandleCall(ctx context.Context, msg any, _ string, state any) vtserver.CallbackResult {
	return a.def.Receive.Receive(ctx, msg, state)
}

// Terminate implements vtserver.Callbacks. It cancels the actor's own
// outstanding tick handle directly, mirroring vtserver.Server.Stop's own
// self-timer cancellation.
func (a *Actor) Terminate(_ context.Context, _ error, _ any) {
	if !a.selfTimerHandle.IsZero() {
		_ = a.server.CancelTimer(a.selfTimerHandle)
	}
}

// handleTick fans the pattern's message out to every target, then
// reschedules the next tick (unless the pattern is PatternNone, which never
// reaches here).
func (a *Actor) handleTick(ctx context.Context, state any) vtserver.CallbackResult {
	pattern := a.def.SendPattern
	copies := 1
	if pattern.Kind == PatternBurst {
		copies = pattern.Count
	}

	for _, target := range a.def.Targets {
		for i := 0; i < copies; i++ {
			if err := a.server.Send(ctx, target, pattern.Message); err != nil {
				return vtserver.Failed(state, err)
			}
		}
	}

	handle, err := a.server.ScheduleSelf(ctx, pattern.Interval, tickSignal{})
	if err != nil {
		return vtserver.Failed(state, err)
	}
	a.selfTimerHandle = handle

	return vtserver.OK(state)
}

var _ vtserver.Callbacks = (*Actor)(nil)
