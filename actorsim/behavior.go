package actorsim

import (
	"context"

	"github.com/signalsfoundry/vtsim/vtserver"
)

// ReceiveBehavior is the polymorphic dispatch strategy for an actor's
// inbound (non-tick) messages (spec.md §4.4, §9: "interface with variants
// ... stored behind a trait/interface reference" rather than a stored
// callback value).
type ReceiveBehavior interface {
	Receive(ctx context.Context, msg any, state any) vtserver.CallbackResult
}

// FuncBehavior adapts a plain function to ReceiveBehavior; this is the
// `on_receive(msg, state) -> callback-result` variant of spec.md §4.4.
type FuncBehavior struct {
	Fn func(ctx context.Context, msg any, state any) vtserver.CallbackResult
}

func (f FuncBehavior) Receive(ctx context.Context, msg any, state any) vtserver.CallbackResult {
	return f.Fn(ctx, msg, state)
}

// MatchCase pairs a predicate over the message with the handler to run when
// it matches.
type MatchCase struct {
	Match  func(msg any) bool
	Handle func(ctx context.Context, msg any, state any) vtserver.CallbackResult
}

// MatchBehavior is the `on_match([{pattern, handler_fn}])` variant of
// spec.md §4.4: first matching case wins, no-match is silently dropped.
type MatchBehavior struct {
	Cases []MatchCase
}

func (m MatchBehavior) Receive(ctx context.Context, msg any, state any) vtserver.CallbackResult {
	for _, c := range m.Cases {
		if c.Match(msg) {
			return c.Handle(ctx, msg, state)
		}
	}
	return vtserver.OK(state)
}

// defaultBehavior counts (via the server's own stats) and drops every
// message; used when a Definition supplies no ReceiveBehavior (spec.md
// §4.4: "Default — count and drop").
type defaultBehavior struct{}

func (defaultBehavior) Receive(_ context.Context, _ any, state any) vtserver.CallbackResult {
	return vtserver.OK(state)
}

// DefaultBehavior returns the count-and-drop receive behavior.
func DefaultBehavior() ReceiveBehavior { return defaultBehavior{} }
