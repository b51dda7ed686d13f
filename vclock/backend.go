package vclock

import (
	"context"

	"github.com/signalsfoundry/vtsim/timectrl"
)

// Backend adapts a VirtualClock to the timectrl.TimeBackend interface, so
// that server/actor code depending only on TimeBackend can be bound to a
// virtual clock without knowing about Advance/AdvanceUntil.
type Backend struct {
	clock *VirtualClock
}

// NewBackend wraps clock as a timectrl.TimeBackend.
func NewBackend(clock *VirtualClock) *Backend {
	return &Backend{clock: clock}
}

// Clock returns the underlying VirtualClock, for callers (typically the
// SimulationEngine) that need the richer Advance/AdvanceUntil API.
func (b *Backend) Clock() *VirtualClock { return b.clock }

func (b *Backend) Now() int64 { return b.clock.Now() }

func (b *Backend) ScheduleAfter(ctx context.Context, delay int64, target timectrl.Dispatchable, message any) (timectrl.Handle, error) {
	return b.clock.ScheduleAfter(ctx, delay, target, message)
}

func (b *Backend) Cancel(h timectrl.Handle) error {
	return b.clock.Cancel(h)
}

var _ timectrl.TimeBackend = (*Backend)(nil)
