// Package timectrl provides the TimeBackend abstraction: a polymorphic time
// source that user code depends on instead of the host OS clock, so the same
// server/actor code runs unchanged under virtual or real time.
package timectrl

import (
	"context"
	"errors"
	"fmt"
)

// ErrBadDelay is returned when a negative delay is passed to ScheduleAfter.
var ErrBadDelay = errors.New("timectrl: delay must be >= 0")

// ErrNotFound is returned by Cancel when the handle is unknown or already fired.
var ErrNotFound = errors.New("timectrl: handle not found")

// Dispatchable receives a message delivered by a TimeBackend at the
// scheduled time. Implementations must not block; long-running work should
// be deferred to a goroutine if this is a RealTimeBackend, or expressed as
// further scheduled events if this is virtual time.
type Dispatchable interface {
	Dispatch(ctx context.Context, message any)
}

// Handle is an opaque, comparable reference to a scheduled event, returned
// by ScheduleAfter and consumed by Cancel. Handles are safe to compare with
// == and to use as map keys.
type Handle struct {
	id uint64
}

// NewHandle constructs a Handle from a backend-assigned sequence number. Only
// TimeBackend implementations should call this.
func NewHandle(id uint64) Handle { return Handle{id: id} }

func (h Handle) String() string { return fmt.Sprintf("tb-%d", h.id) }

// IsZero reports whether h is the zero Handle (never returned by a real
// ScheduleAfter call).
func (h Handle) IsZero() bool { return h.id == 0 }

// TimeBackend is a capability interface exposing Now/ScheduleAfter/Cancel.
// The two variants are vclock.Backend (backed by a vclock.VirtualClock)
// and RealTimeBackend (backed by the host OS clock); selection happens once,
// at construction of the component that depends on a backend, and is not
// switched at runtime within an active simulation.
type TimeBackend interface {
	// Now returns the current time in milliseconds since the backend's epoch.
	Now() int64

	// ScheduleAfter arranges for target.Dispatch(ctx, message) to run once
	// delay milliseconds from now. delay == 0 means "as soon as possible"
	// (immediately, for a virtual clock; on the next scheduler tick, for
	// real time). A negative delay returns ErrBadDelay.
	ScheduleAfter(ctx context.Context, delay int64, target Dispatchable, message any) (Handle, error)

	// Cancel prevents a previously scheduled event from firing. It returns
	// ErrNotFound if the handle is unknown or already fired; cancelling an
	// already-cancelled handle is a no-op that also returns ErrNotFound.
	Cancel(h Handle) error
}
