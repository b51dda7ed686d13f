package timectrl

import (
	"context"
	"sync"
	"time"
)

// RealTimeBackend implements TimeBackend over the host OS clock. It exists
// so that server/actor code written against TimeBackend can run outside a
// simulation without modification; it is a thin wrapper and is not exercised
// by the deterministic-scheduling guarantees the core provides.
type RealTimeBackend struct {
	start time.Time

	mu      sync.Mutex
	seq     uint64
	timers  map[Handle]*time.Timer
}

// NewRealTimeBackend constructs a RealTimeBackend whose Now() is measured
// relative to the moment of construction.
func NewRealTimeBackend() *RealTimeBackend {
	return &RealTimeBackend{
		start:  time.Now(),
		timers: make(map[Handle]*time.Timer),
	}
}

// Now returns milliseconds elapsed since the backend was constructed.
func (b *RealTimeBackend) Now() int64 {
	return time.Since(b.start).Milliseconds()
}

// ScheduleAfter arranges a real time.AfterFunc callback.
func (b *RealTimeBackend) ScheduleAfter(ctx context.Context, delay int64, target Dispatchable, message any) (Handle, error) {
	if delay < 0 {
		return Handle{}, ErrBadDelay
	}

	b.mu.Lock()
	b.seq++
	h := NewHandle(b.seq)
	b.mu.Unlock()

	timer := time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		b.mu.Lock()
		delete(b.timers, h)
		b.mu.Unlock()
		target.Dispatch(ctx, message)
	})

	b.mu.Lock()
	b.timers[h] = timer
	b.mu.Unlock()

	return h, nil
}

// Cancel stops a pending real timer.
func (b *RealTimeBackend) Cancel(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	timer, ok := b.timers[h]
	if !ok {
		return ErrNotFound
	}
	timer.Stop()
	delete(b.timers, h)
	return nil
}

var _ TimeBackend = (*RealTimeBackend)(nil)
