package vtserver

import (
	"context"
	"testing"

	"github.com/signalsfoundry/vtsim/timectrl"
	"github.com/signalsfoundry/vtsim/vclock"
)

// staticRouter resolves names from a plain map, standing in for the
// engine-owned registry in tests.
type staticRouter struct {
	targets map[string]timectrl.Dispatchable
}

func (r *staticRouter) Resolve(name string) (timectrl.Dispatchable, bool) {
	d, ok := r.targets[name]
	return d, ok
}

// echoCallbacks replies to every call with the request payload, casts
// increment a counter, and info messages are recorded verbatim.
type echoCallbacks struct {
	casts []any
	infos []any
}

func (e *echoCallbacks) Init(args any) (any, error) { return e, nil }

func (e *echoCallbacks) HandleCall(_ context.Context, msg any, _ string, state any) CallbackResult {
	return Reply(state, msg)
}

func (e *echoCallbacks) HandleCast(_ context.Context, msg any, state any) CallbackResult {
	e.casts = append(e.casts, msg)
	return OK(state)
}

func (e *echoCallbacks) HandleInfo(_ context.Context, msg any, state any) CallbackResult {
	e.infos = append(e.infos, msg)
	return OK(state)
}

func (e *echoCallbacks) Terminate(context.Context, error, any) {}

func TestServer_CastIsDelivered(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	ctx := context.Background()

	cbs := &echoCallbacks{}
	router := &staticRouter{targets: map[string]timectrl.Dispatchable{}}
	srv, err := New("echo", backend, router, cbs, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	router.targets["echo"] = srv

	if err := srv.Cast(ctx, "echo", "ping"); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if _, err := clock.Advance(ctx, 0); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(cbs.casts) != 1 || cbs.casts[0] != "ping" {
		t.Fatalf("expected cast delivered, got %v", cbs.casts)
	}
}

func TestServer_CallReceivesReply(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	ctx := context.Background()

	router := &staticRouter{targets: map[string]timectrl.Dispatchable{}}

	echo := &echoCallbacks{}
	echoSrv, err := New("echo", backend, router, echo, nil)
	if err != nil {
		t.Fatalf("New echo: %v", err)
	}
	router.targets["echo"] = echoSrv

	caller := &echoCallbacks{}
	callerSrv, err := New("caller", backend, router, caller, nil)
	if err != nil {
		t.Fatalf("New caller: %v", err)
	}
	router.targets["caller"] = callerSrv

	if err := callerSrv.Call(ctx, "echo", "question"); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if _, err := clock.Advance(ctx, 1); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if len(caller.infos) != 1 {
		t.Fatalf("expected one info message delivered to caller, got %d", len(caller.infos))
	}
	result, ok := caller.infos[0].(CallResult)
	if !ok {
		t.Fatalf("expected CallResult, got %T", caller.infos[0])
	}
	if result.Err != nil {
		t.Fatalf("expected no error, got %v", result.Err)
	}
	if result.Value != "question" {
		t.Fatalf("expected echoed value, got %v", result.Value)
	}
}

func TestServer_CallTimesOutWhenNoReply(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	ctx := context.Background()

	router := &staticRouter{targets: map[string]timectrl.Dispatchable{}}

	// silentCallbacks never replies, forcing the timeout path.
	silent := &silentCallbacks{}
	silentSrv, err := New("silent", backend, router, silent, nil)
	if err != nil {
		t.Fatalf("New silent: %v", err)
	}
	router.targets["silent"] = silentSrv

	caller := &echoCallbacks{}
	callerSrv, err := New("caller", backend, router, caller, nil, WithCallTimeout(100))
	if err != nil {
		t.Fatalf("New caller: %v", err)
	}
	router.targets["caller"] = callerSrv

	if err := callerSrv.Call(ctx, "silent", "question"); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if _, err := clock.Advance(ctx, 100); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if len(caller.infos) != 1 {
		t.Fatalf("expected exactly one info delivery (the timeout), got %d", len(caller.infos))
	}
	result, ok := caller.infos[0].(CallResult)
	if !ok {
		t.Fatalf("expected CallResult, got %T", caller.infos[0])
	}
	if result.Err != ErrCallTimeout {
		t.Fatalf("expected ErrCallTimeout, got %v", result.Err)
	}
}

type silentCallbacks struct{}

func (silentCallbacks) Init(any) (any, error) { return nil, nil }
func (silentCallbacks) HandleCall(_ context.Context, _ any, _ string, state any) CallbackResult {
	return OK(state)
}
func (silentCallbacks) HandleCast(_ context.Context, _ any, state any) CallbackResult {
	return OK(state)
}
func (silentCallbacks) HandleInfo(_ context.Context, _ any, state any) CallbackResult {
	return OK(state)
}
func (silentCallbacks) Terminate(context.Context, error, any) {}

func TestServer_UnknownTargetReturnsError(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	ctx := context.Background()

	router := &staticRouter{targets: map[string]timectrl.Dispatchable{}}
	cbs := &echoCallbacks{}
	srv, err := New("lonely", backend, router, cbs, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	router.targets["lonely"] = srv

	if err := srv.Send(ctx, "nobody", "x"); err != ErrUnknownTarget {
		t.Fatalf("got %v, want ErrUnknownTarget", err)
	}
}

func TestServer_SleepDeliversWakeSignal(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	ctx := context.Background()

	router := &staticRouter{targets: map[string]timectrl.Dispatchable{}}
	cbs := &echoCallbacks{}
	srv, err := New("sleeper", backend, router, cbs, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	router.targets["sleeper"] = srv

	if _, err := srv.Sleep(ctx, 50); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if _, err := clock.Advance(ctx, 50); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if len(cbs.infos) != 1 {
		t.Fatalf("expected one info delivery, got %d", len(cbs.infos))
	}
	if _, ok := cbs.infos[0].(WakeSignal); !ok {
		t.Fatalf("expected WakeSignal, got %T", cbs.infos[0])
	}
}

// TestServer_StopCancelsOutstandingTimers exercises the fix for the
// self-timer leak: an outstanding Sleep wake must be cancelled by Stop so no
// scheduled events survive it (spec.md §5/§8).
func TestServer_StopCancelsOutstandingTimers(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	ctx := context.Background()

	router := &staticRouter{targets: map[string]timectrl.Dispatchable{}}
	cbs := &echoCallbacks{}
	srv, err := New("sleeper", backend, router, cbs, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	router.targets["sleeper"] = srv

	if _, err := srv.Sleep(ctx, 10_000); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if got := clock.Pending(); got != 1 {
		t.Fatalf("Pending() before Stop = %d, want 1 (sleep wake)", got)
	}

	srv.Stop(ctx, nil)

	if got := clock.Pending(); got != 0 {
		t.Fatalf("Pending() after Stop = %d, want 0 (sleep wake cancelled)", got)
	}
}

// TestServer_StopCancelsPendingCallTimeout covers the other half of the same
// fix: a Call awaiting reply schedules its own timeout timer, which Stop
// must also cancel.
func TestServer_StopCancelsPendingCallTimeout(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	ctx := context.Background()

	router := &staticRouter{targets: map[string]timectrl.Dispatchable{}}

	silent := &silentCallbacks{}
	silentSrv, err := New("silent", backend, router, silent, nil)
	if err != nil {
		t.Fatalf("New silent: %v", err)
	}
	router.targets["silent"] = silentSrv

	caller := &echoCallbacks{}
	callerSrv, err := New("caller", backend, router, caller, nil, WithCallTimeout(100))
	if err != nil {
		t.Fatalf("New caller: %v", err)
	}
	router.targets["caller"] = callerSrv

	if err := callerSrv.Call(ctx, "silent", "question"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	// Drain the call's own delivery to "silent"; only its timeout timer,
	// owned by "caller", should remain pending.
	if _, err := clock.Advance(ctx, 0); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := clock.Pending(); got != 1 {
		t.Fatalf("Pending() before Stop = %d, want 1 (call timeout)", got)
	}

	callerSrv.Stop(ctx, nil)

	if got := clock.Pending(); got != 0 {
		t.Fatalf("Pending() after Stop = %d, want 0 (call timeout cancelled)", got)
	}
}
