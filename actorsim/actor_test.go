package actorsim

import (
	"context"
	"testing"

	"github.com/signalsfoundry/vtsim/timectrl"
	"github.com/signalsfoundry/vtsim/vclock"
	"github.com/signalsfoundry/vtsim/vtserver"
)

type registry struct {
	targets map[string]timectrl.Dispatchable
}

func newRegistry() *registry { return &registry{targets: make(map[string]timectrl.Dispatchable)} }

func (r *registry) Resolve(name string) (timectrl.Dispatchable, bool) {
	d, ok := r.targets[name]
	return d, ok
}

// spawn wires an Actor to a fresh vtserver.Server registered in reg under
// name, and starts its tick chain.
func spawn(t *testing.T, ctx context.Context, backend timectrl.TimeBackend, reg *registry, name string, def Definition) *Actor {
	t.Helper()
	actor := NewActor(name, def)
	srv, err := vtserver.New(name, backend, reg, actor, nil, vtserver.WithStats())
	if err != nil {
		t.Fatalf("vtserver.New(%s): %v", name, err)
	}
	actor.Bind(srv)
	reg.targets[name] = srv
	if err := actor.Start(ctx); err != nil {
		t.Fatalf("Start(%s): %v", name, err)
	}
	return actor
}

// countingBehavior counts every message it receives into the pointed-to int.
func countingBehavior(counter *int) ReceiveBehavior {
	return FuncBehavior{Fn: func(_ context.Context, _ any, state any) vtserver.CallbackResult {
		*counter++
		return vtserver.OK(state)
	}}
}

func TestActor_PeriodicSender(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	reg := newRegistry()
	ctx := context.Background()

	var received int
	spawn(t, ctx, backend, reg, "producer", Definition{
		SendPattern: Periodic(100, "data"),
		Targets:     []string{"consumer"},
	})
	spawn(t, ctx, backend, reg, "consumer", Definition{
		Receive: countingBehavior(&received),
	})

	if _, err := clock.Advance(ctx, 1000); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	producerStats := reg.targets["producer"].(*vtserver.Server).Stats()
	consumerStats := reg.targets["consumer"].(*vtserver.Server).Stats()

	if producerStats.SentCount != 10 {
		t.Fatalf("producer sent_count = %d, want 10", producerStats.SentCount)
	}
	if consumerStats.ReceivedCount != 10 {
		t.Fatalf("consumer received_count = %d, want 10", consumerStats.ReceivedCount)
	}
	if received != 10 {
		t.Fatalf("consumer behavior invocations = %d, want 10", received)
	}
}

func TestActor_Burst(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	reg := newRegistry()
	ctx := context.Background()

	var received int
	spawn(t, ctx, backend, reg, "bursting", Definition{
		SendPattern: Burst(10, 1000, "batch"),
		Targets:     []string{"sink"},
	})
	spawn(t, ctx, backend, reg, "sink", Definition{
		Receive: countingBehavior(&received),
	})

	if _, err := clock.Advance(ctx, 5000); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if received != 50 {
		t.Fatalf("sink received %d messages, want 50", received)
	}
}

func TestActor_BurstOneEquivalentToPeriodic(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	reg := newRegistry()
	ctx := context.Background()

	var received int
	spawn(t, ctx, backend, reg, "producer", Definition{
		SendPattern: Burst(1, 100, "data"),
		Targets:     []string{"consumer"},
	})
	spawn(t, ctx, backend, reg, "consumer", Definition{
		Receive: countingBehavior(&received),
	})

	if _, err := clock.Advance(ctx, 1000); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if received != 10 {
		t.Fatalf("burst(1, ...) delivered %d messages, want 10 (same as periodic)", received)
	}
}

func TestActor_MatchBehaviorFirstMatchWins(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	reg := newRegistry()
	ctx := context.Background()

	var hits []string
	behavior := MatchBehavior{Cases: []MatchCase{
		{
			Match: func(msg any) bool { return msg == "special" },
			Handle: func(_ context.Context, _ any, state any) vtserver.CallbackResult {
				hits = append(hits, "special-handler")
				return vtserver.OK(state)
			},
		},
		{
			Match: func(any) bool { return true },
			Handle: func(_ context.Context, _ any, state any) vtserver.CallbackResult {
				hits = append(hits, "catch-all")
				return vtserver.OK(state)
			},
		},
	}}

	spawn(t, ctx, backend, reg, "matcher", Definition{Receive: behavior})
	srv := reg.targets["matcher"].(*vtserver.Server)

	if err := srv.Cast(ctx, "matcher", "special"); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if err := srv.Cast(ctx, "matcher", "other"); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if _, err := clock.Advance(ctx, 0); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	want := []string{"special-handler", "catch-all"}
	if len(hits) != len(want) {
		t.Fatalf("got %v, want %v", hits, want)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, hits[i], want[i])
		}
	}
}

func TestActor_NoMatchSilentlyDropped(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	reg := newRegistry()
	ctx := context.Background()

	behavior := MatchBehavior{Cases: []MatchCase{
		{
			Match: func(msg any) bool { return msg == "only-this" },
			Handle: func(_ context.Context, _ any, state any) vtserver.CallbackResult {
				t.Fatalf("handler should not run for a non-matching message")
				return vtserver.OK(state)
			},
		},
	}}

	spawn(t, ctx, backend, reg, "matcher", Definition{Receive: behavior})
	srv := reg.targets["matcher"].(*vtserver.Server)

	if err := srv.Cast(ctx, "matcher", "unrelated"); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if _, err := clock.Advance(ctx, 0); err != nil {
		t.Fatalf("Advance: %v", err)
	}
}

func TestActor_NonePatternIsReceiveOnly(t *testing.T) {
	clock := vclock.New()
	backend := vclock.NewBackend(clock)
	reg := newRegistry()
	ctx := context.Background()

	spawn(t, ctx, backend, reg, "quiet", Definition{SendPattern: None()})

	if _, err := clock.Advance(ctx, 10_000); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	stats := reg.targets["quiet"].(*vtserver.Server).Stats()
	if stats.SentCount != 0 {
		t.Fatalf("PatternNone actor sent %d messages, want 0", stats.SentCount)
	}
}
