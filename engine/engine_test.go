package engine

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/vtsim/actorsim"
	"github.com/signalsfoundry/vtsim/vtserver"
)

func noWaitPatience(int64) time.Duration { return time.Microsecond }

// TestScenario_PeriodicSender mirrors spec.md §8 scenario 1.
func TestScenario_PeriodicSender(t *testing.T) {
	ctx := context.Background()
	eng := New(WithTrace(true, 0), WithQuiescencePatience(noWaitPatience))
	defer eng.Stop(ctx)

	var received int
	if err := eng.AddActor(ctx, "producer", actorsim.Definition{
		SendPattern: actorsim.Periodic(100, "data"),
		Targets:     []string{"consumer"},
	}); err != nil {
		t.Fatalf("AddActor producer: %v", err)
	}
	if err := eng.AddActor(ctx, "consumer", actorsim.Definition{
		Receive: countingReceive(&received),
	}); err != nil {
		t.Fatalf("AddActor consumer: %v", err)
	}

	if err := eng.Run(ctx, RunOptions{Duration: 1000}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := eng.Stats()
	if snap.SentCount("producer") != 10 {
		t.Fatalf("sent_count[producer] = %d, want 10", snap.SentCount("producer"))
	}
	if snap.ReceivedCount("consumer") != 10 {
		t.Fatalf("received_count[consumer] = %d, want 10", snap.ReceivedCount("consumer"))
	}
	if len(eng.Trace()) != 10 {
		t.Fatalf("trace length = %d, want 10", len(eng.Trace()))
	}
	if eng.ActualDuration() != 1000 {
		t.Fatalf("ActualDuration() = %d, want 1000", eng.ActualDuration())
	}
	if eng.TerminatedEarly() {
		t.Fatalf("expected TerminatedEarly() = false in fixed-duration mode")
	}
}

// TestScenario_TerminationPredicate mirrors spec.md §8 scenario 2.
func TestScenario_TerminationPredicate(t *testing.T) {
	ctx := context.Background()
	eng := New(WithQuiescencePatience(noWaitPatience))
	defer eng.Stop(ctx)

	var received int
	if err := eng.AddActor(ctx, "producer", actorsim.Definition{
		SendPattern: actorsim.Periodic(100, "data"),
		Targets:     []string{"consumer"},
	}); err != nil {
		t.Fatalf("AddActor producer: %v", err)
	}
	if err := eng.AddActor(ctx, "consumer", actorsim.Definition{
		Receive: countingReceive(&received),
	}); err != nil {
		t.Fatalf("AddActor consumer: %v", err)
	}

	err := eng.Run(ctx, RunOptions{
		MaxDuration:   10_000,
		TerminateWhen: "sent_count(producer) >= 10",
		CheckInterval: 100,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if eng.ActualDuration() != 1000 {
		t.Fatalf("ActualDuration() = %d, want 1000", eng.ActualDuration())
	}
	if !eng.TerminatedEarly() {
		t.Fatalf("expected TerminatedEarly() = true")
	}
	if got := eng.Stats().SentCount("producer"); got != 10 {
		t.Fatalf("sent_count[producer] = %d, want 10", got)
	}
}

// TestScenario_Burst mirrors spec.md §8 scenario 4.
func TestScenario_Burst(t *testing.T) {
	ctx := context.Background()
	eng := New(WithTrace(true, 0), WithQuiescencePatience(noWaitPatience))
	defer eng.Stop(ctx)

	var received int
	if err := eng.AddActor(ctx, "bursting", actorsim.Definition{
		SendPattern: actorsim.Burst(10, 1000, "batch"),
		Targets:     []string{"sink"},
	}); err != nil {
		t.Fatalf("AddActor bursting: %v", err)
	}
	if err := eng.AddActor(ctx, "sink", actorsim.Definition{Receive: countingReceive(&received)}); err != nil {
		t.Fatalf("AddActor sink: %v", err)
	}

	if err := eng.Run(ctx, RunOptions{Duration: 5000}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := eng.Stats()
	if snap.SentCount("bursting") != 50 {
		t.Fatalf("sent_count = %d, want 50", snap.SentCount("bursting"))
	}
	if snap.ReceivedCount("sink") != 50 {
		t.Fatalf("received_count = %d, want 50", snap.ReceivedCount("sink"))
	}
	if len(eng.Trace()) != 50 {
		t.Fatalf("trace length = %d, want 50", len(eng.Trace()))
	}
}

// TestScenario_Cancellation mirrors spec.md §8 scenario 6: cancel a
// scheduled event before it fires, confirm it never delivers.
func TestScenario_Cancellation(t *testing.T) {
	ctx := context.Background()
	eng := New(WithQuiescencePatience(noWaitPatience))
	defer eng.Stop(ctx)

	var fired int
	if err := eng.AddActor(ctx, "target", actorsim.Definition{Receive: countingReceive(&fired)}); err != nil {
		t.Fatalf("AddActor target: %v", err)
	}

	srv, ok := eng.Resolve("target")
	if !ok {
		t.Fatalf("expected target to resolve")
	}
	handle, err := eng.backend.ScheduleAfter(ctx, 500, srv, "scheduled")
	if err != nil {
		t.Fatalf("ScheduleAfter: %v", err)
	}

	if _, err := eng.clock.Advance(ctx, 200); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := eng.backend.Cancel(handle); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := eng.clock.Advance(ctx, 800); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if fired != 0 {
		t.Fatalf("expected cancelled event to never fire, got %d deliveries", fired)
	}
}

// TestScenario_EmptyActorGraph mirrors spec.md §8's boundary behavior:
// "Empty actor graph + advance(D) -> actual_duration = D, empty trace."
func TestScenario_EmptyActorGraph(t *testing.T) {
	ctx := context.Background()
	eng := New(WithTrace(true, 0), WithQuiescencePatience(noWaitPatience))
	defer eng.Stop(ctx)

	if err := eng.Run(ctx, RunOptions{Duration: 5000}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if eng.ActualDuration() != 5000 {
		t.Fatalf("ActualDuration() = %d, want 5000", eng.ActualDuration())
	}
	if len(eng.Trace()) != 0 {
		t.Fatalf("expected empty trace, got %d entries", len(eng.Trace()))
	}
}

func TestScenario_DuplicateNameRejected(t *testing.T) {
	ctx := context.Background()
	eng := New()
	defer eng.Stop(ctx)

	if err := eng.AddActor(ctx, "dup", actorsim.Definition{}); err != nil {
		t.Fatalf("AddActor: %v", err)
	}
	if err := eng.AddActor(ctx, "dup", actorsim.Definition{}); err == nil {
		t.Fatalf("expected an error registering a duplicate name")
	}
}

func countingReceive(counter *int) actorsim.ReceiveBehavior {
	return actorsim.FuncBehavior{Fn: func(_ context.Context, _ any, state any) vtserver.CallbackResult {
		*counter++
		return vtserver.OK(state)
	}}
}
