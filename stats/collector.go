package stats

import (
	"sort"
	"sync"
)

// unsetTimestamp marks an ActorStats timestamp field that has never been set.
const unsetTimestamp = -1

// ActorStats is the per-actor counters schema of spec.md §6.3.
type ActorStats struct {
	SentCount     uint64
	ReceivedCount uint64
	FirstSendTime int64
	LastSendTime  int64
	RatePerSecond float64
}

// Snapshot is the engine-wide statistics schema of spec.md §6.3.
type Snapshot struct {
	Actors        map[string]ActorStats
	TotalMessages uint64
	StartTime     int64
	EndTime       int64
}

// SentCount returns the sent_count for name, or 0 if name is unknown; this
// is the exact accessor internal/predicate expressions like
// "sent_count(producer) >= 10" resolve against.
func (s Snapshot) SentCount(name string) uint64 { return s.Actors[name].SentCount }

// ReceivedCount returns the received_count for name, or 0 if unknown.
func (s Snapshot) ReceivedCount(name string) uint64 { return s.Actors[name].ReceivedCount }

// Collector is the engine's single-writer aggregate of per-actor counters
// and an ordered trace (spec.md §4.5.2, §5 "Shared-resource policy": "The
// trace collector is single-writer from the engine's perspective").
type Collector struct {
	mu        sync.Mutex
	actors    map[string]*ActorStats
	trace     []TraceEvent
	traceOn   bool
	traceCap  int
	startTime int64
}

// New constructs a Collector. traceEnabled matches spec.md §4.5's
// `new({trace: bool})`; traceCap bounds trace growth (0 means unbounded),
// per spec.md §4.5.2's "bounded-growth list".
func New(traceEnabled bool, traceCap int) *Collector {
	return &Collector{
		actors:   make(map[string]*ActorStats),
		traceOn:  traceEnabled,
		traceCap: traceCap,
	}
}

// Start records the virtual time the run began, for rate_per_second math.
func (c *Collector) Start(nowMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = nowMs
}

// StartTime returns the virtual time most recently passed to Start.
func (c *Collector) StartTime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime
}

// RecordSend updates an actor's send counters and, if tracing is enabled,
// appends a TraceEvent in insertion order (spec.md §4.4 "Trace emission").
func (c *Collector) RecordSend(atMs int64, from, to string, message any, kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.entryLocked(from)
	a.SentCount++
	if a.FirstSendTime == unsetTimestamp {
		a.FirstSendTime = atMs
	}
	a.LastSendTime = atMs

	if c.traceOn {
		if c.traceCap == 0 || len(c.trace) < c.traceCap {
			c.trace = append(c.trace, TraceEvent{Timestamp: atMs, From: from, To: to, Message: message, Kind: kind})
		}
	}
}

// RecordReceive updates an actor's received counter.
func (c *Collector) RecordReceive(to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entryLocked(to).ReceivedCount++
}

func (c *Collector) entryLocked(name string) *ActorStats {
	a, ok := c.actors[name]
	if !ok {
		a = &ActorStats{FirstSendTime: unsetTimestamp, LastSendTime: unsetTimestamp}
		c.actors[name] = a
	}
	return a
}

// Snapshot returns a consistent, immutable copy of the collector's current
// state as of endMs (spec.md §4.5.1: "the predicate must see effects that
// have already occurred").
func (c *Collector) Snapshot(endMs int64) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	actors := make(map[string]ActorStats, len(c.actors))
	var total uint64
	for name, a := range c.actors {
		cp := *a
		if endMs > c.startTime {
			cp.RatePerSecond = float64(cp.SentCount) * 1000 / float64(endMs-c.startTime)
		}
		actors[name] = cp
		total += a.SentCount
	}

	return Snapshot{
		Actors:        actors,
		TotalMessages: total,
		StartTime:     c.startTime,
		EndTime:       endMs,
	}
}

// Trace returns a copy of the accumulated trace in
// (timestamp, insertion_index) order (spec.md §6.4). RecordSend appends in
// scheduling order, not delivery-timestamp order — a delayed send
// (ResultSendAfter) stamps a future timestamp but may still be followed by
// an immediate (delay-0) send recorded later, so the merge here
// stable-sorts by Timestamp, preserving insertion order among ties, per
// spec.md §4.5.2.
func (c *Collector) Trace() []TraceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TraceEvent, len(c.trace))
	copy(out, c.trace)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
