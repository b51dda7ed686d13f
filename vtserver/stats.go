package vtserver

import "sync"

// Stats accumulates per-server counters as described in spec.md §4.3/§8:
// enough to answer "how many messages did this server send/receive, and
// over what span of virtual time" without a full trace.
type Stats struct {
	mu            sync.Mutex
	sentCount     uint64
	receivedCount uint64
	firstSendMs   int64
	lastSendMs    int64
	firstRecvMs   int64
	lastRecvMs    int64
}

// unsetTimestamp marks a Stats timestamp field that has never been set.
const unsetTimestamp = -1

func newStats() *Stats {
	return &Stats{
		firstSendMs: unsetTimestamp,
		lastSendMs:  unsetTimestamp,
		firstRecvMs: unsetTimestamp,
		lastRecvMs:  unsetTimestamp,
	}
}

func (s *Stats) recordSend(atMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentCount++
	if s.firstSendMs == unsetTimestamp {
		s.firstSendMs = atMs
	}
	s.lastSendMs = atMs
}

func (s *Stats) recordReceive(atMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivedCount++
	if s.firstRecvMs == unsetTimestamp {
		s.firstRecvMs = atMs
	}
	s.lastRecvMs = atMs
}

// Snapshot is an immutable copy of a Stats at a point in time.
type Snapshot struct {
	SentCount     uint64
	ReceivedCount uint64
	FirstSendMs   int64
	LastSendMs    int64
	FirstRecvMs   int64
	LastRecvMs    int64
}

// Snapshot returns a consistent copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SentCount:     s.sentCount,
		ReceivedCount: s.receivedCount,
		FirstSendMs:   s.firstSendMs,
		LastSendMs:    s.lastSendMs,
		FirstRecvMs:   s.firstRecvMs,
		LastRecvMs:    s.lastRecvMs,
	}
}
