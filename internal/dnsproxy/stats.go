package dnsproxy

import (
	"sync/atomic"
	"time"
)

// Stats holds the monotonic query counters. Cleared only on process
// restart; all fields are updated with atomic operations so the
// listener never blocks on statistics bookkeeping.
type Stats struct {
	started  time.Time
	seen     atomic.Uint64
	blocked  atomic.Uint64
	allowed  atomic.Uint64
	errors   atomic.Uint64
}

func newStats() *Stats {
	return &Stats{started: time.Now()}
}

// Snapshot is an immutable point-in-time copy of Stats for reporting.
type Snapshot struct {
	QueriesSeen    uint64
	QueriesBlocked uint64
	QueriesAllowed uint64
	ForwardErrors  uint64
	Uptime         time.Duration
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		QueriesSeen:    s.seen.Load(),
		QueriesBlocked: s.blocked.Load(),
		QueriesAllowed: s.allowed.Load(),
		ForwardErrors:  s.errors.Load(),
		Uptime:         time.Since(s.started),
	}
}
