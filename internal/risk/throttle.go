package risk

import (
	"sync"
	"time"
)

// Throttle rate-limits per-job alert emissions. Allow reports whether the
// (job, kind) pair may fire now and, if so, records the emission.
type Throttle interface {
	Allow(jobID int64, kind string, now time.Time) bool
}

type memoryThrottle struct {
	ttl time.Duration

	mu   sync.Mutex
	last map[throttleKey]time.Time
}

type throttleKey struct {
	jobID int64
	kind  string
}

// NewThrottle returns an in-memory Throttle with the given cooldown.
func NewThrottle(ttl time.Duration) Throttle {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &memoryThrottle{ttl: ttl, last: make(map[throttleKey]time.Time)}
}

func (t *memoryThrottle) Allow(jobID int64, kind string, now time.Time) bool {
	key := throttleKey{jobID: jobID, kind: kind}

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[key]; ok && now.Sub(last) < t.ttl {
		return false
	}
	t.last[key] = now

	// Piggybacked eviction keeps the map from growing with finished jobs.
	if len(t.last) > 1024 {
		for k, v := range t.last {
			if now.Sub(v) >= t.ttl {
				delete(t.last, k)
			}
		}
	}
	return true
}

// NopThrottle always allows; used by one-shot CLI commands where a cooldown
// spanning process restarts would need the store anyway.
type NopThrottle struct{}

func (NopThrottle) Allow(int64, string, time.Time) bool { return true }
