// Package ratelimit enforces hourly request quotas. Buckets live for one
// clock-hour window: every bucket is cleared at the top of the hour and
// ResetAt always reports that boundary. Keys carry their partition prefix
// ("user:<id>" for authenticated callers, "ip:<addr>" for anonymous).
package ratelimit

import (
	"sync"
	"time"
)

type Decision struct {
	Exceeded  bool
	Count     int
	Total     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	// Check reports quota state for key. When increase is true and the
	// quota is not exhausted the count is incremented by exactly one;
	// rejected requests are never charged.
	Check(key string, total int, increase bool) Decision
}

type InMemoryLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	windowEnd time.Time
	now       func() time.Time
}

func NewInMemory() *InMemoryLimiter {
	l := &InMemoryLimiter{
		counts: map[string]int{},
		now:    time.Now,
	}
	l.windowEnd = NextReset(l.now().UTC())
	return l
}

// NextReset is the next exact top-of-hour boundary after now.
func NextReset(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}

func (l *InMemoryLimiter) Check(key string, total int, increase bool) Decision {
	if total <= 0 {
		total = 1
	}
	now := l.now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	// The boundary wipe runs under the same mutex as increments, so a
	// request either completes against the old window or the fresh one,
	// never a mix of both.
	if !now.Before(l.windowEnd) {
		l.counts = map[string]int{}
		l.windowEnd = NextReset(now)
	}
	count := l.counts[key]
	exceeded := count >= total
	if !exceeded && increase {
		count++
		l.counts[key] = count
	}
	remaining := total - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Exceeded:  exceeded,
		Count:     count,
		Total:     total,
		Remaining: remaining,
		ResetAt:   l.windowEnd,
	}
}
