package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestRedisLimiterAdmitsUntilQuotaThenRejects(t *testing.T) {
	l, _ := newTestRedisLimiter(t)
	for i := 0; i < 3; i++ {
		d := l.Check("user:alice", 3, true)
		if d.Exceeded {
			t.Fatalf("request %d unexpectedly rejected: %+v", i+1, d)
		}
	}
	d := l.Check("user:alice", 3, true)
	if !d.Exceeded {
		t.Fatalf("request 4 unexpectedly admitted: %+v", d)
	}
	if d.Count != 3 {
		t.Fatalf("rejected request charged the bucket: %+v", d)
	}
}

func TestRedisLimiterPeekDoesNotCharge(t *testing.T) {
	l, mr := newTestRedisLimiter(t)
	for i := 0; i < 3; i++ {
		if d := l.Check("user:bob", 10, false); d.Exceeded {
			t.Fatalf("peek rejected: %+v", d)
		}
	}
	if mr.Exists("quota:user:bob") {
		t.Fatalf("peek created a bucket key")
	}
}

func TestRedisLimiterBucketExpiresAtHourBoundary(t *testing.T) {
	l, mr := newTestRedisLimiter(t)
	// miniredis expires keys against the real clock, so the limiter clock
	// has to stay anchored to it.
	now := time.Now().UTC()
	l.now = fixedClock(now)

	for i := 0; i < 2; i++ {
		l.Check("user:alice", 2, true)
	}
	if d := l.Check("user:alice", 2, true); !d.Exceeded {
		t.Fatalf("unexpected admit: %+v", d)
	}

	// Past the top of the hour the key has expired and a fresh window opens.
	mr.FastForward(time.Hour + time.Minute)
	l.now = fixedClock(now.Add(time.Hour + time.Minute))
	d := l.Check("user:alice", 2, true)
	if d.Exceeded {
		t.Fatalf("bucket survived the hour boundary: %+v", d)
	}
	if d.Count != 1 {
		t.Fatalf("unexpected count in fresh window: %+v", d)
	}
}

func TestRedisLimiterFallsBackWhenRedisDown(t *testing.T) {
	l, mr := newTestRedisLimiter(t)
	mr.Close()
	for i := 0; i < 2; i++ {
		if d := l.Check("user:alice", 2, true); d.Exceeded {
			t.Fatalf("fallback rejected request %d: %+v", i+1, d)
		}
	}
	if d := l.Check("user:alice", 2, true); !d.Exceeded {
		t.Fatalf("fallback lost the count: %+v", d)
	}
}

func TestRedisLimiterNilClientUsesFallback(t *testing.T) {
	l := NewRedis(nil)
	if d := l.Check("user:alice", 1, true); d.Exceeded {
		t.Fatalf("unexpected rejection: %+v", d)
	}
	if d := l.Check("user:alice", 1, true); !d.Exceeded {
		t.Fatalf("unexpected admit: %+v", d)
	}
}
