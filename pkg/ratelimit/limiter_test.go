package ratelimit

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestInMemoryAdmitsUntilQuotaThenRejects(t *testing.T) {
	l := NewInMemory()
	for i := 0; i < 10; i++ {
		d := l.Check("user:alice", 10, true)
		if d.Exceeded {
			t.Fatalf("request %d unexpectedly rejected: %+v", i+1, d)
		}
		if d.Remaining != 10-(i+1) {
			t.Fatalf("unexpected remaining after request %d: %+v", i+1, d)
		}
	}
	d := l.Check("user:alice", 10, true)
	if !d.Exceeded {
		t.Fatalf("request 11 unexpectedly admitted: %+v", d)
	}
	if d.Count != 10 || d.Remaining != 0 {
		t.Fatalf("unexpected decision on rejection: %+v", d)
	}
}

func TestInMemoryRejectionDoesNotCharge(t *testing.T) {
	l := NewInMemory()
	for i := 0; i < 3; i++ {
		l.Check("ip:10.0.0.1", 3, true)
	}
	for i := 0; i < 5; i++ {
		d := l.Check("ip:10.0.0.1", 3, true)
		if !d.Exceeded {
			t.Fatalf("unexpected admit after exhaustion: %+v", d)
		}
		if d.Count != 3 {
			t.Fatalf("rejected request charged the bucket: %+v", d)
		}
	}
}

func TestInMemoryPeekDoesNotCharge(t *testing.T) {
	l := NewInMemory()
	for i := 0; i < 4; i++ {
		d := l.Check("user:bob", 10, false)
		if d.Exceeded || d.Count != 0 || d.Remaining != 10 {
			t.Fatalf("peek %d mutated the bucket: %+v", i+1, d)
		}
	}
	d := l.Check("user:bob", 10, true)
	if d.Count != 1 {
		t.Fatalf("unexpected count after first charge: %+v", d)
	}
}

func TestInMemoryKeysAreIndependent(t *testing.T) {
	l := NewInMemory()
	for i := 0; i < 5; i++ {
		l.Check("user:alice", 5, true)
	}
	if d := l.Check("user:alice", 5, true); !d.Exceeded {
		t.Fatalf("alice unexpectedly admitted: %+v", d)
	}
	if d := l.Check("ip:10.0.0.1", 5, true); d.Exceeded {
		t.Fatalf("unrelated key rejected: %+v", d)
	}
}

func TestInMemoryResetAtIsTopOfHour(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 23, 45, 0, time.UTC)
	l := NewInMemory()
	l.now = fixedClock(now)
	l.windowEnd = NextReset(now)

	d := l.Check("user:alice", 10, true)
	want := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	if !d.ResetAt.Equal(want) {
		t.Fatalf("unexpected ResetAt: got %v want %v", d.ResetAt, want)
	}
}

func TestInMemoryWindowClearsAtHourBoundary(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 59, 0, 0, time.UTC)
	l := NewInMemory()
	l.now = fixedClock(now)
	l.windowEnd = NextReset(now)

	for i := 0; i < 5; i++ {
		l.Check("user:alice", 5, true)
	}
	if d := l.Check("user:alice", 5, true); !d.Exceeded {
		t.Fatalf("unexpected admit before boundary: %+v", d)
	}

	l.now = fixedClock(time.Date(2024, 3, 5, 15, 0, 1, 0, time.UTC))
	d := l.Check("user:alice", 5, true)
	if d.Exceeded {
		t.Fatalf("bucket survived the hour boundary: %+v", d)
	}
	if d.Count != 1 {
		t.Fatalf("unexpected count in fresh window: %+v", d)
	}
	want := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)
	if !d.ResetAt.Equal(want) {
		t.Fatalf("unexpected ResetAt in fresh window: %+v", d)
	}
}

func TestInMemoryZeroTotalStillAdmitsOne(t *testing.T) {
	l := NewInMemory()
	if d := l.Check("user:alice", 0, true); d.Exceeded {
		t.Fatalf("unexpected rejection with degenerate total: %+v", d)
	}
	if d := l.Check("user:alice", 0, true); !d.Exceeded {
		t.Fatalf("unexpected admit past degenerate total: %+v", d)
	}
}

func TestNextReset(t *testing.T) {
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC), time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := NextReset(tc.now); !got.Equal(tc.want) {
			t.Fatalf("NextReset(%v) = %v, want %v", tc.now, got, tc.want)
		}
	}
}
