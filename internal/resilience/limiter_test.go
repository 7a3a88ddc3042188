package resilience

import (
	"context"
	"testing"
	"time"
)

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(LimiterConfig{})
	if l.MinInterval() != 2*time.Second {
		t.Errorf("MinInterval = %v, want 2s", l.MinInterval())
	}
	if l.maxInterval != 60*time.Second {
		t.Errorf("maxInterval = %v, want 60s", l.maxInterval)
	}
}

func TestLimiter_FirstCallDoesNotWait(t *testing.T) {
	l := NewLimiter(LimiterConfig{MinInterval: time.Hour})

	start := time.Now()
	if err := l.AwaitSlot(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first AwaitSlot took %v, want immediate", elapsed)
	}
}

func TestLimiter_EnforcesSpacing(t *testing.T) {
	const interval = 50 * time.Millisecond
	l := NewLimiter(LimiterConfig{MinInterval: interval})

	if err := l.AwaitSlot(context.Background()); err != nil {
		t.Fatalf("first slot: %v", err)
	}
	first := time.Now()
	if err := l.AwaitSlot(context.Background()); err != nil {
		t.Fatalf("second slot: %v", err)
	}
	if spacing := time.Since(first); spacing < interval-5*time.Millisecond {
		t.Errorf("calls spaced %v apart, want >= %v", spacing, interval)
	}
}

func TestLimiter_AwaitSlotHonoursContext(t *testing.T) {
	l := NewLimiter(LimiterConfig{MinInterval: time.Hour})
	if err := l.AwaitSlot(context.Background()); err != nil {
		t.Fatalf("first slot: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.AwaitSlot(ctx); err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestLimiter_QuotaWidensInterval(t *testing.T) {
	l := NewLimiter(LimiterConfig{MinInterval: time.Second, MaxInterval: 5 * time.Second})

	l.OnQuotaExceeded()
	if l.MinInterval() != 2*time.Second {
		t.Errorf("after first quota trip: %v, want 2s", l.MinInterval())
	}
	l.OnQuotaExceeded()
	if l.MinInterval() != 4*time.Second {
		t.Errorf("after second quota trip: %v, want 4s", l.MinInterval())
	}

	// Ceiling: 4s × 2 = 8s is clamped to 5s, and further trips stay there.
	l.OnQuotaExceeded()
	if l.MinInterval() != 5*time.Second {
		t.Errorf("after third quota trip: %v, want ceiling 5s", l.MinInterval())
	}
	l.OnQuotaExceeded()
	if l.MinInterval() != 5*time.Second {
		t.Errorf("interval moved past ceiling: %v", l.MinInterval())
	}
}

func TestLimiter_IntervalNeverDecreasesOnQuota(t *testing.T) {
	l := NewLimiter(LimiterConfig{MinInterval: time.Second, MaxInterval: time.Minute})
	prev := l.MinInterval()
	for i := 0; i < 10; i++ {
		l.OnQuotaExceeded()
		if cur := l.MinInterval(); cur < prev {
			t.Fatalf("interval decreased from %v to %v on trip %d", prev, cur, i)
		} else {
			prev = cur
		}
	}
}

func TestLimiter_ResetRestoresInitialInterval(t *testing.T) {
	l := NewLimiter(LimiterConfig{MinInterval: time.Second, MaxInterval: time.Minute})
	l.OnQuotaExceeded()
	l.OnQuotaExceeded()
	l.Reset()
	if l.MinInterval() != time.Second {
		t.Errorf("after Reset: %v, want 1s", l.MinInterval())
	}
}
