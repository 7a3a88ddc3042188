package resilience

import (
	"testing"
	"time"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	p := BackoffPolicy{Base: 2 * time.Second, MaxRetries: 3}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		if d := p.Delay(attempt); d != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt, d, expected)
		}
	}
}

func TestBackoffPolicy_DelayIsStrictlyIncreasing(t *testing.T) {
	p := BackoffPolicy{Base: 100 * time.Millisecond}
	prev := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		d := p.Delay(attempt)
		if d <= prev {
			t.Fatalf("Delay(%d) = %v, not greater than Delay(%d) = %v", attempt, d, attempt-1, prev)
		}
		prev = d
	}
}

func TestBackoffPolicy_ZeroValueDefaults(t *testing.T) {
	var p BackoffPolicy
	if d := p.Delay(0); d != 2*time.Second {
		t.Errorf("zero-value Delay(0) = %v, want 2s", d)
	}
	if n := p.Attempts(); n != 4 {
		t.Errorf("zero-value Attempts = %d, want 4", n)
	}
}

func TestBackoffPolicy_Attempts(t *testing.T) {
	if n := (BackoffPolicy{MaxRetries: 2}).Attempts(); n != 3 {
		t.Errorf("Attempts = %d, want 3", n)
	}
	if n := (BackoffPolicy{MaxRetries: -1}).Attempts(); n != 1 {
		t.Errorf("Attempts with negative retries = %d, want 1", n)
	}
}
