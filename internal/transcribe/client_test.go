package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/whisperkey/whisperkey/internal/resilience"
)

// scriptedProvider returns its queued responses in order, repeating the last
// one once the script runs out.
type scriptedProvider struct {
	calls int
	texts []string
	errs  []error
}

func (s *scriptedProvider) Transcribe(ctx context.Context, req Request) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.errs) {
		i = len(s.errs) - 1
	}
	return s.texts[i], s.errs[i]
}

type fakeLimiter struct {
	quotaCalls int
}

func (f *fakeLimiter) OnQuotaExceeded() { f.quotaCalls++ }

// newTestClient builds a client with an instant sleep that records requested
// waits.
func newTestClient(p Provider, limiter QuotaNotifier) (*Client, *[]time.Duration) {
	var waits []time.Duration
	c := NewClient(ClientConfig{
		Provider: p,
		Limiter:  limiter,
		Backoff:  resilience.BackoffPolicy{Base: 2 * time.Second, MaxRetries: 3},
		sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})
	return c, &waits
}

func TestTranscribe_Success(t *testing.T) {
	p := &scriptedProvider{texts: []string{"  hello world \n"}, errs: []error{nil}}
	c, _ := newTestClient(p, nil)

	res, err := c.Transcribe(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q, want trimmed transcript", res.Text)
	}
	if res.NoSpeech {
		t.Error("NoSpeech set for a real transcript")
	}
}

func TestTranscribe_NoSpeechSentinel(t *testing.T) {
	p := &scriptedProvider{texts: []string{" " + NoSpeechSentinel + " "}, errs: []error{nil}}
	c, _ := newTestClient(p, nil)

	res, err := c.Transcribe(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !res.NoSpeech {
		t.Error("sentinel response did not set NoSpeech")
	}
	if res.Text != "" {
		t.Errorf("text = %q, want empty", res.Text)
	}
}

func TestTranscribe_RetriesTransientWithGrowingBackoff(t *testing.T) {
	transient := &Error{Kind: KindTransient, Message: "upstream overloaded"}
	p := &scriptedProvider{
		texts: []string{"", "", "", "recovered"},
		errs:  []error{transient, transient, transient, nil},
	}
	c, waits := newTestClient(p, nil)

	res, err := c.Transcribe(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "recovered" {
		t.Errorf("text = %q", res.Text)
	}
	if p.calls != 4 {
		t.Errorf("provider calls = %d, want 4", p.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("backoff waits = %v, want %v", *waits, want)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, (*waits)[i], want[i])
		}
	}
}

func TestTranscribe_ExhaustsAttempts(t *testing.T) {
	transient := &Error{Kind: KindTransient, Message: "still down"}
	p := &scriptedProvider{texts: []string{""}, errs: []error{transient}}
	c, _ := newTestClient(p, nil)

	_, err := c.Transcribe(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if p.calls != 4 {
		t.Errorf("provider calls = %d, want 4", p.calls)
	}
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindTransient {
		t.Errorf("exhaustion error does not wrap the last transient failure: %v", err)
	}
}

func TestTranscribe_QuotaNotRetriedAndNotifiesLimiter(t *testing.T) {
	quota := &Error{Kind: KindQuota, StatusCode: 429, Message: "rate limited"}
	limiter := &fakeLimiter{}
	p := &scriptedProvider{texts: []string{""}, errs: []error{quota}}
	c, waits := newTestClient(p, limiter)

	_, err := c.Transcribe(context.Background(), Request{})
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindQuota {
		t.Fatalf("err = %v, want quota error", err)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry on quota)", p.calls)
	}
	if limiter.quotaCalls != 1 {
		t.Errorf("limiter notifications = %d, want 1", limiter.quotaCalls)
	}
	if len(*waits) != 0 {
		t.Errorf("unexpected backoff waits %v", *waits)
	}
}

func TestTranscribe_InvalidNotRetried(t *testing.T) {
	invalid := &Error{Kind: KindInvalid, StatusCode: 401, Message: "bad key"}
	limiter := &fakeLimiter{}
	p := &scriptedProvider{texts: []string{""}, errs: []error{invalid}}
	c, _ := newTestClient(p, limiter)

	_, err := c.Transcribe(context.Background(), Request{})
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindInvalid {
		t.Fatalf("err = %v, want invalid error", err)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
	if limiter.quotaCalls != 0 {
		t.Errorf("limiter notified %d times for an invalid request", limiter.quotaCalls)
	}
}

func TestTranscribe_UnclassifiedErrorTreatedAsTransient(t *testing.T) {
	p := &scriptedProvider{
		texts: []string{"", "late success"},
		errs:  []error{errors.New("connection reset"), nil},
	}
	c, _ := newTestClient(p, nil)

	res, err := c.Transcribe(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "late success" {
		t.Errorf("text = %q", res.Text)
	}
	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls)
	}
}

func TestTranscribe_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{texts: []string{""}, errs: []error{errors.New("cut off")}}
	c := NewClient(ClientConfig{
		Provider: p,
		sleep: func(ctx context.Context, d time.Duration) error {
			return ctx.Err()
		},
	})
	cancel()

	_, err := c.Transcribe(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
}

func TestTranscribe_ProgressNotifications(t *testing.T) {
	transient := &Error{Kind: KindTransient}
	p := &scriptedProvider{
		texts: []string{"", "done"},
		errs:  []error{transient, nil},
	}

	type event struct {
		attempt, total int
		retryIn        time.Duration
	}
	var events []event
	c := NewClient(ClientConfig{
		Provider: p,
		Progress: func(attempt, total int, retryIn time.Duration) {
			events = append(events, event{attempt, total, retryIn})
		},
		Backoff: resilience.BackoffPolicy{Base: time.Second, MaxRetries: 3},
		sleep:   func(ctx context.Context, d time.Duration) error { return nil },
	})

	if _, err := c.Transcribe(context.Background(), Request{}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	// attempt 1 start, attempt 1 backoff announcement, attempt 2 start.
	want := []event{
		{1, 4, 0},
		{1, 4, time.Second},
		{2, 4, 0},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}
}
