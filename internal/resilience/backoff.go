package resilience

import "time"

// BackoffPolicy computes exponential retry delays for transient remote
// failures. It is independent of the [Limiter]: backoff governs the spacing
// of retries inside one logical request, while the limiter governs the
// spacing between requests.
type BackoffPolicy struct {
	// Base is the delay before the first retry. Default: 2s.
	Base time.Duration

	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3 (four attempts total).
	MaxRetries int
}

// DefaultBackoff is the retry policy used by the transcription client unless
// a caller overrides it.
var DefaultBackoff = BackoffPolicy{Base: 2 * time.Second, MaxRetries: 3}

// Delay returns the wait before retrying after the given zero-based attempt:
// Base × 2^attempt. Attempt 0 is the first (failed) attempt, so the waits for
// the default policy are 2s, 4s, 8s.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 2 * time.Second
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Attempts returns the total number of attempts the policy permits,
// including the initial one.
func (p BackoffPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	if p.MaxRetries == 0 {
		return DefaultBackoff.MaxRetries + 1
	}
	return p.MaxRetries + 1
}
