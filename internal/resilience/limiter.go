// Package resilience provides the request-spacing and retry-backoff
// primitives for the transcription pipeline.
//
// The central type is [Limiter], which enforces a minimum interval between
// outbound transcription requests and widens that interval when the remote
// endpoint reports quota exhaustion. [BackoffPolicy] computes the exponential
// delays used between retries of transient failures; the two mechanisms are
// deliberately independent.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LimiterConfig holds tuning knobs for a [Limiter].
type LimiterConfig struct {
	// MinInterval is the initial minimum spacing between requests. Default: 2s.
	MinInterval time.Duration

	// MaxInterval is the hard ceiling the interval can grow to under
	// sustained quota rejections. Default: 60s.
	MaxInterval time.Duration
}

// Limiter spaces outbound requests so that two calls are never admitted
// closer together than the current minimum interval. The interval doubles on
// every quota rejection, up to the configured ceiling, and is only restored
// by [Limiter.Reset] or a process restart.
//
// Limiter does not queue waiters; the session state machine guarantees at
// most one caller at a time.
type Limiter struct {
	maxInterval time.Duration

	mu          sync.Mutex
	minInterval time.Duration
	initial     time.Duration
	lastCall    time.Time
}

// NewLimiter creates a [Limiter] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 2 * time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 60 * time.Second
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	return &Limiter{
		maxInterval: cfg.MaxInterval,
		minInterval: cfg.MinInterval,
		initial:     cfg.MinInterval,
	}
}

// AwaitSlot blocks until at least the current minimum interval has elapsed
// since the previous admitted call, then stamps the call time and returns.
// Returns ctx.Err() if the context is cancelled while waiting.
func (l *Limiter) AwaitSlot(ctx context.Context) error {
	l.mu.Lock()
	wait := l.minInterval - time.Since(l.lastCall)
	l.mu.Unlock()

	if wait > 0 {
		slog.Debug("rate limiter: waiting for slot", "wait", wait)
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.mu.Lock()
	l.lastCall = time.Now()
	l.mu.Unlock()
	return nil
}

// OnQuotaExceeded doubles the minimum interval up to the configured ceiling.
// The widened interval persists for the process lifetime; individual
// successful calls do not shrink it.
func (l *Limiter) OnQuotaExceeded() {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.minInterval * 2
	if next > l.maxInterval {
		next = l.maxInterval
	}
	if next != l.minInterval {
		slog.Warn("rate limiter: quota exceeded, widening request spacing",
			"old", l.minInterval, "new", next)
		l.minInterval = next
	}
}

// Reset restores the minimum interval to its initial configured value.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minInterval = l.initial
}

// MinInterval returns the current minimum spacing between requests.
func (l *Limiter) MinInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minInterval
}
