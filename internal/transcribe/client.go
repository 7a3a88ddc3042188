package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/whisperkey/whisperkey/internal/observe"
	"github.com/whisperkey/whisperkey/internal/resilience"
)

// QuotaNotifier is the subset of the rate limiter the client needs: it is
// told about quota rejections so future request spacing widens, but it never
// schedules waits itself — request spacing belongs to the session pipeline.
type QuotaNotifier interface {
	OnQuotaExceeded()
}

// ClientConfig holds the dependencies and policy for a [Client].
type ClientConfig struct {
	// Provider is the remote backend. Required.
	Provider Provider

	// ProviderName labels metrics and log lines (e.g. "gemini", "openai").
	ProviderName string

	// Limiter receives quota notifications. May be nil.
	Limiter QuotaNotifier

	// Backoff is the retry policy. Zero value uses the default
	// (2s base, 3 retries).
	Backoff resilience.BackoffPolicy

	// Progress receives per-attempt notifications. May be nil.
	Progress Progress

	// Metrics records request counts and latency. May be nil.
	Metrics *observe.Metrics

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// Client wraps a [Provider] with the pipeline's retry, classification, and
// sentinel-mapping policy.
type Client struct {
	provider Provider
	name     string
	limiter  QuotaNotifier
	backoff  resilience.BackoffPolicy
	progress Progress
	metrics  *observe.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClient creates a [Client] from cfg.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "remote"
	}
	if cfg.sleep == nil {
		cfg.sleep = sleepCtx
	}
	return &Client{
		provider: cfg.Provider,
		name:     cfg.ProviderName,
		limiter:  cfg.Limiter,
		backoff:  cfg.Backoff,
		progress: cfg.Progress,
		metrics:  cfg.Metrics,
		sleep:    cfg.sleep,
	}
}

// Transcribe runs the provider call with up to four attempts. Transient
// failures wait Base × 2^attempt between attempts; quota and invalid-request
// failures surface immediately. A response equal to the no-speech sentinel
// returns a Result with NoSpeech set rather than a transcript.
func (c *Client) Transcribe(ctx context.Context, req Request) (Result, error) {
	attempts := c.backoff.Attempts()

	var lastErr *Error
	for attempt := 0; attempt < attempts; attempt++ {
		c.notify(attempt+1, attempts, 0)

		start := time.Now()
		text, err := c.provider.Transcribe(ctx, req)
		if err == nil {
			c.record(ctx, "ok", start)
			if strings.TrimSpace(text) == NoSpeechSentinel {
				slog.Info("transcription returned no-speech sentinel", "provider", c.name)
				return Result{NoSpeech: true}, nil
			}
			return Result{Text: strings.TrimSpace(text)}, nil
		}
		if ctx.Err() != nil {
			c.record(ctx, "cancelled", start)
			return Result{}, ctx.Err()
		}

		lastErr = Classify(err)
		c.record(ctx, lastErr.Kind.String(), start)

		switch lastErr.Kind {
		case KindQuota:
			if c.limiter != nil {
				c.limiter.OnQuotaExceeded()
			}
			slog.Warn("transcription rejected for quota, not retrying",
				"provider", c.name, "err", lastErr)
			return Result{}, lastErr

		case KindInvalid:
			slog.Warn("transcription request invalid, not retrying",
				"provider", c.name, "err", lastErr)
			return Result{}, lastErr
		}

		// Transient: wait and retry, unless this was the final attempt.
		if attempt == attempts-1 {
			break
		}
		wait := c.backoff.Delay(attempt)
		slog.Warn("transcription attempt failed, backing off",
			"provider", c.name,
			"attempt", attempt+1,
			"of", attempts,
			"wait", wait,
			"err", lastErr,
		)
		c.notify(attempt+1, attempts, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return Result{}, err
		}
	}

	return Result{}, fmt.Errorf("transcribe: %d attempts exhausted: %w", attempts, lastErr)
}

// notify invokes the progress callback if one is configured.
func (c *Client) notify(attempt, total int, retryIn time.Duration) {
	if c.progress != nil {
		c.progress(attempt, total, retryIn)
	}
}

// record emits request metrics if a collector is configured.
func (c *Client) record(ctx context.Context, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordTranscriptionRequest(ctx, c.name, status, time.Since(start))
}

// sleepCtx blocks for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
