// Package transcribe defines the Provider interface for remote
// speech-to-text backends and the retrying client that drives them.
//
// A provider turns one finished audio capture into plain text with a single
// remote call; there is no streaming. The [Client] wraps a provider with the
// pipeline's retry policy: transient failures are retried with exponential
// backoff up to a fixed attempt ceiling, quota rejections are surfaced
// immediately and reported to the rate limiter, and the remote model's
// no-speech sentinel is mapped to a first-class outcome instead of a
// transcript.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NoSpeechSentinel is the exact text the remote model is prompted to return
// when it cannot identify any speech in the audio.
const NoSpeechSentinel = "%NOSPEECHFOUND%"

// NoSpeechPlaceholder is the transcript text archived for sessions in which
// no speech was detected.
const NoSpeechPlaceholder = "(no speech detected)"

// Request carries one audio capture to a provider.
type Request struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// MIMEType declares the payload encoding ("audio/ogg" or "audio/wav").
	MIMEType string

	// Prompt is the active mode's transcription instruction.
	Prompt string

	// Model is the remote model identifier.
	Model string

	// APIKey authenticates the call. Read from configuration on every run,
	// never cached by the pipeline.
	APIKey string
}

// Result is the outcome of a successful transcription call.
type Result struct {
	// Text is the transcript. Empty when NoSpeech is set.
	Text string

	// NoSpeech reports that the model returned the no-speech sentinel.
	NoSpeech bool
}

// ErrorKind classifies a failed transcription call and determines the retry
// policy applied to it.
type ErrorKind int

const (
	// KindTransient covers server unavailability, network errors, and
	// timeouts. Retried with exponential backoff.
	KindTransient ErrorKind = iota

	// KindQuota is a rate-limit rejection. Never retried; widens the rate
	// limiter's request spacing.
	KindQuota

	// KindInvalid is a malformed or unauthorized request. Never retried.
	KindInvalid
)

// String returns the human-readable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindQuota:
		return "quota"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is a classified transcription failure.
type Error struct {
	// Kind selects the retry policy.
	Kind ErrorKind

	// StatusCode is the HTTP status that produced the classification, when
	// one exists.
	StatusCode int

	// Message is the remote error description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcribe: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transcribe: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the retry loop may attempt the call again.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// Classify maps an arbitrary provider error onto an [*Error]. Errors that are
// already classified pass through; context cancellation stays a context
// error; everything else — including timeouts and connection failures — is
// treated as transient, per the retry policy table.
func Classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: KindTransient, Message: err.Error()}
}

// ClassifyStatus maps an HTTP response status onto an [ErrorKind].
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindQuota
	case status >= 400 && status < 500:
		return KindInvalid
	default:
		return KindTransient
	}
}

// Provider is the abstraction over a remote speech-to-text backend. A single
// call transcribes one complete capture.
//
// Implementations must be safe for concurrent use and should return [*Error]
// values so the client can classify failures without guessing.
type Provider interface {
	// Transcribe sends the capture and returns the raw transcript text,
	// which may be the no-speech sentinel. The caller owns sentinel
	// interpretation.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// Progress receives per-attempt notifications from the retry loop so long
// operations stay observable: attempt is 1-based, and retryIn is zero except
// when a backoff wait is about to start.
type Progress func(attempt, totalAttempts int, retryIn time.Duration)
