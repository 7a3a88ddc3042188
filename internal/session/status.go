package session

// Status is the externally visible state of the pipeline. The three outcome
// statuses are terminal for one session; the machine resets to [StatusIdle]
// after emitting them.
type Status int

const (
	// StatusIdle means no session is active; a trigger starts a capture.
	StatusIdle Status = iota

	// StatusRecording means microphone capture is running.
	StatusRecording

	// StatusProcessing means capture has stopped and the pipeline is
	// post-processing, transcribing, and archiving.
	StatusProcessing

	// StatusDelivered means a transcript was produced and placed on the
	// clipboard.
	StatusDelivered

	// StatusNoSpeech means the remote model found no speech in the capture.
	StatusNoSpeech

	// StatusFailed means the session ended without a transcript.
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRecording:
		return "recording"
	case StatusProcessing:
		return "processing"
	case StatusDelivered:
		return "delivered"
	case StatusNoSpeech:
		return "no_speech"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether the status ends a session.
func (s Status) terminal() bool {
	return s == StatusDelivered || s == StatusNoSpeech || s == StatusFailed
}

// Notifier receives status transitions and retry progress. Implementations
// must not block; they are called from inside the pipeline.
type Notifier func(status Status, message string)
