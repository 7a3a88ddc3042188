// Package session implements the pipeline state machine that turns one
// push-to-talk trigger pair into a delivered transcript.
//
// The machine owns the capture lifecycle and sequences post-processing, the
// rate-limit wait, remote transcription, archiving, and clipboard delivery.
// Exactly one session may be active process-wide; triggers arriving while a
// session is recording toggle it to processing, and triggers arriving while
// processing are dropped.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whisperkey/whisperkey/internal/archive"
	"github.com/whisperkey/whisperkey/internal/mode"
	"github.com/whisperkey/whisperkey/internal/observe"
	"github.com/whisperkey/whisperkey/internal/transcribe"
)

// defaultSettleDelay is the pause between capture stop and processing start,
// giving the OS audio writer time to flush the capture file.
const defaultSettleDelay = 500 * time.Millisecond

// Capturer records microphone audio. See the record package for the
// production implementation.
type Capturer interface {
	Start(ctx context.Context) error
	Stop() (string, error)
}

// PostProcessor prepares the raw capture for upload and archival. See the
// audioproc package.
type PostProcessor interface {
	Normalize(ctx context.Context, rawPath string) string
	EncodeForUpload(ctx context.Context, normalizedPath string) (path, mimeType string)
	EncodeForArchive(ctx context.Context, rawPath, normalizedPath string) string
}

// SlotAwaiter spaces outbound transcription requests. See resilience.Limiter.
type SlotAwaiter interface {
	AwaitSlot(ctx context.Context) error
}

// Transcriber runs the retrying remote call. See transcribe.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error)
}

// Archiver persists finished sessions. See archive.Store.
type Archiver interface {
	Begin(sessionStartedAt time.Time) (archive.Handle, error)
	CommitAudio(h archive.Handle, sourcePath string) error
	CommitTranscript(h archive.Handle, text string) error
}

// ModeSource resolves the active transcription mode. See mode.Registry.
type ModeSource interface {
	ActiveMode() (mode.Mode, error)
}

// Deliverer places the transcript where the user expects it. See the
// clipboard package.
type Deliverer interface {
	Deliver(text string, paste bool) error
}

// Settings are the configuration values the pipeline reads fresh on every
// run, so edits take effect on the next capture without a restart.
type Settings interface {
	APIKey() string
	ModelID() string
	AutoPaste() bool
	ShowNotifications() bool
}

// Config wires a [Machine]. All component fields are required unless noted.
type Config struct {
	Capturer  Capturer
	Processor PostProcessor
	Limiter   SlotAwaiter
	Client    Transcriber
	Archive   Archiver
	Modes     ModeSource
	Deliverer Deliverer
	Settings  Settings

	// Notify receives status transitions. May be nil.
	Notify Notifier

	// Metrics records session outcomes. May be nil.
	Metrics *observe.Metrics

	// SettleDelay overrides the post-capture flush pause. Default: 500ms.
	SettleDelay time.Duration
}

// Machine is the session state machine. The state field is the sole gate for
// starting work; no session-level lock is held across pipeline stages.
type Machine struct {
	cfg Config

	mu    sync.Mutex
	state Status

	// session fields, valid while state != StatusIdle
	sessionID string
	startedAt time.Time
	modeSnap  mode.Mode

	// processingDone closes when the in-flight processing stage finishes;
	// tests synchronize on it.
	processingDone chan struct{}
}

// New creates a [Machine] in the idle state.
func New(cfg Config) *Machine {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	return &Machine{cfg: cfg, state: StatusIdle}
}

// State returns the current pipeline status.
func (m *Machine) State() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Trigger is the hotkey entry point: idle starts a capture, recording stops
// it and processes, and anything else is a no-op. Duplicate presses while
// busy are deliberately swallowed rather than queued.
func (m *Machine) Trigger(ctx context.Context) {
	m.mu.Lock()
	switch m.state {
	case StatusIdle:
		m.startLocked(ctx)
		m.mu.Unlock()

	case StatusRecording:
		m.stopLocked(ctx)
		m.mu.Unlock()

	default:
		m.mu.Unlock()
		slog.Debug("trigger ignored, session busy", "state", m.state.String())
	}
}

// startLocked begins a capture. Caller holds m.mu.
func (m *Machine) startLocked(ctx context.Context) {
	// Snapshot the mode at start so a mode switch mid-recording cannot
	// corrupt the request.
	activeMode, err := m.cfg.Modes.ActiveMode()
	if err != nil {
		slog.Warn("active mode unresolved, using built-in default", "err", err)
		activeMode = mode.Builtins()[0]
	}

	if err := m.cfg.Capturer.Start(ctx); err != nil {
		slog.Error("capture start failed", "err", err)
		m.notify(StatusFailed, fmt.Sprintf("Could not start recording: %v", err))
		return
	}

	m.sessionID = uuid.NewString()
	m.startedAt = time.Now()
	m.modeSnap = activeMode
	m.state = StatusRecording

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("recording started",
		"session", m.sessionID, "mode", activeMode.ID)
	m.notify(StatusRecording, "Recording ("+activeMode.Name+")")
}

// stopLocked ends the capture and hands off to processing. Caller holds m.mu.
func (m *Machine) stopLocked(ctx context.Context) {
	m.state = StatusProcessing
	m.processingDone = make(chan struct{})
	m.notify(StatusProcessing, "Transcribing…")

	go m.process(ctx)
}

// process runs the pipeline stages for one session and always lands in a
// terminal state. It owns m.state until it resets to idle; no other goroutine
// writes session fields while state is StatusProcessing.
func (m *Machine) process(ctx context.Context) {
	defer close(m.processingDone)

	start := time.Now()
	status, message := m.run(ctx)

	m.mu.Lock()
	m.state = status
	m.mu.Unlock()

	slog.Info("session finished",
		"session", m.sessionID,
		"outcome", status.String(),
		"elapsed", time.Since(m.startedAt),
	)
	m.notify(status, message)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordSessionOutcome(ctx, status.String(), time.Since(start))
		m.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	}

	m.mu.Lock()
	m.state = StatusIdle
	m.mu.Unlock()
}

// run executes the pipeline stages and returns the terminal status with its
// user-facing message.
func (m *Machine) run(ctx context.Context) (Status, string) {
	rawPath, err := m.cfg.Capturer.Stop()
	if err != nil {
		return StatusFailed, fmt.Sprintf("Recording failed: %v", err)
	}
	defer m.cleanupScratch(rawPath)

	// Let the OS audio writer flush before touching the capture file.
	time.Sleep(m.cfg.SettleDelay)

	normPath := m.cfg.Processor.Normalize(ctx, rawPath)
	uploadPath, mimeType := m.cfg.Processor.EncodeForUpload(ctx, normPath)

	audioBytes, err := os.ReadFile(uploadPath)
	if err != nil {
		return StatusFailed, fmt.Sprintf("Could not read processed audio: %v", err)
	}

	apiKey := m.cfg.Settings.APIKey()
	if apiKey == "" {
		return StatusFailed, "No API key configured"
	}

	if err := m.cfg.Limiter.AwaitSlot(ctx); err != nil {
		return StatusFailed, fmt.Sprintf("Cancelled while waiting for a request slot: %v", err)
	}

	res, err := m.cfg.Client.Transcribe(ctx, transcribe.Request{
		Audio:    audioBytes,
		MIMEType: mimeType,
		Prompt:   m.modeSnap.Prompt,
		Model:    m.cfg.Settings.ModelID(),
		APIKey:   apiKey,
	})

	archivePath := m.cfg.Processor.EncodeForArchive(ctx, rawPath, normPath)

	if err != nil {
		// The capture is still worth keeping even without a transcript.
		m.archiveSession(archivePath, "", false)
		return StatusFailed, fmt.Sprintf("Transcription failed: %v", err)
	}

	if res.NoSpeech {
		m.archiveSession(archivePath, transcribe.NoSpeechPlaceholder, true)
		return StatusNoSpeech, "No speech detected"
	}

	// Delivery outranks archiving: the user gets their transcript even when
	// the archive directory is unwritable.
	if err := m.cfg.Deliverer.Deliver(res.Text, m.cfg.Settings.AutoPaste()); err != nil {
		m.archiveSession(archivePath, res.Text, true)
		return StatusFailed, fmt.Sprintf("Could not deliver transcript: %v", err)
	}
	m.archiveSession(archivePath, res.Text, true)

	return StatusDelivered, "Transcript copied"
}

// archiveSession commits the session's audio and, when present, its
// transcript. Archive failures are logged and absorbed.
func (m *Machine) archiveSession(audioPath, transcript string, withTranscript bool) {
	h, err := m.cfg.Archive.Begin(m.startedAt)
	if err != nil {
		slog.Error("archive begin failed", "session", m.sessionID, "err", err)
		return
	}
	if err := m.cfg.Archive.CommitAudio(h, audioPath); err != nil {
		slog.Error("archive audio commit failed",
			"session", m.sessionID, "entry", h.ID(), "err", err)
	}
	if withTranscript {
		if err := m.cfg.Archive.CommitTranscript(h, transcript); err != nil {
			slog.Error("archive transcript commit failed",
				"session", m.sessionID, "entry", h.ID(), "err", err)
		}
	}
}

// cleanupScratch removes the raw capture and any derived scratch files
// sharing its stem.
func (m *Machine) cleanupScratch(rawPath string) {
	if rawPath == "" {
		return
	}
	stem := rawPath[:len(rawPath)-len(filepath.Ext(rawPath))]
	matches, err := filepath.Glob(stem + "*")
	if err != nil {
		return
	}
	for _, p := range matches {
		if err := os.Remove(p); err != nil {
			slog.Debug("scratch cleanup skipped file", "path", p, "err", err)
		}
	}
}

// notify forwards a status transition to the presentation layer.
func (m *Machine) notify(status Status, message string) {
	if m.cfg.Notify == nil {
		return
	}
	if status.terminal() && !m.cfg.Settings.ShowNotifications() {
		// Terminal messages are user-facing notifications; transitions that
		// drive the tray state always go through.
		m.cfg.Notify(status, "")
		return
	}
	m.cfg.Notify(status, message)
}

// WaitIdle blocks until the in-flight processing stage, if any, completes.
// Used by shutdown and by tests.
func (m *Machine) WaitIdle() {
	m.mu.Lock()
	done := m.processingDone
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}
