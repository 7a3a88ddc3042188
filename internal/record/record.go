// Package record captures microphone audio into a WAV file via PortAudio.
//
// A [Recorder] runs one capture at a time: Start opens the default input
// device and streams PCM frames into a scratch WAV file until Stop is called.
// The capture file is temporary; the session pipeline decides what becomes of
// it after post-processing.
package record

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

const (
	defaultSampleRate = 16000
	defaultChannels   = 1
	frameSize         = 1024
	bitDepth          = 16
)

// Capturer is the capture device abstraction the session pipeline depends on.
// The PortAudio-backed [Recorder] is the production implementation; tests
// substitute fakes.
type Capturer interface {
	// Start begins a capture. Returns an error when one is already running.
	Start(ctx context.Context) error

	// Stop ends the capture and returns the path of the finished WAV file.
	Stop() (string, error)
}

// Config holds capture parameters for a [Recorder].
type Config struct {
	// ScratchDir receives capture files. Default: the OS temp directory.
	ScratchDir string

	// SampleRate in Hz. Default: 16000.
	SampleRate int

	// Channels is the input channel count. Default: 1.
	Channels int
}

// Result carries a finished capture out of the record loop.
type Result struct {
	Path string
	Err  error
}

// Recorder captures from the default PortAudio input device. Exactly one
// capture may run at a time.
type Recorder struct {
	cfg Config

	mu        sync.Mutex
	recording bool
	cancel    context.CancelFunc
	done      chan Result
}

// New creates a [Recorder]. Zero-value config fields are replaced with
// defaults.
func New(cfg Config) *Recorder {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = defaultChannels
	}
	return &Recorder{cfg: cfg}
}

var _ Capturer = (*Recorder)(nil)

// Start begins streaming the default input device into a scratch WAV file.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return fmt.Errorf("record: capture already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.recording = true
	r.cancel = cancel
	r.done = make(chan Result, 1)

	go r.captureLoop(loopCtx)
	return nil
}

// Stop ends the running capture and returns the finished WAV path. Blocks
// until the capture loop has flushed and closed the file.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return "", fmt.Errorf("record: no capture running")
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	res := <-done

	r.mu.Lock()
	r.recording = false
	r.mu.Unlock()

	return res.Path, res.Err
}

// captureLoop owns the PortAudio stream and WAV encoder for one capture.
func (r *Recorder) captureLoop(ctx context.Context) {
	path := r.scratchPath()

	if err := portaudio.Initialize(); err != nil {
		r.done <- Result{Err: fmt.Errorf("record: portaudio init: %w", err)}
		return
	}
	defer portaudio.Terminate()

	in := make([]int16, frameSize)
	stream, err := portaudio.OpenDefaultStream(r.cfg.Channels, 0, float64(r.cfg.SampleRate), len(in), in)
	if err != nil {
		r.done <- Result{Err: fmt.Errorf("record: open stream: %w", err)}
		return
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		r.done <- Result{Err: fmt.Errorf("record: start stream: %w", err)}
		return
	}

	file, err := os.Create(path)
	if err != nil {
		_ = stream.Stop()
		_ = stream.Close()
		r.done <- Result{Err: fmt.Errorf("record: create capture file: %w", err)}
		return
	}
	enc := wav.NewEncoder(file, r.cfg.SampleRate, bitDepth, r.cfg.Channels, 1)
	format := &audio.Format{NumChannels: r.cfg.Channels, SampleRate: r.cfg.SampleRate}
	intBuf := make([]int, len(in))

	for {
		select {
		case <-ctx.Done():
			goto flush
		default:
		}

		if err := stream.Read(); err != nil {
			// Input overflow and transient device hiccups; drop the frame.
			continue
		}
		for i, v := range in {
			intBuf[i] = int(v)
		}
		buf := &audio.IntBuffer{Format: format, Data: intBuf, SourceBitDepth: bitDepth}
		if err := enc.Write(buf); err != nil {
			_ = enc.Close()
			_ = file.Close()
			_ = stream.Stop()
			_ = stream.Close()
			_ = os.Remove(path)
			r.done <- Result{Err: fmt.Errorf("record: wav write: %w", err)}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

flush:
	_ = stream.Stop()
	_ = stream.Close()

	if err := enc.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		r.done <- Result{Err: fmt.Errorf("record: wav close: %w", err)}
		return
	}
	if err := file.Close(); err != nil {
		r.done <- Result{Err: fmt.Errorf("record: close capture file: %w", err)}
		return
	}

	r.done <- Result{Path: path}
}

// scratchPath returns a fresh capture file path in the scratch directory.
func (r *Recorder) scratchPath() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return filepath.Join(r.cfg.ScratchDir, fmt.Sprintf("capture_%s.wav", id))
}
