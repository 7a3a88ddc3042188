// Package audioproc turns a raw microphone capture into upload- and
// archive-ready encodings by invoking external audio tools (SoX for loudness
// normalization, ffmpeg for transcoding).
//
// Every operation is best-effort: a failing or missing tool degrades the
// pipeline to the best available audio form instead of failing it. Inputs are
// never mutated, and repeated invocations over identical input bytes produce
// identical outputs.
package audioproc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Format is a target audio encoding.
type Format string

const (
	// FormatOgg is Ogg/Opus, the preferred upload encoding.
	FormatOgg Format = "ogg"

	// FormatMP3 is the archival encoding.
	FormatMP3 Format = "mp3"

	// FormatWAV is uncompressed PCM, the fallback for both paths.
	FormatWAV Format = "wav"
)

// MIMEType returns the MIME type declared when uploading audio of this format.
func (f Format) MIMEType() string {
	switch f {
	case FormatOgg:
		return "audio/ogg"
	case FormatMP3:
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}

// normTargetDB is the RMS normalization target passed to SoX, matching
// average speech loudness without clipping.
const normTargetDB = "-10"

// Config holds tool locations and limits for a [Processor].
type Config struct {
	// SoxPath is the SoX executable. Default: "sox" (resolved via PATH).
	SoxPath string

	// FFmpegPath is the ffmpeg executable. Default: "ffmpeg".
	FFmpegPath string

	// ToolTimeout bounds a single tool invocation. Default: 30s.
	ToolTimeout time.Duration
}

// Processor invokes the external audio tools. Safe for concurrent use; it
// holds no mutable state.
type Processor struct {
	soxPath     string
	ffmpegPath  string
	toolTimeout time.Duration
}

// New creates a [Processor] with the supplied configuration. Zero-value
// config fields are replaced with sensible defaults.
func New(cfg Config) *Processor {
	if cfg.SoxPath == "" {
		cfg.SoxPath = "sox"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	return &Processor{
		soxPath:     cfg.SoxPath,
		ffmpegPath:  cfg.FFmpegPath,
		toolTimeout: cfg.ToolTimeout,
	}
}

// Normalize applies RMS gain normalization to the capture at rawPath and
// returns the path of the normalized copy. On tool failure it falls back to a
// byte-for-byte copy of the input, and if even that fails it returns rawPath
// itself — normalization never fails the pipeline.
func (p *Processor) Normalize(ctx context.Context, rawPath string) string {
	outPath := derivedPath(rawPath, "-norm", ".wav")

	err := p.runTool(ctx, p.soxPath, rawPath, outPath, "norm", normTargetDB)
	if err == nil {
		return outPath
	}
	slog.Warn("audioproc: sox normalization failed, copying input unchanged",
		"input", rawPath, "err", err)

	if copyErr := copyFile(rawPath, outPath); copyErr != nil {
		slog.Warn("audioproc: fallback copy failed, using raw capture",
			"input", rawPath, "err", copyErr)
		return rawPath
	}
	return outPath
}

// Transcode encodes inputPath into the target format and returns the output
// path. Unlike [Processor.Normalize] it reports failure so callers can try a
// secondary format.
func (p *Processor) Transcode(ctx context.Context, inputPath string, target Format) (string, error) {
	// The "-enc" suffix keeps the output distinct from the input even when
	// the input already carries the target extension.
	outPath := derivedPath(inputPath, "-enc", "."+string(target))

	args := []string{"-y", "-i", inputPath}
	switch target {
	case FormatOgg:
		args = append(args, "-c:a", "libopus", "-b:a", "32k", "-ar", "16000", "-ac", "1")
	case FormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-b:a", "64k")
	case FormatWAV:
		args = append(args, "-c:a", "pcm_s16le")
	default:
		return "", fmt.Errorf("audioproc: unsupported format %q", target)
	}
	args = append(args, outPath)

	if err := p.run(ctx, p.ffmpegPath, args...); err != nil {
		return "", fmt.Errorf("audioproc: transcode to %s: %w", target, err)
	}
	return outPath, nil
}

// EncodeForUpload produces the upload payload from the normalized capture:
// Ogg/Opus preferred, WAV as the secondary target, and the input file as-is
// when both encodings fail. The returned MIME type always matches the
// returned file.
func (p *Processor) EncodeForUpload(ctx context.Context, normalizedPath string) (path, mimeType string) {
	if out, err := p.Transcode(ctx, normalizedPath, FormatOgg); err == nil {
		return out, FormatOgg.MIMEType()
	} else {
		slog.Warn("audioproc: ogg upload encoding failed, trying wav", "err", err)
	}

	if out, err := p.Transcode(ctx, normalizedPath, FormatWAV); err == nil {
		return out, FormatWAV.MIMEType()
	} else {
		slog.Warn("audioproc: wav upload encoding failed, uploading untranscoded file", "err", err)
	}

	return normalizedPath, FormatWAV.MIMEType()
}

// EncodeForArchive produces the archival copy: MP3 from the normalized
// capture, falling back to the raw capture file when encoding fails.
func (p *Processor) EncodeForArchive(ctx context.Context, rawPath, normalizedPath string) string {
	if out, err := p.Transcode(ctx, normalizedPath, FormatMP3); err == nil {
		return out
	} else {
		slog.Warn("audioproc: mp3 archive encoding failed, archiving raw capture", "err", err)
	}
	return rawPath
}

// runTool invokes a simple in→out tool such as SoX.
func (p *Processor) runTool(ctx context.Context, tool, in, out string, extra ...string) error {
	args := append([]string{in, out}, extra...)
	return p.run(ctx, tool, args...)
}

// run executes the tool with a bounded timeout, capturing stderr for the
// error message.
func (p *Processor) run(ctx context.Context, tool string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, p.toolTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("audioproc: invoking tool", "tool", tool, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", filepath.Base(tool), err, msg)
		}
		return fmt.Errorf("%s: %w", filepath.Base(tool), err)
	}
	return nil
}

// derivedPath builds an output path next to input: stem + suffix + ext.
func derivedPath(input, suffix, ext string) string {
	stem := strings.TrimSuffix(input, filepath.Ext(input))
	return stem + suffix + ext
}

// copyFile copies src to dst byte-for-byte.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
