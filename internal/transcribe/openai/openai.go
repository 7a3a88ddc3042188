// Package openai provides a transcription provider backed by the OpenAI audio
// transcription API. It implements the transcribe.Provider interface as an
// alternative to the default Gemini backend.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/whisperkey/whisperkey/internal/transcribe"
)

// DefaultModel is the model used when a request carries no model ID.
const DefaultModel = "gpt-4o-transcribe"

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements transcribe.Provider using the OpenAI API. The API key
// arrives with each request, so the SDK client is built per call; the shared
// request options carry everything else.
type Provider struct {
	reqOpts []option.RequestOption
}

// New constructs a new OpenAI transcription Provider.
func New(opts ...Option) *Provider {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	var reqOpts []option.RequestOption
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	return &Provider{reqOpts: reqOpts}
}

var _ transcribe.Provider = (*Provider)(nil)

// fileName maps the payload MIME type onto an upload file name, which is how
// the API infers the container format.
func fileName(mimeType string) string {
	switch mimeType {
	case "audio/ogg":
		return "recording.ogg"
	case "audio/mpeg":
		return "recording.mp3"
	default:
		return "recording.wav"
	}
}

// Transcribe uploads the capture and returns the transcript text. The mode
// prompt is passed through as the transcription prompt, which carries the
// no-speech sentinel instruction the same way the Gemini backend does.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	opts := append([]option.RequestOption{option.WithAPIKey(req.APIKey)}, p.reqOpts...)
	client := oai.NewClient(opts...)

	resp, err := client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:   oai.File(bytes.NewReader(req.Audio), fileName(req.MIMEType), req.MIMEType),
		Model:  oai.AudioModel(model),
		Prompt: oai.String(req.Prompt),
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

// classify maps SDK errors onto the pipeline's error taxonomy using the HTTP
// status when the API returned one.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &transcribe.Error{
			Kind:       transcribe.ClassifyStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
		}
	}
	// Network failures and timeouts never reach the API; leave them for the
	// client's default transient classification.
	return fmt.Errorf("openai: %w", err)
}
