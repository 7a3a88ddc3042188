// Package gemini provides a Google Gemini-backed transcription provider using
// the generateContent REST API. It implements the transcribe.Provider
// interface.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/whisperkey/whisperkey/internal/transcribe"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the model used when a request carries no model ID.
	DefaultModel = "gemini-2.5-flash-preview-05-20"

	defaultTimeout = 2 * time.Minute
)

// Option is a functional option for configuring the Gemini Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. Used by tests to point the provider
// at a local server.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithTimeout bounds a single generateContent call. Default: 2 minutes.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements transcribe.Provider backed by the Gemini REST API.
// The API key travels with each request, not the provider, so a key change in
// configuration takes effect on the next capture without a rebuild.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a new Gemini Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var _ transcribe.Provider = (*Provider)(nil)

// ---- wire types ----

type generateRequest struct {
	Contents       []content       `json:"contents"`
	SafetySettings []safetySetting `json:"safetySettings"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold int    `json:"threshold"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Transcribe sends the capture as inline base64 audio alongside the mode
// prompt and returns the joined text of the first candidate's parts.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	body := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: req.Prompt},
				{InlineData: &inlineData{
					MIMEType: req.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(req.Audio),
				}},
			},
		}},
		SafetySettings: []safetySetting{
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: 1},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &transcribe.Error{
			Kind:       transcribe.ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.StatusCode),
		}
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return "", &transcribe.Error{
			Kind:    transcribe.KindInvalid,
			Message: "response contains no candidates",
		}
	}

	// Multi-part candidates carry the transcript split across parts; join
	// with single spaces.
	var buf bytes.Buffer
	for i, pt := range gr.Candidates[0].Content.Parts {
		if i > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(pt.Text)
	}
	return buf.String(), nil
}

// errorMessage extracts the API error description from an error response body,
// falling back to the HTTP status text.
func errorMessage(raw []byte, status int) string {
	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err == nil && gr.Error != nil && gr.Error.Message != "" {
		return gr.Error.Message
	}
	return http.StatusText(status)
}
