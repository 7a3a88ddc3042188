// Package config defines the Whisperkey configuration schema, its YAML
// loader, and a polling file watcher so settings edits take effect without a
// restart.
package config

import "time"

// LogLevel represents a logging verbosity level.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a known log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// Provider selects the remote transcription backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// IsValid reports whether p is a known provider.
func (p Provider) IsValid() bool {
	return p == ProviderGemini || p == ProviderOpenAI
}

// Config is the root configuration document.
type Config struct {
	LogLevel LogLevel `yaml:"log_level"`

	// Provider is the transcription backend. Default: gemini.
	Provider Provider `yaml:"provider"`

	// APIKey authenticates transcription calls. Read on every capture, so an
	// edit applies to the next session.
	APIKey string `yaml:"api_key"`

	// Model overrides the provider's default model ID.
	Model string `yaml:"model"`

	// AutoPaste sends the paste chord after copying the transcript.
	AutoPaste bool `yaml:"auto_paste"`

	// ShowNotifications enables user-facing outcome messages.
	ShowNotifications bool `yaml:"show_notifications"`

	// SettleDelay is the pause between capture stop and processing.
	SettleDelay time.Duration `yaml:"settle_delay"`

	Paths     PathsConfig     `yaml:"paths"`
	Tools     ToolsConfig     `yaml:"tools"`
	Audio     AudioConfig     `yaml:"audio"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// PathsConfig locates the on-disk state directories.
type PathsConfig struct {
	// ArchiveDir holds finished recordings and transcripts.
	// Default: ~/.whisperkey/recordings.
	ArchiveDir string `yaml:"archive_dir"`

	// ScratchDir receives in-flight capture files. Default: the OS temp dir.
	ScratchDir string `yaml:"scratch_dir"`

	// ModesFile persists the mode registry state.
	// Default: ~/.whisperkey/modes.yaml.
	ModesFile string `yaml:"modes_file"`
}

// ToolsConfig locates the external audio tools.
type ToolsConfig struct {
	SoxPath    string `yaml:"sox_path"`
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Timeout bounds a single tool invocation. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// AudioConfig sets capture parameters.
type AudioConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the input channel count. Default: 1.
	Channels int `yaml:"channels"`
}

// RateLimitConfig tunes outbound request spacing.
type RateLimitConfig struct {
	// MinInterval is the starting spacing between requests. Default: 2s.
	MinInterval time.Duration `yaml:"min_interval"`

	// MaxInterval caps the spacing growth under sustained quota rejections.
	// Default: 60s.
	MaxInterval time.Duration `yaml:"max_interval"`
}

// RetryConfig tunes the transient-failure retry policy.
type RetryConfig struct {
	// BaseDelay is the first backoff wait. Default: 2s.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxRetries is the number of retries after the first attempt.
	// Default: 3.
	MaxRetries int `yaml:"max_retries"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the /metrics listen address. Default: "localhost:9090".
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a configuration with every field at its documented default.
// The loader decodes the file over this base, so an absent or partial file
// still yields a runnable config.
func Default() *Config {
	return &Config{
		LogLevel:          LogLevelInfo,
		Provider:          ProviderGemini,
		AutoPaste:         true,
		ShowNotifications: true,
		SettleDelay:       500 * time.Millisecond,
		Tools: ToolsConfig{
			SoxPath:    "sox",
			FFmpegPath: "ffmpeg",
			Timeout:    30 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
		},
		RateLimit: RateLimitConfig{
			MinInterval: 2 * time.Second,
			MaxInterval: 60 * time.Second,
		},
		Retry: RetryConfig{
			BaseDelay:  2 * time.Second,
			MaxRetries: 3,
		},
		Metrics: MetricsConfig{
			ListenAddr: "localhost:9090",
		},
	}
}
