package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, decoded over [Default], and
// returns a validated [Config]. A missing file is not an error; the defaults
// are returned so a fresh install runs without any setup.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Provider != "" && !cfg.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("provider %q is invalid; valid values: gemini, openai", cfg.Provider))
	}
	if cfg.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle_delay %v is negative", cfg.SettleDelay))
	}
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 {
		errs = append(errs, fmt.Errorf("audio.channels %d is negative", cfg.Audio.Channels))
	}
	if cfg.RateLimit.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.min_interval %v is negative", cfg.RateLimit.MinInterval))
	}
	if cfg.RateLimit.MaxInterval != 0 && cfg.RateLimit.MaxInterval < cfg.RateLimit.MinInterval {
		errs = append(errs, fmt.Errorf("rate_limit.max_interval %v is below min_interval %v", cfg.RateLimit.MaxInterval, cfg.RateLimit.MinInterval))
	}
	if cfg.Retry.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay %v is negative", cfg.Retry.BaseDelay))
	}
	if cfg.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries %d is negative", cfg.Retry.MaxRetries))
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listen_addr is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}
