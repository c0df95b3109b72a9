// Package config provides the configuration schema, loader, and provider
// registry for the voxloop server.
package config

import "time"

// LogLevel controls log verbosity for the voxloop server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxloop.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Detector  DetectorConfig  `yaml:"detector"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the voxloop server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir, when set, is a directory of static files served at the root
	// path (a browser client, typically). Empty disables static serving.
	StaticDir string `yaml:"static_dir"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "whisper", "piper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model or voice within the provider
	// (e.g., "gpt-4o-mini", "21m00Tcm4TlvDq8ikWAM").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// nested maps.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists additional providers of the same kind, tried in order
	// when this one fails. Fallbacks of fallbacks are not supported.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// DetectorConfig tunes the per-session pause detector.
type DetectorConfig struct {
	// SampleRateHz of ingested PCM. Zero means 16000.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// SilenceMs is the sustained pause, in milliseconds, that ends a spoken
	// turn. Zero means 800.
	SilenceMs int `yaml:"silence_ms"`

	// MaxTurnMs caps one turn's accumulated audio, in milliseconds.
	// Zero means 30000.
	MaxTurnMs int `yaml:"max_turn_ms"`

	// SpeechThreshold is the normalised RMS level above which a frame counts
	// as speech. Zero means the engine default.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceThreshold is the normalised RMS level below which a frame counts
	// as silence. Zero means the engine default.
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// SampleRate returns the configured sample rate with the default applied.
func (d DetectorConfig) SampleRate() int {
	if d.SampleRateHz <= 0 {
		return 16000
	}
	return d.SampleRateHz
}

// SilenceDuration returns the configured turn-end pause with the default
// applied.
func (d DetectorConfig) SilenceDuration() time.Duration {
	if d.SilenceMs <= 0 {
		return 800 * time.Millisecond
	}
	return time.Duration(d.SilenceMs) * time.Millisecond
}

// MaxTurnDuration returns the configured turn cap with the default applied.
func (d DetectorConfig) MaxTurnDuration() time.Duration {
	if d.MaxTurnMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.MaxTurnMs) * time.Millisecond
}

// PipelineConfig tunes the turn pipeline.
type PipelineConfig struct {
	// SystemPrompt is prepended to every reply-generation request.
	SystemPrompt string `yaml:"system_prompt"`

	// Per-stage timeouts in milliseconds. Zero means the pipeline default.
	STTTimeoutMs int `yaml:"stt_timeout_ms"`
	LLMTimeoutMs int `yaml:"llm_timeout_ms"`
	TTSTimeoutMs int `yaml:"tts_timeout_ms"`
}

// STTTimeout returns the configured transcription timeout, zero when unset.
func (p PipelineConfig) STTTimeout() time.Duration {
	return time.Duration(p.STTTimeoutMs) * time.Millisecond
}

// LLMTimeout returns the configured generation timeout, zero when unset.
func (p PipelineConfig) LLMTimeout() time.Duration {
	return time.Duration(p.LLMTimeoutMs) * time.Millisecond
}

// TTSTimeout returns the configured synthesis timeout, zero when unset.
func (p PipelineConfig) TTSTimeout() time.Duration {
	return time.Duration(p.TTSTimeoutMs) * time.Millisecond
}
