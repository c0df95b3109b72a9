package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "echo"},
	"stt": {"whisper"},
	"tts": {"elevenlabs", "piper"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Providers — every pipeline stage needs one.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Fallback entries need names too, and must not nest further.
	for kind, entry := range map[string]ProviderEntry{
		"llm": cfg.Providers.LLM, "stt": cfg.Providers.STT, "tts": cfg.Providers.TTS,
	} {
		for i, fb := range entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			}
			if len(fb.Fallbacks) > 0 {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d] must not declare its own fallbacks", kind, i))
			}
			validateProviderName(kind, fb.Name)
		}
	}

	// Detector
	d := cfg.Detector
	if d.SampleRateHz < 0 {
		errs = append(errs, fmt.Errorf("detector.sample_rate_hz %d must be positive", d.SampleRateHz))
	}
	if d.SilenceMs < 0 {
		errs = append(errs, fmt.Errorf("detector.silence_ms %d must be positive", d.SilenceMs))
	}
	if d.MaxTurnMs < 0 {
		errs = append(errs, fmt.Errorf("detector.max_turn_ms %d must be positive", d.MaxTurnMs))
	}
	if d.MaxTurnMs > 0 && d.SilenceMs > 0 && d.MaxTurnMs <= d.SilenceMs {
		errs = append(errs, fmt.Errorf("detector.max_turn_ms %d must exceed detector.silence_ms %d", d.MaxTurnMs, d.SilenceMs))
	}
	if d.SpeechThreshold < 0 || d.SpeechThreshold >= 1 {
		errs = append(errs, fmt.Errorf("detector.speech_threshold %.3f is out of range [0, 1)", d.SpeechThreshold))
	}
	if d.SilenceThreshold < 0 || d.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("detector.silence_threshold %.3f is out of range [0, 1)", d.SilenceThreshold))
	}
	if d.SpeechThreshold > 0 && d.SilenceThreshold > 0 && d.SilenceThreshold > d.SpeechThreshold {
		errs = append(errs, fmt.Errorf("detector.silence_threshold %.3f must not exceed detector.speech_threshold %.3f", d.SilenceThreshold, d.SpeechThreshold))
	}

	// Pipeline
	p := cfg.Pipeline
	if p.STTTimeoutMs < 0 || p.LLMTimeoutMs < 0 || p.TTSTimeoutMs < 0 {
		errs = append(errs, errors.New("pipeline timeouts must be positive"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
