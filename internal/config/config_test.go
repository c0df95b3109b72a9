package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	llmmock "github.com/voxloop/voxloop/pkg/provider/llm/mock"
	"github.com/voxloop/voxloop/pkg/provider/stt"
	sttmock "github.com/voxloop/voxloop/pkg/provider/stt/mock"
	"github.com/voxloop/voxloop/pkg/provider/tts"
	ttsmock "github.com/voxloop/voxloop/pkg/provider/tts/mock"
	"github.com/voxloop/voxloop/pkg/provider/vad"
	"github.com/voxloop/voxloop/pkg/provider/vad/energy"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  static_dir: ./web

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  stt:
    name: whisper
    base_url: http://localhost:8178
  tts:
    name: piper
    base_url: http://localhost:5000
  vad:
    name: energy

detector:
  sample_rate_hz: 16000
  silence_ms: 600
  max_turn_ms: 20000
  speech_threshold: 0.02
  silence_threshold: 0.01

pipeline:
  system_prompt: You are a helpful voice assistant.
  llm_timeout_ms: 30000
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Server.StaticDir != "./web" {
		t.Errorf("server.static_dir: got %q", cfg.Server.StaticDir)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("providers.llm.name: got %q, want %q", cfg.Providers.LLM.Name, "openai")
	}
	if cfg.Providers.STT.BaseURL != "http://localhost:8178" {
		t.Errorf("providers.stt.base_url: got %q", cfg.Providers.STT.BaseURL)
	}
	if cfg.Detector.SilenceMs != 600 {
		t.Errorf("detector.silence_ms: got %d, want 600", cfg.Detector.SilenceMs)
	}
	if cfg.Pipeline.SystemPrompt == "" {
		t.Error("pipeline.system_prompt: got empty")
	}
	if cfg.Pipeline.LLMTimeout() != 30*time.Second {
		t.Errorf("pipeline.llm_timeout: got %v, want 30s", cfg.Pipeline.LLMTimeout())
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := sampleYAML + "\nsurprise: true\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/voxloop.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: verbose
providers:
  llm:
    name: openai
  stt:
    name: whisper
  tts:
    name: piper
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MissingProviders(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err == nil {
		t.Fatal("expected error for missing providers, got nil")
	}
	for _, want := range []string{"providers.llm", "providers.stt", "providers.tts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	yaml := `
server:
  tls:
    cert_file: /etc/voxloop/tls.crt
providers:
  llm:
    name: openai
  stt:
    name: whisper
  tts:
    name: piper
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for partial TLS config, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_ThresholdOutOfRange(t *testing.T) {
	yaml := `
providers:
  llm:
    name: openai
  stt:
    name: whisper
  tts:
    name: piper
detector:
  speech_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range speech_threshold, got nil")
	}
}

func TestValidate_SilenceThresholdAboveSpeech(t *testing.T) {
	yaml := `
providers:
  llm:
    name: openai
  stt:
    name: whisper
  tts:
    name: piper
detector:
  speech_threshold: 0.01
  silence_threshold: 0.05
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for silence_threshold above speech_threshold, got nil")
	}
}

func TestValidate_MaxTurnMustExceedSilence(t *testing.T) {
	yaml := `
providers:
  llm:
    name: openai
  stt:
    name: whisper
  tts:
    name: piper
detector:
  silence_ms: 5000
  max_turn_ms: 1000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for max_turn_ms below silence_ms, got nil")
	}
}

// ── Defaults ──────────────────────────────────────────────────────────────────

func TestDetectorConfig_Defaults(t *testing.T) {
	var d config.DetectorConfig
	if d.SampleRate() != 16000 {
		t.Errorf("default sample rate: got %d, want 16000", d.SampleRate())
	}
	if d.SilenceDuration() != 800*time.Millisecond {
		t.Errorf("default silence duration: got %v, want 800ms", d.SilenceDuration())
	}
	if d.MaxTurnDuration() != 30*time.Second {
		t.Errorf("default max turn duration: got %v, want 30s", d.MaxTurnDuration())
	}
}

func TestPipelineConfig_UnsetTimeoutsAreZero(t *testing.T) {
	var p config.PipelineConfig
	if p.STTTimeout() != 0 || p.LLMTimeout() != 0 || p.TTSTimeout() != 0 {
		t.Error("unset timeouts should be zero so the pipeline applies its own defaults")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownProviders(t *testing.T) {
	reg := config.NewRegistry()

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterLLM("mockllm", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterSTT("mockstt", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
	reg.RegisterTTS("mocktts", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "mockllm"}); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "mockstt"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "mocktts"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "energy"}); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("bad credentials")
	reg.RegisterLLM("failing", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "failing"})
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want factory error", err)
	}
}
