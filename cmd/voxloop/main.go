// Command voxloop is the main entry point for the voxloop voice
// conversation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/health"
	"github.com/voxloop/voxloop/internal/observe"
	"github.com/voxloop/voxloop/internal/resilience"
	"github.com/voxloop/voxloop/internal/server"
	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/turn"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	"github.com/voxloop/voxloop/pkg/provider/llm/anyllm"
	"github.com/voxloop/voxloop/pkg/provider/llm/echo"
	oaillm "github.com/voxloop/voxloop/pkg/provider/llm/openai"
	"github.com/voxloop/voxloop/pkg/provider/stt"
	"github.com/voxloop/voxloop/pkg/provider/stt/whisper"
	"github.com/voxloop/voxloop/pkg/provider/tts"
	"github.com/voxloop/voxloop/pkg/provider/tts/elevenlabs"
	"github.com/voxloop/voxloop/pkg/provider/tts/piper"
	"github.com/voxloop/voxloop/pkg/provider/vad"
	"github.com/voxloop/voxloop/pkg/provider/vad/energy"
	"github.com/voxloop/voxloop/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxloop: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxloop: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	slog.Info("voxloop starting",
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxloop"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Pipeline and sessions ─────────────────────────────────────────────────
	pipeline, err := turn.NewPipeline(turn.PipelineConfig{
		STT:          providers.STT,
		LLM:          providers.LLM,
		TTS:          providers.TTS,
		SystemPrompt: cfg.Pipeline.SystemPrompt,
		Metrics:      metrics,
		STTTimeout:   cfg.Pipeline.STTTimeout(),
		LLMTimeout:   cfg.Pipeline.LLMTimeout(),
		TTSTimeout:   cfg.Pipeline.TTSTimeout(),
	})
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	sessions := session.NewRegistry(triggerFactory(cfg.Detector, providers.VAD, pipeline))
	sessions.OnCreate = func(*session.Session) { metrics.ActiveSessions.Add(context.Background(), 1) }
	sessions.OnRemove = func(*session.Session) { metrics.ActiveSessions.Add(context.Background(), -1) }

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Registry:   sessions,
		Pipeline:   pipeline,
		Metrics:    metrics,
		Health:     health.New(providerCheckers(providers)...),
		SampleRate: cfg.Detector.SampleRate(),
		StaticDir:  cfg.Server.StaticDir,
	})
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg, listenAddr)
	slog.Info("server ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// Providers holds one interface value per pipeline stage, populated from
// the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Engine
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the
// appropriate provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The native OpenAI client carries request tuning the generic bridge does
	// not expose.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// echo needs no backend; useful for trying out the audio loop.
	reg.RegisterLLM("echo", func(config.ProviderEntry) (llm.Provider, error) {
		return echo.New(), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, optString(entry.Options, "voice_id"), opts...)
	})

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, piper.WithSampleRate(rate))
		}
		return piper.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry.
// Entries with fallbacks are wrapped in a circuit-breaking failover group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	p, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	if entry := cfg.Providers.LLM; len(entry.Fallbacks) > 0 {
		fb := resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{})
		for _, fbEntry := range entry.Fallbacks {
			fp, err := reg.CreateLLM(fbEntry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", fbEntry.Name, err)
			}
			fb.AddFallback(fbEntry.Name, fp)
		}
		ps.LLM = fb
	} else {
		ps.LLM = p
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name,
		"fallbacks", len(cfg.Providers.LLM.Fallbacks))

	s, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	if entry := cfg.Providers.STT; len(entry.Fallbacks) > 0 {
		fb := resilience.NewSTTFallback(s, entry.Name, resilience.FallbackConfig{})
		for _, fbEntry := range entry.Fallbacks {
			fp, err := reg.CreateSTT(fbEntry)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", fbEntry.Name, err)
			}
			fb.AddFallback(fbEntry.Name, fp)
		}
		ps.STT = fb
	} else {
		ps.STT = s
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name,
		"fallbacks", len(cfg.Providers.STT.Fallbacks))

	t, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	if entry := cfg.Providers.TTS; len(entry.Fallbacks) > 0 {
		fb := resilience.NewTTSFallback(t, entry.Name, resilience.FallbackConfig{})
		for _, fbEntry := range entry.Fallbacks {
			fp, err := reg.CreateTTS(fbEntry)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", fbEntry.Name, err)
			}
			fb.AddFallback(fbEntry.Name, fp)
		}
		ps.TTS = fb
	} else {
		ps.TTS = t
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name,
		"fallbacks", len(cfg.Providers.TTS.Fallbacks))

	// VAD defaults to the built-in energy engine when not configured.
	vadEntry := cfg.Providers.VAD
	if vadEntry.Name == "" {
		vadEntry.Name = "energy"
	}
	v, err := reg.CreateVAD(vadEntry)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", vadEntry.Name, err)
	}
	ps.VAD = v
	slog.Info("provider created", "kind", "vad", "name", vadEntry.Name)

	return ps, nil
}

// triggerFactory builds the per-session turn detector: a VAD session plus a
// dispatch hook that runs the pipeline against the owning session.
func triggerFactory(det config.DetectorConfig, engine vad.Engine, pipeline *turn.Pipeline) session.TriggerFactory {
	return func(sess *session.Session) session.TurnTrigger {
		vadSess, err := engine.NewSession(vad.Config{
			SampleRate:       det.SampleRate(),
			SpeechThreshold:  det.SpeechThreshold,
			SilenceThreshold: det.SilenceThreshold,
		})
		if err != nil {
			slog.Error("vad session creation failed, session will only respond to forced triggers",
				"session_id", sess.ID, "err", err)
			return inertTrigger{sess: sess, pipeline: pipeline}
		}

		d, err := turn.NewDetector(turn.DetectorConfig{
			VAD:             vadSess,
			SampleRate:      det.SampleRate(),
			SilenceDuration: det.SilenceDuration(),
			MaxTurnDuration: det.MaxTurnDuration(),
			Dispatch: func(frame types.AudioFrame) {
				if err := pipeline.RunAudioTurn(sess.Context(), sess, frame); err != nil {
					slog.Error("turn failed", "session_id", sess.ID, "err", err)
				}
			},
		})
		if err != nil {
			slog.Error("detector creation failed, session will only respond to forced triggers",
				"session_id", sess.ID, "err", err)
			return inertTrigger{sess: sess, pipeline: pipeline}
		}
		return d
	}
}

// inertTrigger is the degraded fallback when a session's detector could not
// be built: ingested audio is dropped, forced triggers still replay.
type inertTrigger struct {
	sess     *session.Session
	pipeline *turn.Pipeline
}

func (t inertTrigger) Feed(types.AudioFrame) {}

func (t inertTrigger) Trigger() {
	if err := t.pipeline.RunAudioTurn(t.sess.Context(), t.sess, types.AudioFrame{}); err != nil {
		slog.Error("forced turn failed", "session_id", t.sess.ID, "err", err)
	}
}

// providerCheckers builds the readiness checkers. Configuration is checked,
// not liveness: the providers are remote services probed on first use.
func providerCheckers(ps *Providers) []health.Checker {
	check := func(ok bool) func(context.Context) error {
		return func(context.Context) error {
			if !ok {
				return errors.New("not configured")
			}
			return nil
		}
	}
	return []health.Checker{
		{Name: "llm", Check: check(ps.LLM != nil)},
		{Name: "stt", Check: check(ps.STT != nil)},
		{Name: "tts", Check: check(ps.TTS != nil)},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxloop — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	fmt.Printf("║  Sample rate     : %-19d ║\n", cfg.Detector.SampleRate())
	fmt.Printf("║  Turn-end pause  : %-19s ║\n", cfg.Detector.SilenceDuration())
	fmt.Printf("║  Listen addr     : %-19s ║\n", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an int value from a provider Options map. YAML decodes
// unquoted numbers as int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}
