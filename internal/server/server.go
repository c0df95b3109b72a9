// Package server exposes the voxloop conversation boundary over HTTP:
// WebSocket endpoints for audio exchange and event subscription, JSON
// endpoints for text injection and session control, and the operational
// endpoints (health, metrics, optional static files).
package server

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxloop/voxloop/internal/health"
	"github.com/voxloop/voxloop/internal/observe"
	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/turn"
)

// Config holds the collaborators of a [Server].
type Config struct {
	// Registry holds the live sessions. Required.
	Registry *session.Registry

	// Pipeline runs text-injection turns. Required. Audio-driven turns reach
	// the pipeline through each session's detector instead.
	Pipeline *turn.Pipeline

	// Health serves the liveness and readiness probes. Required.
	Health *health.Handler

	// Metrics instruments the HTTP layer. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// SampleRate tags ingested audio frames, in Hz. Zero means 16000.
	SampleRate int

	// StaticDir, when set, is served at the root path.
	StaticDir string
}

// Server is the HTTP boundary of voxloop. Construct with [New], mount via
// [Server.Handler].
type Server struct {
	registry   *session.Registry
	pipeline   *turn.Pipeline
	metrics    *observe.Metrics
	health     *health.Handler
	sampleRate int
	staticDir  string
}

// New validates cfg and returns a ready Server.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("server: session registry is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("server: turn pipeline is required")
	}
	if cfg.Health == nil {
		return nil, errors.New("server: health handler is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Server{
		registry:   cfg.Registry,
		pipeline:   cfg.Pipeline,
		metrics:    cfg.Metrics,
		health:     cfg.Health,
		sampleRate: cfg.SampleRate,
		staticDir:  cfg.StaticDir,
	}, nil
}

// Handler returns the fully routed handler:
//
//	GET    /v1/sessions/{id}/audio   — WebSocket: ingest caller audio, stream reply audio
//	GET    /v1/sessions/{id}/events  — WebSocket: subscribe to turn events
//	POST   /v1/sessions/{id}/inject  — inject a text utterance, returns the reply
//	POST   /v1/sessions/{id}/trigger — force a turn boundary
//	DELETE /v1/sessions/{id}         — remove the session
//	GET    /healthz, /readyz         — probes
//	GET    /metrics                  — Prometheus scrape endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/audio", s.handleAudio)
	mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /v1/sessions/{id}/inject", s.handleInject)
	mux.HandleFunc("POST /v1/sessions/{id}/trigger", s.handleTrigger)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleRemove)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	}

	return observe.Middleware(s.metrics)(mux)
}
