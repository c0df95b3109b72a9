// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP at all. /readyz
// runs every registered [Checker] and answers 503 if any of them fails. Both
// respond with a JSON report: a top-level "status" plus, for readiness, a
// per-checker map carrying status, error text, and probe latency.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Each readiness check gets its own deadline so one stuck dependency cannot
// pin the probe past the kubelet's timeout.
const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when the dependency is
// usable and must respect context cancellation.
type Checker struct {
	// Name keys the check's entry in the JSON report ("stt", "llm", ...).
	Name string

	Check func(ctx context.Context) error
}

type probeResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

type report struct {
	Status string                 `json:"status"`
	Checks map[string]probeResult `json:"checks,omitempty"`
}

// Handler answers the probe endpoints. The checker list is fixed at
// construction, so a Handler is safe to share across requests.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers in order on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker and answers 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]probeResult, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		pr := h.runCheck(r.Context(), c)
		if pr.Status != "ok" {
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
		}
		rep.Checks[c.Name] = pr
	}

	writeJSON(w, status, rep)
}

func (h *Handler) runCheck(ctx context.Context, c Checker) probeResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	pr := probeResult{
		Status:  "ok",
		Latency: time.Since(start).Round(time.Microsecond).String(),
	}
	if err != nil {
		pr.Status = "fail"
		pr.Error = err.Error()
	}
	return pr
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
