package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/turn"
)

// injectRequest is the JSON body for the inject endpoint.
type injectRequest struct {
	Text string `json:"text"`
}

// injectResponse is the JSON body returned from the inject endpoint.
type injectResponse struct {
	Reply string `json:"reply"`
}

// handleInject handles POST /v1/sessions/{id}/inject. The text is appended
// to the conversation as a user utterance and the generated reply is
// returned synchronously; the reply's audio is synthesized onto the
// session's audio stream afterwards.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	reply, err := s.pipeline.RunTextTurn(r.Context(), sess, req.Text)
	if err != nil {
		slog.Error("text injection failed", "session_id", sess.ID, "err", err)
		var gerr *turn.GenerationError
		if errors.As(err, &gerr) {
			http.Error(w, "reply generation failed", http.StatusBadGateway)
			return
		}
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}

	// Kick the audio leg: a forced turn boundary with nothing buffered
	// replays the newest log entry, which is the reply just generated.
	go sess.Trigger()

	writeJSON(w, http.StatusOK, injectResponse{Reply: reply})
}

// handleTrigger handles POST /v1/sessions/{id}/trigger. It forces a turn
// boundary with whatever audio the detector has buffered and returns without
// waiting for the turn to run.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	go sess.Trigger()
	w.WriteHeader(http.StatusAccepted)
}

// handleRemove handles DELETE /v1/sessions/{id}. Removing an unknown id is a
// no-op, not an error.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.registry.Remove(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves the {id} path segment to a live session, writing a 404
// when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.registry.Lookup(r.PathValue("id"))
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}
