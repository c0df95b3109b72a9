// Package session holds the per-conversation state of voxloop: the
// append-only conversation log, the session registry, and the per-session
// output queues consumed by the realtime transport and the event subscriber.
//
// Nothing in this package is persisted — a session's history lives exactly
// as long as the session itself.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by [Registry.Lookup] and surfaced by the
// boundary endpoints when the given session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// TriggerFactory builds the turn detector for a freshly created session.
// The registry calls it exactly once per session, after the session's log
// and outputs exist, so the detector may capture the session reference.
type TriggerFactory func(s *Session) TurnTrigger

// Registry maps session identifiers to live sessions. It is the only
// structure in the core that is shared mutable state across sessions, and
// all its methods are safe for concurrent use.
type Registry struct {
	// OnCreate and OnRemove are optional lifecycle hooks, invoked after a
	// session is registered or removed. Set them before the registry is
	// shared; they are not synchronised against concurrent mutation.
	OnCreate func(*Session)
	OnRemove func(*Session)

	mu         sync.RWMutex
	sessions   map[string]*Session
	newTrigger TriggerFactory
}

// NewRegistry creates an empty registry. newTrigger must be non-nil; it is
// invoked for every created session to attach its turn detector.
func NewRegistry(newTrigger TriggerFactory) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		newTrigger: newTrigger,
	}
}

// GetOrCreate returns the session registered under id, creating it on first
// contact. Creation is idempotent: an existing session is returned untouched,
// with none of its state cleared.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won.
	if s, ok := r.sessions[id]; ok {
		return s
	}

	ctx, cancel := context.WithCancel(context.Background())
	s = &Session{
		ID:        id,
		Log:       NewLog(),
		Outputs:   NewOutputs(),
		StartedAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.trigger = r.newTrigger(s)
	r.sessions[id] = s

	slog.Info("session created", "session_id", id)
	if r.OnCreate != nil {
		r.OnCreate(s)
	}
	return s
}

// Create registers a new session under a generated identifier. Used when the
// transport connects without naming a session.
func (r *Registry) Create() *Session {
	return r.GetOrCreate(uuid.NewString())
}

// Lookup returns the session registered under id, or [ErrSessionNotFound].
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove destroys the session registered under id: its context is cancelled
// so in-flight synthesis stops, its output queues are released, and the id
// becomes unknown. In-flight pipeline work may still complete, but further
// output is discarded. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	s.cancel()
	s.Outputs.Close()
	slog.Info("session removed", "session_id", id, "utterances", s.Log.Len())
	if r.OnRemove != nil {
		r.OnRemove(s)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
