package session

import (
	"context"
	"sync"
	"time"

	"github.com/voxloop/voxloop/pkg/types"
)

// TurnTrigger is the per-session turn-boundary detector as seen by the
// session layer. The concrete implementation lives in the turn package and
// is attached via the factory passed to [NewRegistry].
type TurnTrigger interface {
	// Feed hands one ingested audio frame to the detector. Non-blocking
	// local work except when a completed turn is dispatched, in which case
	// Feed returns only after the turn's pipeline run finishes.
	Feed(frame types.AudioFrame)

	// Trigger forces a turn boundary with whatever audio is currently
	// buffered, possibly none. This is how the text-injection path drives
	// the audio-output leg without new audio input.
	Trigger()
}

// Session is one logical conversation tied to a client connection
// identifier. It owns the conversation log, the output queues, and the turn
// trigger; all are released together when the registry removes the session.
type Session struct {
	// ID is the opaque session identifier.
	ID string

	// Log is the session's append-only conversation history.
	Log *Log

	// Outputs holds the audio and event delivery queues.
	Outputs *Outputs

	// StartedAt is when the session was created.
	StartedAt time.Time

	trigger TurnTrigger

	ctx    context.Context
	cancel context.CancelFunc

	// turnMu serialises turn execution: a new turn may not begin while a
	// prior turn's pipeline is still running for this session.
	turnMu sync.Mutex
}

// Context returns the session-scoped context. It is cancelled when the
// session is removed; in-flight synthesis for this session must stop as soon
// as practical after that.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Feed passes one ingested audio frame to the session's turn detector.
func (s *Session) Feed(frame types.AudioFrame) {
	s.trigger.Feed(frame)
}

// Trigger forces a turn boundary for this session.
func (s *Session) Trigger() {
	s.trigger.Trigger()
}

// Serialize runs fn while holding the session's turn lock. Turns for one
// session execute strictly sequentially; a turn started second observes the
// first turn's appended utterances in its history snapshot.
func (s *Session) Serialize(fn func()) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	fn()
}
