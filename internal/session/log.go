package session

import (
	"sync"

	"github.com/voxloop/voxloop/pkg/types"
)

// Log is the ordered, append-only conversation record for one session.
//
// The log is mutated only by the turn pipeline, which runs strictly
// sequentially per session, but it may be read concurrently (e.g., by a turn
// in another goroutine taking a history snapshot), so all access is guarded.
// Entries are never removed or rewritten: a user utterance committed before a
// failed generation step stands.
//
// Role alternation is not validated — consecutive same-role entries are
// permitted and must not corrupt the log.
type Log struct {
	mu      sync.RWMutex
	entries []types.Utterance
}

// NewLog returns an empty conversation log.
func NewLog() *Log {
	return &Log{}
}

// Append adds u to the end of the log. O(1) amortised.
func (l *Log) Append(u types.Utterance) {
	l.mu.Lock()
	l.entries = append(l.entries, u)
	l.mu.Unlock()
}

// Snapshot returns a consistent point-in-time copy of the full history, in
// append order. The returned slice is owned by the caller; later appends do
// not affect it.
func (l *Log) Snapshot() []types.Utterance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Utterance, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the most recent utterance. The second return value is false
// when the log is empty.
func (l *Log) Last() (types.Utterance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return types.Utterance{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len returns the number of utterances in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
