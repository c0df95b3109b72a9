package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/voxloop/voxloop/pkg/types"
)

const (
	// audioQueueDepth bounds the synthesized-audio queue. Synthesis blocks
	// when the transport falls this far behind, which applies natural
	// backpressure to the provider stream.
	audioQueueDepth = 64

	// eventQueueDepth bounds the side-channel event queue. Event delivery is
	// best-effort: a subscriber that connects late or stops reading loses
	// events rather than stalling the pipeline.
	eventQueueDepth = 8
)

// Outputs holds the two independently consumed delivery channels for one
// session: synthesized audio frames for the realtime transport, and
// structured turn events for the side-channel subscriber. Both preserve
// production order within themselves; no relative order is guaranteed
// between them.
//
// Outputs is owned by its Session and released on session removal. Pushes
// after release are no-ops, never faults — an in-flight synthesis stream may
// outlive the session by a few frames.
type Outputs struct {
	audio  chan types.AudioFrame
	events chan types.TurnEvent

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewOutputs creates the per-session output queues.
func NewOutputs() *Outputs {
	return &Outputs{
		audio:  make(chan types.AudioFrame, audioQueueDepth),
		events: make(chan types.TurnEvent, eventQueueDepth),
		done:   make(chan struct{}),
	}
}

// PushAudio enqueues one synthesized frame. It blocks while the audio queue
// is full, and returns false when ctx is cancelled or the outputs have been
// released (frame dropped).
func (o *Outputs) PushAudio(ctx context.Context, frame types.AudioFrame) bool {
	if o.closed.Load() {
		return false
	}
	select {
	case o.audio <- frame:
		return true
	case <-o.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// PushEvent enqueues one turn event. It never blocks: if the subscriber is
// absent or too slow the event is dropped and PushEvent returns false.
func (o *Outputs) PushEvent(ev types.TurnEvent) bool {
	if o.closed.Load() {
		return false
	}
	select {
	case o.events <- ev:
		return true
	case <-o.done:
		return false
	default:
		return false
	}
}

// NextAudio blocks until the next synthesized frame is available. It returns
// false when ctx is cancelled or the outputs have been released and drained.
func (o *Outputs) NextAudio(ctx context.Context) (types.AudioFrame, bool) {
	select {
	case f := <-o.audio:
		return f, true
	default:
	}
	select {
	case f := <-o.audio:
		return f, true
	case <-o.done:
		return types.AudioFrame{}, false
	case <-ctx.Done():
		return types.AudioFrame{}, false
	}
}

// NextEvent blocks until the next turn event is available. It returns false
// when ctx is cancelled or the outputs have been released and drained.
func (o *Outputs) NextEvent(ctx context.Context) (types.TurnEvent, bool) {
	select {
	case ev := <-o.events:
		return ev, true
	default:
	}
	select {
	case ev := <-o.events:
		return ev, true
	case <-o.done:
		return types.TurnEvent{}, false
	case <-ctx.Done():
		return types.TurnEvent{}, false
	}
}

// Close releases the queues. Idempotent. The underlying channels are never
// closed — writers still holding a reference observe the done signal instead,
// so a push racing with Close is a dropped frame, not a panic.
func (o *Outputs) Close() {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		close(o.done)
	})
}
