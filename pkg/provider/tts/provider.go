// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider wraps a synthesis service (e.g., ElevenLabs, or a local Piper
// instance) and presents a uniform streaming interface: Synthesize returns a
// lazy channel of audio frames so the first frame can reach the transport as
// soon as the backend produces it, before the full reply has been
// synthesised. This is the latency-critical leg of the pipeline.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/voxloop/voxloop/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to speech and returns a channel emitting
	// audio frames as they are produced. The sequence is lazy, finite, and
	// non-restartable.
	//
	// The channel is closed by the implementation when synthesis completes,
	// when ctx is cancelled, or when a mid-stream error occurs — callers
	// that need to distinguish cancellation should check ctx.Err() after
	// the channel closes. The caller must drain the channel to avoid
	// leaking the provider's internal goroutine.
	//
	// A non-nil error is returned only when the stream cannot be started.
	Synthesize(ctx context.Context, text string) (<-chan types.AudioFrame, error)
}
