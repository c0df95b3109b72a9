// Package stt defines the Provider interface for speech-to-text backends.
//
// The turn pipeline hands a provider exactly one finalized turn of audio at a
// time — the pause detector has already decided where the utterance ends — so
// the contract is a single batch call rather than a streaming session. This
// fits whisper.cpp's /inference endpoint directly and keeps hosted streaming
// APIs usable through their pre-recorded modes.
//
// Implementations must be safe for concurrent use: turns from different
// sessions may transcribe in parallel.
package stt

import (
	"context"
	"time"

	"github.com/voxloop/voxloop/pkg/types"
)

// Transcript is the result of transcribing one turn of audio.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one finalized turn of audio to text. The frame
	// carries raw 16-bit little-endian PCM at the frame's declared sample
	// rate and channel count.
	//
	// Transcribe may block for unbounded external latency; it must respect
	// ctx cancellation. A non-nil error means the turn is aborted with no
	// conversation-state change.
	Transcribe(ctx context.Context, frame types.AudioFrame) (Transcript, error)
}
