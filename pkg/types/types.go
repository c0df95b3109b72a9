// Package types defines the shared types used across all voxloop packages.
//
// These types form the lingua franca between the turn pipeline, the providers,
// and the transport layer. They are intentionally minimal — each package defines
// its own domain types, but cross-cutting data structures live here to avoid
// circular imports.
package types

import "time"

// AudioFrame represents a single frame of audio data flowing through the
// pipeline. Frames are the atomic unit of audio transport — ingested from the
// client connection, accumulated by the turn detector, and emitted by
// synthesis.
type AudioFrame struct {
	// Data is raw 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input, 24000 for synthesis output).
	SampleRate int

	// Channels: 1 for mono. The pipeline is mono end-to-end.
	Channels int

	// Timestamp marks when this frame was captured, relative to session start.
	Timestamp time.Duration
}

// Empty reports whether the frame carries no samples. An empty frame is a
// valid sentinel: dispatched as a turn, it requests a replay of the previous
// reply's audio instead of a new transcription.
func (f AudioFrame) Empty() bool {
	return len(f.Data) == 0
}

// Role identifies who produced an utterance.
type Role string

const (
	// RoleUser marks utterances transcribed from the client's speech or
	// injected as raw text.
	RoleUser Role = "user"

	// RoleAssistant marks utterances produced by the reply generator.
	RoleAssistant Role = "assistant"
)

// Utterance is one role-tagged piece of conversational content. It is
// immutable once created; the conversation log appends utterances in
// production order and never rewrites them.
type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnEventType discriminates the two kinds of side-channel events.
type TurnEventType string

const (
	// EventTranscript is emitted when a spoken turn has been transcribed.
	// Injected text turns do not produce a transcript event.
	EventTranscript TurnEventType = "transcript"

	// EventReply is emitted when the generator has produced a reply.
	EventReply TurnEventType = "reply"
)

// TurnEvent is a textual notification delivered on the per-session event
// channel, distinct from the audio channel. Events are delivered in
// production order; there is no history replay for late subscribers.
type TurnEvent struct {
	Type      TurnEventType `json:"type"`
	Utterance Utterance     `json:"utterance"`
}
