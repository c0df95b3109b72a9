package turn

import (
	"errors"
	"fmt"
)

// ErrInvalidFrame is returned when ingested audio is malformed (e.g., not
// 16-bit aligned PCM).
var ErrInvalidFrame = errors.New("invalid audio frame")

// TranscriptionError wraps a speech-to-text failure. The turn aborts with no
// conversation-state change.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// GenerationError wraps a reply-generation failure. The user utterance
// appended before the call stands — the log is never rolled back.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("reply generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SynthesisError wraps a text-to-speech failure. The turn's text is already
// committed and delivered on the event channel; only the audio leg stops.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
