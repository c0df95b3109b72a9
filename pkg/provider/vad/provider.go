// Package vad defines the Engine interface for voice activity detection.
//
// A VAD engine classifies raw PCM frames as speech or silence and surfaces
// the result as a stateful, per-stream session. Each session maintains its
// own smoothing state so that concurrent audio streams are processed
// independently. The pause detector uses these classifications to decide
// when a conversational turn has ended.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, making it suitable for the non-blocking ingest path.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation documents otherwise.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// SpeechThreshold is the level above which a frame is classified as
	// speech. For the energy engine this is normalised RMS in [0.0, 1.0].
	// Higher values reduce false positives at the cost of clipped speech
	// onsets. Typical: 0.015.
	SpeechThreshold float64

	// SilenceThreshold is the level below which a frame is classified as
	// silence. Must be ≤ SpeechThreshold; the gap between the two provides
	// hysteresis so the classification does not flicker. Typical: 0.008.
	SilenceThreshold float64
}

// Event is the classification result for a single audio frame.
type Event struct {
	// Speech reports whether the frame is part of active speech.
	Speech bool

	// Level is the measured signal level that produced the classification,
	// in the engine's native scale (normalised RMS for the energy engine).
	Level float64
}

// SessionHandle is an active VAD session for a single audio stream. It is an
// interface so that test code can supply scripted classifications without a
// live engine.
type SessionHandle interface {
	// ProcessFrame classifies a single frame of raw 16-bit little-endian PCM.
	// It must not block; it is called synchronously in the ingest loop.
	// Returns an error if the frame is malformed (e.g., odd byte count).
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated smoothing state without closing the session.
	// Use when the audio stream is interrupted or restarted.
	Reset()

	// Close releases the session. After Close, ProcessFrame returns an
	// error. Calling Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a session with the given configuration, immediately
	// ready to accept frames. Returns an error if the configuration is
	// invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
