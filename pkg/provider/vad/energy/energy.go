// Package energy provides a pure-Go VAD engine based on RMS signal energy
// with hysteresis. It needs no model files or cgo, which makes it the
// default engine: accurate enough to find pause boundaries in close-mic
// speech, and cheap enough to run on every ingested frame.
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/voxloop/voxloop/pkg/provider/vad"
)

// Consecutive-frame counts required before flipping state. Smoothing over a
// few frames avoids flickering on plosives and breath noise.
const (
	speechFramesToStart = 2
	silenceFramesToEnd  = 3
)

// Engine implements vad.Engine using per-frame RMS energy.
type Engine struct{}

// New returns an energy-based VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = 0.015
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = 0.008
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %.4f exceeds speech threshold %.4f",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	return &handle{cfg: cfg}, nil
}

// handle holds the hysteresis state for one audio stream.
type handle struct {
	cfg vad.Config

	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

// ProcessFrame implements vad.SessionHandle.
func (h *handle) ProcessFrame(frame []byte) (vad.Event, error) {
	if h.closed {
		return vad.Event{}, errors.New("energy: session is closed")
	}
	if len(frame)%2 != 0 {
		return vad.Event{}, fmt.Errorf("energy: frame length %d is not 16-bit aligned", len(frame))
	}

	level := rms(frame)

	if h.inSpeech {
		if level < h.cfg.SilenceThreshold {
			h.silenceCount++
			h.speechCount = 0
			if h.silenceCount >= silenceFramesToEnd {
				h.inSpeech = false
				h.silenceCount = 0
			}
		} else {
			h.silenceCount = 0
		}
	} else {
		if level >= h.cfg.SpeechThreshold {
			h.speechCount++
			h.silenceCount = 0
			if h.speechCount >= speechFramesToStart {
				h.inSpeech = true
				h.speechCount = 0
			}
		} else {
			h.speechCount = 0
		}
	}

	return vad.Event{Speech: h.inSpeech, Level: level}, nil
}

// Reset implements vad.SessionHandle.
func (h *handle) Reset() {
	h.inSpeech = false
	h.speechCount = 0
	h.silenceCount = 0
}

// Close implements vad.SessionHandle.
func (h *handle) Close() error {
	h.closed = true
	return nil
}

// rms computes the root mean square of 16-bit little-endian PCM, normalised
// to [0.0, 1.0].
func rms(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[2*i:]))
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
