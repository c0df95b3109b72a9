package turn

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxloop/voxloop/pkg/provider/vad"
	"github.com/voxloop/voxloop/pkg/types"
)

// State is the pause detector's position in the turn-taking cycle.
type State int

const (
	// StateIdle means no speech has been heard since the last turn.
	StateIdle State = iota

	// StateAccumulating means speech has started and frames are being
	// buffered until a sustained pause ends the turn.
	StateAccumulating

	// StateTurnReady is the transient state while the accumulated turn is
	// being handed to the pipeline.
	StateTurnReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateTurnReady:
		return "turn-ready"
	default:
		return "unknown"
	}
}

const (
	defaultSilenceDuration = 800 * time.Millisecond
	defaultMaxTurnDuration = 30 * time.Second
)

// DetectorConfig holds the dependencies and tuning for a [Detector].
type DetectorConfig struct {
	// VAD classifies each ingested frame as speech or silence. Required.
	VAD vad.SessionHandle

	// Dispatch receives the accumulated audio when a turn boundary is
	// reached. It is called synchronously from Feed or Trigger. Required.
	Dispatch func(frame types.AudioFrame)

	// SampleRate of ingested PCM in Hz. Required.
	SampleRate int

	// SilenceDuration is the sustained pause that ends a turn.
	// Default: 800ms.
	SilenceDuration time.Duration

	// MaxTurnDuration caps how much audio one turn may accumulate before it
	// is force-dispatched. Default: 30s.
	MaxTurnDuration time.Duration
}

// Detector is the per-session pause detector and turn trigger. It consumes
// the session's live audio stream, buffers frames while the speaker is
// talking, and dispatches the accumulated audio as one turn when a sustained
// pause is detected — or immediately, with whatever is buffered, when
// triggered programmatically.
//
// One Detector owns exactly one session's audio buffer. Feed and Trigger are
// safe to call from different goroutines; dispatches never overlap.
type Detector struct {
	cfg DetectorConfig

	mu             sync.Mutex
	state          State
	buf            []byte
	silenceElapsed time.Duration

	// dispatchMu serialises dispatches so a programmatic trigger cannot
	// interleave with a silence-driven one.
	dispatchMu sync.Mutex
}

// NewDetector creates a Detector in the Idle state.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.VAD == nil {
		return nil, errors.New("detector: VAD session is required")
	}
	if cfg.Dispatch == nil {
		return nil, errors.New("detector: dispatch function is required")
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.New("detector: sample rate is required")
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = defaultSilenceDuration
	}
	if cfg.MaxTurnDuration <= 0 {
		cfg.MaxTurnDuration = defaultMaxTurnDuration
	}
	return &Detector{cfg: cfg}, nil
}

// State returns the detector's current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Feed consumes one live audio frame. Frame classification and buffering are
// non-blocking local work; when the frame completes a turn, Feed returns
// only after the dispatched pipeline run finishes.
func (d *Detector) Feed(frame types.AudioFrame) {
	d.mu.Lock()

	ev, err := d.cfg.VAD.ProcessFrame(frame.Data)
	if err != nil {
		d.mu.Unlock()
		slog.Warn("detector: vad classification failed, frame dropped", "err", err)
		return
	}

	switch d.state {
	case StateIdle:
		if !ev.Speech {
			d.mu.Unlock()
			return
		}
		d.state = StateAccumulating
		d.silenceElapsed = 0
		d.buf = append(d.buf, frame.Data...)
		d.mu.Unlock()

	case StateAccumulating:
		d.buf = append(d.buf, frame.Data...)
		if ev.Speech {
			d.silenceElapsed = 0
		} else {
			d.silenceElapsed += pcmDuration(len(frame.Data), d.cfg.SampleRate)
		}

		turnEnded := d.silenceElapsed >= d.cfg.SilenceDuration
		turnFull := pcmDuration(len(d.buf), d.cfg.SampleRate) >= d.cfg.MaxTurnDuration
		if !turnEnded && !turnFull {
			d.mu.Unlock()
			return
		}

		out := d.takeLocked()
		d.mu.Unlock()
		d.dispatch(out)

	default:
		// TurnReady is transient; a frame racing the hand-off is dropped.
		d.mu.Unlock()
	}
}

// Trigger forces a turn boundary with whatever audio is currently buffered,
// possibly none. An empty dispatch is meaningful: the pipeline treats it as
// a request to replay the previous reply's audio.
func (d *Detector) Trigger() {
	d.mu.Lock()
	out := d.takeLocked()
	d.mu.Unlock()
	d.dispatch(out)
}

// takeLocked snapshots and clears the buffer, moving the detector through
// TurnReady. Must be called with d.mu held.
func (d *Detector) takeLocked() types.AudioFrame {
	d.state = StateTurnReady
	out := types.AudioFrame{
		Data:       d.buf,
		SampleRate: d.cfg.SampleRate,
		Channels:   1,
	}
	d.buf = nil
	d.silenceElapsed = 0
	d.cfg.VAD.Reset()
	return out
}

// dispatch hands one completed turn to the pipeline and returns the
// detector to Idle.
func (d *Detector) dispatch(frame types.AudioFrame) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	d.cfg.Dispatch(frame)

	d.mu.Lock()
	d.state = StateIdle
	d.mu.Unlock()
}

// pcmDuration returns the play duration of a mono 16-bit PCM byte count.
func pcmDuration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(byteLen/2) * time.Second / time.Duration(sampleRate)
}
