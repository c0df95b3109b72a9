package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxloop/voxloop/internal/observe"
	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	"github.com/voxloop/voxloop/pkg/provider/stt"
	"github.com/voxloop/voxloop/pkg/provider/tts"
	"github.com/voxloop/voxloop/pkg/types"
)

const (
	defaultSTTTimeout = 30 * time.Second
	defaultLLMTimeout = 60 * time.Second
	defaultTTSTimeout = 60 * time.Second
)

// PipelineConfig holds the collaborators and tuning for a [Pipeline].
type PipelineConfig struct {
	// STT transcribes finalized turn audio. Required.
	STT stt.Provider

	// LLM generates the assistant reply. Required.
	LLM llm.Provider

	// TTS synthesizes reply audio. Required.
	TTS tts.Provider

	// SystemPrompt is prepended to every completion request. Optional.
	SystemPrompt string

	// Metrics receives per-stage latency and error counts. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Per-stage timeouts. Zero means the package default.
	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration
}

// Pipeline runs complete conversation turns: transcribe, append to the
// session log, generate a reply, append it, and stream synthesized audio
// into the session's output queue.
//
// A Pipeline is stateless across turns and shared by all sessions. Per-turn
// ordering is enforced through [session.Session.Serialize], so two turns for
// the same session never interleave; turns for different sessions run
// concurrently.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline validates cfg and returns a ready Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.STT == nil {
		return nil, errors.New("pipeline: STT provider is required")
	}
	if cfg.LLM == nil {
		return nil, errors.New("pipeline: LLM provider is required")
	}
	if cfg.TTS == nil {
		return nil, errors.New("pipeline: TTS provider is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.STTTimeout <= 0 {
		cfg.STTTimeout = defaultSTTTimeout
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}
	if cfg.TTSTimeout <= 0 {
		cfg.TTSTimeout = defaultTTSTimeout
	}
	return &Pipeline{cfg: cfg}, nil
}

// RunAudioTurn executes one audio-driven turn for sess.
//
// An empty frame is the replay request: the most recent log entry is
// re-synthesized and streamed without touching the log or emitting events.
// Replaying an empty log is a no-op.
//
// A non-empty frame is transcribed, the transcript is appended as a user
// utterance and announced on the event channel, a reply is generated from
// the full history, appended, announced, and synthesized into the audio
// queue. A transcription failure leaves the log untouched; a generation
// failure leaves the user utterance committed.
func (p *Pipeline) RunAudioTurn(ctx context.Context, sess *session.Session, frame types.AudioFrame) error {
	var err error
	sess.Serialize(func() {
		start := time.Now()
		kind := "audio"
		if frame.Empty() {
			kind = "replay"
			err = p.replay(ctx, sess)
		} else {
			err = p.audioTurn(ctx, sess, frame)
		}
		p.observeTurn(ctx, kind, start, err)
	})
	return err
}

// RunTextTurn executes one injected-text turn for sess and returns the reply
// text. The injected text is appended as a user utterance without a
// transcript event; the reply is appended and announced like any other.
// Audio for the reply is not produced here — callers that want the audio leg
// trigger a replay afterwards.
func (p *Pipeline) RunTextTurn(ctx context.Context, sess *session.Session, text string) (string, error) {
	var reply string
	var err error
	sess.Serialize(func() {
		start := time.Now()
		sess.Log.Append(types.Utterance{Role: types.RoleUser, Content: text})
		reply, err = p.generate(ctx, sess)
		p.observeTurn(ctx, "text", start, err)
	})
	return reply, err
}

// audioTurn is the non-empty-frame body of RunAudioTurn. Caller holds the
// session's turn lock.
func (p *Pipeline) audioTurn(ctx context.Context, sess *session.Session, frame types.AudioFrame) error {
	text, err := p.transcribe(ctx, frame)
	if err != nil {
		return &TranscriptionError{Err: err}
	}
	if text == "" {
		// Nothing intelligible in the audio. Not an error and not a turn.
		slog.Debug("pipeline: empty transcript, turn skipped", "session", sess.ID)
		return nil
	}

	user := types.Utterance{Role: types.RoleUser, Content: text}
	sess.Log.Append(user)
	p.emit(ctx, sess, types.TurnEvent{Type: types.EventTranscript, Utterance: user})

	reply, err := p.generate(ctx, sess)
	if err != nil {
		return err
	}
	return p.speak(ctx, sess, reply)
}

// replay re-synthesizes the most recent log entry. Caller holds the
// session's turn lock.
func (p *Pipeline) replay(ctx context.Context, sess *session.Session) error {
	last, ok := sess.Log.Last()
	if !ok {
		return nil
	}
	return p.speak(ctx, sess, last.Content)
}

// transcribe runs the STT stage with its timeout and metrics.
func (p *Pipeline) transcribe(ctx context.Context, frame types.AudioFrame) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.STTTimeout)
	defer cancel()

	start := time.Now()
	tr, err := p.cfg.STT.Transcribe(sctx, frame)
	p.cfg.Metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.cfg.Metrics.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "stt")))
		return "", err
	}
	return strings.TrimSpace(tr.Text), nil
}

// generate runs the LLM stage over the session's full history, appends the
// reply, and announces it. Caller holds the session's turn lock.
func (p *Pipeline) generate(ctx context.Context, sess *session.Session) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.cfg.LLM.Complete(lctx, llm.CompletionRequest{
		History:      sess.Log.Snapshot(),
		SystemPrompt: p.cfg.SystemPrompt,
	})
	p.cfg.Metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.cfg.Metrics.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "llm")))
		return "", &GenerationError{Err: err}
	}

	reply := types.Utterance{Role: types.RoleAssistant, Content: resp.Content}
	sess.Log.Append(reply)
	p.emit(ctx, sess, types.TurnEvent{Type: types.EventReply, Utterance: reply})
	return resp.Content, nil
}

// speak synthesizes text and streams the resulting frames into the session's
// audio queue. A push rejected because the session was released ends the
// stream quietly; the synthesis goroutine is unwound via context cancel.
func (p *Pipeline) speak(ctx context.Context, sess *session.Session, text string) error {
	tctx, cancel := context.WithTimeout(ctx, p.cfg.TTSTimeout)
	defer cancel()

	start := time.Now()
	frames, err := p.cfg.TTS.Synthesize(tctx, text)
	if err != nil {
		p.cfg.Metrics.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "tts")))
		return &SynthesisError{Err: err}
	}

	for frame := range frames {
		if !sess.Outputs.PushAudio(tctx, frame) {
			cancel()
			for range frames {
				// Drain so the provider goroutine can exit.
			}
			break
		}
	}
	p.cfg.Metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	return nil
}

// emit publishes a turn event, counting the drop if no subscriber is keeping
// up.
func (p *Pipeline) emit(ctx context.Context, sess *session.Session, ev types.TurnEvent) {
	if !sess.Outputs.PushEvent(ev) {
		p.cfg.Metrics.EventsDropped.Add(ctx, 1)
		slog.Debug("pipeline: event dropped, no subscriber reading",
			"session", sess.ID, "type", ev.Type)
	}
}

// observeTurn records the end-to-end turn metrics.
func (p *Pipeline) observeTurn(ctx context.Context, kind string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.cfg.Metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	p.cfg.Metrics.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}
