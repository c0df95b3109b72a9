package turn_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/turn"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	llmmock "github.com/voxloop/voxloop/pkg/provider/llm/mock"
	"github.com/voxloop/voxloop/pkg/provider/stt"
	sttmock "github.com/voxloop/voxloop/pkg/provider/stt/mock"
	ttsmock "github.com/voxloop/voxloop/pkg/provider/tts/mock"
	"github.com/voxloop/voxloop/pkg/types"
)

// nopTrigger satisfies session.TurnTrigger for sessions whose turns are
// driven directly through the pipeline in tests.
type nopTrigger struct{}

func (nopTrigger) Feed(types.AudioFrame) {}
func (nopTrigger) Trigger()              {}

type testEnv struct {
	stt      *sttmock.Provider
	llm      *llmmock.Provider
	tts      *ttsmock.Provider
	pipeline *turn.Pipeline
	registry *session.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		stt: &sttmock.Provider{Result: stt.Transcript{Text: "hello there"}},
		llm: &llmmock.Provider{Response: &llm.CompletionResponse{Content: "hi, how can I help"}},
		tts: &ttsmock.Provider{},
	}
	p, err := turn.NewPipeline(turn.PipelineConfig{
		STT: env.stt,
		LLM: env.llm,
		TTS: env.tts,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	env.pipeline = p
	env.registry = session.NewRegistry(func(*session.Session) session.TurnTrigger {
		return nopTrigger{}
	})
	return env
}

func audioFrame(data string) types.AudioFrame {
	return types.AudioFrame{Data: []byte(data), SampleRate: 16000, Channels: 1}
}

// drainAudio reads queued audio frames until the queue is momentarily empty.
func drainAudio(t *testing.T, sess *session.Session) []types.AudioFrame {
	t.Helper()
	var out []types.AudioFrame
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		f, ok := sess.Outputs.NextAudio(ctx)
		cancel()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

// drainEvents reads queued events until the queue is momentarily empty.
func drainEvents(t *testing.T, sess *session.Session) []types.TurnEvent {
	t.Helper()
	var out []types.TurnEvent
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		ev, ok := sess.Outputs.NextEvent(ctx)
		cancel()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func sameAudio(a, b []types.AudioFrame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if string(a[i].Data) != string(b[i].Data) {
			return false
		}
	}
	return true
}

func TestPipeline_AudioTurn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.registry.GetOrCreate("s1")

	if err := env.pipeline.RunAudioTurn(context.Background(), sess, audioFrame("pcm")); err != nil {
		t.Fatalf("RunAudioTurn: %v", err)
	}

	want := []types.Utterance{
		{Role: types.RoleUser, Content: "hello there"},
		{Role: types.RoleAssistant, Content: "hi, how can I help"},
	}
	got := sess.Log.Snapshot()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("log = %+v, want %+v", got, want)
	}

	events := drainEvents(t, sess)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != types.EventTranscript || events[0].Utterance != want[0] {
		t.Fatalf("first event = %+v, want transcript of user utterance", events[0])
	}
	if events[1].Type != types.EventReply || events[1].Utterance != want[1] {
		t.Fatalf("second event = %+v, want reply", events[1])
	}

	audio := drainAudio(t, sess)
	if !sameAudio(audio, ttsmock.FramesFor("hi, how can I help")) {
		t.Fatalf("audio does not match synthesized reply")
	}

	req, ok := env.llm.LastCall()
	if !ok || len(req.History) != 1 || req.History[0] != want[0] {
		t.Fatalf("generator saw history %+v, want the user utterance", req.History)
	}
}

func TestPipeline_Replay_RepeatsLastReplyAudio(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.registry.GetOrCreate("s1")

	if err := env.pipeline.RunAudioTurn(context.Background(), sess, audioFrame("pcm")); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	drainAudio(t, sess)
	drainEvents(t, sess)
	logBefore := sess.Log.Len()
	sttCalls := env.stt.CallCount()

	if err := env.pipeline.RunAudioTurn(context.Background(), sess, types.AudioFrame{}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	audio := drainAudio(t, sess)
	if !sameAudio(audio, ttsmock.FramesFor("hi, how can I help")) {
		t.Fatalf("replay audio does not match the previous reply")
	}
	if sess.Log.Len() != logBefore {
		t.Fatalf("replay mutated the log")
	}
	if len(drainEvents(t, sess)) != 0 {
		t.Fatalf("replay emitted events")
	}
	if env.stt.CallCount() != sttCalls {
		t.Fatalf("replay invoked transcription")
	}
}

func TestPipeline_Replay_EmptyLogIsNoOp(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.registry.GetOrCreate("s1")

	if err := env.pipeline.RunAudioTurn(context.Background(), sess, types.AudioFrame{}); err != nil {
		t.Fatalf("replay on empty log: %v", err)
	}
	if len(drainAudio(t, sess)) != 0 {
		t.Fatal("replay on empty log produced audio")
	}
	if env.tts.CallCount() != 0 {
		t.Fatal("replay on empty log invoked synthesis")
	}
}

func TestPipeline_TranscriptionErrorLeavesLogUntouched(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.stt.Err = errors.New("stt backend down")
	sess := env.registry.GetOrCreate("s1")

	err := env.pipeline.RunAudioTurn(context.Background(), sess, audioFrame("pcm"))
	var terr *turn.TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TranscriptionError", err)
	}
	if sess.Log.Len() != 0 {
		t.Fatal("failed transcription mutated the log")
	}
	if env.llm.CallCount() != 0 {
		t.Fatal("generator invoked despite transcription failure")
	}
	if len(drainEvents(t, sess)) != 0 {
		t.Fatal("events emitted despite transcription failure")
	}
}

func TestPipeline_GenerationErrorKeepsUserUtterance(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.llm.Err = errors.New("model overloaded")
	sess := env.registry.GetOrCreate("s1")

	err := env.pipeline.RunAudioTurn(context.Background(), sess, audioFrame("pcm"))
	var gerr *turn.GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want GenerationError", err)
	}

	got := sess.Log.Snapshot()
	if len(got) != 1 || got[0].Role != types.RoleUser || got[0].Content != "hello there" {
		t.Fatalf("log = %+v, want exactly the committed user utterance", got)
	}
	events := drainEvents(t, sess)
	if len(events) != 1 || events[0].Type != types.EventTranscript {
		t.Fatalf("events = %+v, want a single transcript", events)
	}
	if env.tts.CallCount() != 0 {
		t.Fatal("synthesis invoked despite generation failure")
	}
}

func TestPipeline_SynthesisErrorAfterCommit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.tts.Err = errors.New("voice backend down")
	sess := env.registry.GetOrCreate("s1")

	err := env.pipeline.RunAudioTurn(context.Background(), sess, audioFrame("pcm"))
	var serr *turn.SynthesisError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want SynthesisError", err)
	}
	// Both utterances are committed and announced: only the audio leg failed.
	if sess.Log.Len() != 2 {
		t.Fatalf("log has %d entries, want 2", sess.Log.Len())
	}
	if events := drainEvents(t, sess); len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
}

func TestPipeline_EmptyTranscriptSkipsTurn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.stt.Result = stt.Transcript{Text: "   "}
	sess := env.registry.GetOrCreate("s1")

	if err := env.pipeline.RunAudioTurn(context.Background(), sess, audioFrame("pcm")); err != nil {
		t.Fatalf("RunAudioTurn: %v", err)
	}
	if sess.Log.Len() != 0 {
		t.Fatal("empty transcript mutated the log")
	}
	if env.llm.CallCount() != 0 {
		t.Fatal("generator invoked on empty transcript")
	}
}

func TestPipeline_TextTurn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.registry.GetOrCreate("s1")

	reply, err := env.pipeline.RunTextTurn(context.Background(), sess, "what time is it")
	if err != nil {
		t.Fatalf("RunTextTurn: %v", err)
	}
	if reply != "hi, how can I help" {
		t.Fatalf("reply = %q", reply)
	}

	got := sess.Log.Snapshot()
	if len(got) != 2 || got[0].Content != "what time is it" || got[1].Content != reply {
		t.Fatalf("log = %+v", got)
	}

	// Injected text produces a reply event but no transcript event.
	events := drainEvents(t, sess)
	if len(events) != 1 || events[0].Type != types.EventReply {
		t.Fatalf("events = %+v, want a single reply event", events)
	}
	if env.tts.CallCount() != 0 {
		t.Fatal("text turn must not synthesize directly")
	}
}

func TestPipeline_TextTurnThenReplayDrivesAudio(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.registry.GetOrCreate("s1")

	reply, err := env.pipeline.RunTextTurn(context.Background(), sess, "say something")
	if err != nil {
		t.Fatalf("RunTextTurn: %v", err)
	}
	if err := env.pipeline.RunAudioTurn(context.Background(), sess, types.AudioFrame{}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	audio := drainAudio(t, sess)
	if !sameAudio(audio, ttsmock.FramesFor(reply)) {
		t.Fatalf("replay after injection did not stream the reply audio")
	}
}

func TestPipeline_SameSessionTurnsSerialized(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.llm.Fn = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		time.Sleep(20 * time.Millisecond)
		return &llm.CompletionResponse{Content: "ack"}, nil
	}
	sess := env.registry.GetOrCreate("s1")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.pipeline.RunAudioTurn(context.Background(), sess, audioFrame("pcm")); err != nil {
				t.Errorf("RunAudioTurn: %v", err)
			}
		}()
		// Keep the audio queue draining so neither turn blocks on a full
		// channel.
		wg.Add(1)
		go func() {
			defer wg.Done()
			drainAudio(t, sess)
		}()
	}
	wg.Wait()

	// Turns ran strictly in sequence: one generator call saw only its own
	// user utterance, the other saw the full three-entry history.
	lens := make(map[int]bool)
	for _, call := range env.llm.Calls {
		lens[len(call.History)] = true
	}
	if !lens[1] || !lens[3] {
		t.Fatalf("generator histories %v, want lengths {1, 3}", lens)
	}
	if sess.Log.Len() != 4 {
		t.Fatalf("log has %d entries, want 4", sess.Log.Len())
	}
}

func TestPipeline_CrossSessionIsolation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	a := env.registry.GetOrCreate("a")
	b := env.registry.GetOrCreate("b")

	if err := env.pipeline.RunAudioTurn(context.Background(), a, audioFrame("one")); err != nil {
		t.Fatalf("turn on a: %v", err)
	}
	if err := env.pipeline.RunAudioTurn(context.Background(), b, audioFrame("two")); err != nil {
		t.Fatalf("turn on b: %v", err)
	}

	// Each generator call saw exactly one user utterance: no history bled
	// across sessions.
	for i, call := range env.llm.Calls {
		if len(call.History) != 1 {
			t.Fatalf("call %d saw history %+v, want a single utterance", i, call.History)
		}
	}
	if len(drainAudio(t, b)) == 0 {
		t.Fatal("session b received no audio")
	}
	if len(drainAudio(t, a)) == 0 {
		t.Fatal("session a received no audio")
	}
}

func TestPipeline_SessionRemovedMidSynthesisIsQuiet(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.registry.GetOrCreate("s1")
	env.registry.Remove("s1")

	// The pipeline may still hold the session pointer after removal. The
	// turn completes against the log; the audio leg is discarded without
	// fault.
	if err := env.pipeline.RunAudioTurn(context.Background(), sess, audioFrame("pcm")); err != nil {
		t.Fatalf("RunAudioTurn after removal: %v", err)
	}
	if sess.Log.Len() != 2 {
		t.Fatalf("log has %d entries, want 2", sess.Log.Len())
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()
	sttP := &sttmock.Provider{}
	llmP := &llmmock.Provider{}
	ttsP := &ttsmock.Provider{}

	cases := []struct {
		name string
		cfg  turn.PipelineConfig
	}{
		{"missing stt", turn.PipelineConfig{LLM: llmP, TTS: ttsP}},
		{"missing llm", turn.PipelineConfig{STT: sttP, TTS: ttsP}},
		{"missing tts", turn.PipelineConfig{STT: sttP, LLM: llmP}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := turn.NewPipeline(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
