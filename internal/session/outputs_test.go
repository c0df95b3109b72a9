package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/pkg/types"
)

func TestOutputs_AudioOrder(t *testing.T) {
	t.Parallel()

	o := session.NewOutputs()
	ctx := context.Background()

	for i := byte(0); i < 5; i++ {
		if !o.PushAudio(ctx, types.AudioFrame{Data: []byte{i}, SampleRate: 16000, Channels: 1}) {
			t.Fatalf("PushAudio(%d) returned false", i)
		}
	}

	for i := byte(0); i < 5; i++ {
		f, ok := o.NextAudio(ctx)
		if !ok {
			t.Fatalf("NextAudio() #%d returned false", i)
		}
		if f.Data[0] != i {
			t.Errorf("frame %d out of order: got %d", i, f.Data[0])
		}
	}
}

func TestOutputs_PushAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	o := session.NewOutputs()
	o.Close()
	o.Close() // idempotent

	if o.PushAudio(context.Background(), types.AudioFrame{Data: []byte{1}}) {
		t.Error("PushAudio after Close should return false")
	}
	if o.PushEvent(types.TurnEvent{Type: types.EventReply}) {
		t.Error("PushEvent after Close should return false")
	}
}

func TestOutputs_DrainAfterClose(t *testing.T) {
	t.Parallel()

	o := session.NewOutputs()
	ctx := context.Background()

	o.PushAudio(ctx, types.AudioFrame{Data: []byte{42}})
	o.Close()

	// A frame queued before Close is still readable; the next read fails.
	f, ok := o.NextAudio(ctx)
	if !ok || f.Data[0] != 42 {
		t.Fatalf("queued frame should survive Close, got ok=%v data=%v", ok, f.Data)
	}
	if _, ok := o.NextAudio(ctx); ok {
		t.Error("NextAudio on released, drained outputs should return false")
	}
}

func TestOutputs_EventDropWhenFull(t *testing.T) {
	t.Parallel()

	o := session.NewOutputs()

	// Fill the event queue; the first overflowing push must drop, not block.
	delivered := 0
	for i := 0; i < 64; i++ {
		if o.PushEvent(types.TurnEvent{Type: types.EventReply}) {
			delivered++
		}
	}
	if delivered == 0 || delivered == 64 {
		t.Errorf("delivered = %d, want bounded drop behaviour", delivered)
	}
}

func TestOutputs_NextEventBlocksUntilProduced(t *testing.T) {
	t.Parallel()

	o := session.NewOutputs()
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		o.PushEvent(types.TurnEvent{
			Type:      types.EventReply,
			Utterance: types.Utterance{Role: types.RoleAssistant, Content: "hi"},
		})
	}()

	ev, ok := o.NextEvent(ctx)
	if !ok {
		t.Fatal("NextEvent returned false")
	}
	if ev.Utterance.Content != "hi" {
		t.Errorf("event content = %q, want %q", ev.Utterance.Content, "hi")
	}
}

func TestOutputs_NextAudioHonoursContext(t *testing.T) {
	t.Parallel()

	o := session.NewOutputs()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := o.NextAudio(ctx); ok {
		t.Error("NextAudio should fail when ctx expires with no audio")
	}
}
