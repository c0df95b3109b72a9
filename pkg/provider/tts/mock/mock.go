// Package mock provides a test double for the tts package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/voxloop/voxloop/pkg/provider/tts"
	"github.com/voxloop/voxloop/pkg/types"
)

// Provider is a mock implementation of tts.Provider. By default each
// Synthesize call emits one frame per byte of the input text, with the
// byte as PCM payload — tests can compare output audio to the exact frames
// Synthesize would have produced for a given string.
type Provider struct {
	mu sync.Mutex

	// Frames, when non-nil, is emitted for every Synthesize call instead of
	// the per-byte default.
	Frames []types.AudioFrame

	// Err, if non-nil, is returned by every Synthesize call (stream never
	// starts).
	Err error

	// Calls records every text passed to Synthesize.
	Calls []string
}

// FramesFor returns the frames the default behaviour emits for text. Tests
// use it to state expected audio without duplicating the encoding.
func FramesFor(text string) []types.AudioFrame {
	frames := make([]types.AudioFrame, len(text))
	for i := 0; i < len(text); i++ {
		frames[i] = types.AudioFrame{
			Data:       []byte{text[i]},
			SampleRate: 16000,
			Channels:   1,
		}
	}
	return frames
}

// Synthesize records the call and lazily emits the configured frames.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan types.AudioFrame, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, text)
	preset := p.Frames
	err := p.Err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	frames := preset
	if frames == nil {
		frames = FramesFor(text)
	}

	ch := make(chan types.AudioFrame)
	go func() {
		defer close(ch)
		for _, f := range frames {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// CallCount returns the number of Synthesize invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ tts.Provider = (*Provider)(nil)
