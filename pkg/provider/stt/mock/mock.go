// Package mock provides a test double for the stt package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/voxloop/voxloop/pkg/provider/stt"
	"github.com/voxloop/voxloop/pkg/types"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result stt.Transcript

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Fn, if non-nil, overrides Result/Err entirely.
	Fn func(ctx context.Context, frame types.AudioFrame) (stt.Transcript, error)

	// Calls records a copy of every frame passed to Transcribe.
	Calls []types.AudioFrame
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, frame types.AudioFrame) (stt.Transcript, error) {
	p.mu.Lock()
	cp := frame
	cp.Data = append([]byte(nil), frame.Data...)
	p.Calls = append(p.Calls, cp)
	fn := p.Fn
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, frame)
	}
	return res, err
}

// CallCount returns the number of Transcribe invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ stt.Provider = (*Provider)(nil)
