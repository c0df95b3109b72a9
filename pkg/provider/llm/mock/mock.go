// Package mock provides a test double for the llm package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/voxloop/voxloop/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by every Complete call. If nil and Err is nil,
	// Complete returns an empty response.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Fn, if non-nil, overrides Response/Err entirely.
	Fn func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Calls records every request passed to Complete.
	Calls []llm.CompletionRequest
}

// Complete records the call and returns the configured result.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	fn := p.Fn
	resp, err := p.Response, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.CompletionResponse{}, nil
	}
	return resp, nil
}

// CallCount returns the number of Complete invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent request, or false when none were made.
func (p *Provider) LastCall() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

var _ llm.Provider = (*Provider)(nil)
