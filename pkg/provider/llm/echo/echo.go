// Package echo provides a reply generator that parrots the most recent user
// utterance back. It needs no credentials or network, which makes it the
// default generator for local demos and the loopback path for testing the
// full voice pipeline without a model.
package echo

import (
	"context"
	"errors"

	"github.com/voxloop/voxloop/pkg/provider/llm"
	"github.com/voxloop/voxloop/pkg/types"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by echoing the last user utterance.
type Provider struct {
	// Prefix, when non-empty, is prepended to every reply.
	Prefix string
}

// New returns an echo Provider.
func New() *Provider {
	return &Provider{}
}

// Complete implements llm.Provider. It returns the content of the most
// recent user-role entry in the history, ignoring assistant entries.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == types.RoleUser {
			return &llm.CompletionResponse{Content: p.Prefix + req.History[i].Content}, nil
		}
	}
	return nil, errors.New("echo: history contains no user utterance")
}
