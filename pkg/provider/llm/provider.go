// Package llm defines the Provider interface for reply-generation backends.
//
// A provider wraps a remote or local model API (e.g., OpenAI, a local Ollama
// instance, or the built-in echo generator) and exposes a uniform completion
// interface to the turn pipeline without coupling it to any specific SDK.
// Whatever shape the backend returns — raw text, a structured object with a
// content field, streamed deltas — the provider normalises it into
// [CompletionResponse] at this boundary; the pipeline never branches on
// result shape.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import (
	"context"

	"github.com/voxloop/voxloop/pkg/types"
)

// Usage holds token accounting information returned by the backend. Counts
// are in the model's native token unit and may differ between providers for
// the same textual content. All-zero when the backend does not report usage.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input history.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the reply.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the backend needs to produce a reply.
// History must be non-empty; its last entry is the utterance that drives the
// response.
type CompletionRequest struct {
	// History is the ordered conversation so far, as snapshotted from the
	// session log.
	History []types.Utterance

	// SystemPrompt is an optional high-priority instruction injected before
	// the history. Providers without a dedicated system slot prepend it as a
	// system-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is the single normalised result shape for all backends.
type CompletionResponse struct {
	// Content is the full text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any reply-generation backend.
type Provider interface {
	// Complete sends req to the model and waits for the full reply. It may
	// block for unbounded external latency; it must return promptly when
	// ctx is cancelled.
	//
	// A non-nil error means no reply was produced; the caller decides what
	// happens to conversation state already committed before the call.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
