package echo_test

import (
	"context"
	"testing"

	"github.com/voxloop/voxloop/pkg/provider/llm"
	"github.com/voxloop/voxloop/pkg/provider/llm/echo"
	"github.com/voxloop/voxloop/pkg/types"
)

func TestComplete_EchoesLastUserUtterance(t *testing.T) {
	t.Parallel()

	p := echo.New()
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		History: []types.Utterance{
			{Role: types.RoleUser, Content: "first"},
			{Role: types.RoleAssistant, Content: "first"},
			{Role: types.RoleUser, Content: "second"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "second" {
		t.Errorf("Content = %q, want %q", resp.Content, "second")
	}
}

func TestComplete_Prefix(t *testing.T) {
	t.Parallel()

	p := &echo.Provider{Prefix: "you said: "}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		History: []types.Utterance{{Role: types.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "you said: hi" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestComplete_NoUserUtterance(t *testing.T) {
	t.Parallel()

	p := echo.New()
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		History: []types.Utterance{{Role: types.RoleAssistant, Content: "orphan"}},
	}); err == nil {
		t.Fatal("Complete with no user entry should fail")
	}
}

func TestComplete_RespectsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := echo.New()
	if _, err := p.Complete(ctx, llm.CompletionRequest{
		History: []types.Utterance{{Role: types.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatal("Complete with cancelled ctx should fail")
	}
}
