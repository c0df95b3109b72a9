// Package piper provides a TTS provider backed by a local Piper HTTP
// server. Piper returns the full synthesised clip in one chunked response;
// the provider streams the response body as it downloads, slicing it into
// fixed-duration PCM frames so the first frame is emitted before the
// download completes.
package piper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/voxloop/voxloop/pkg/provider/tts"
	"github.com/voxloop/voxloop/pkg/types"
)

const (
	defaultSampleRate = 22050

	// frameDurationMs is the duration of each emitted frame.
	frameDurationMs = 20

	// wavHeaderSize is the size of the RIFF/WAV header Piper prepends.
	wavHeaderSize = 44
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithSampleRate declares the sample rate of the configured Piper voice.
// Defaults to 22050, the rate of most Piper medium-quality voices.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider against a Piper HTTP server.
type Provider struct {
	endpoint   string
	sampleRate int
	httpClient *http.Client
}

// New creates a Piper Provider posting to endpoint (e.g.,
// "http://localhost:5000"). endpoint must be non-empty.
func New(endpoint string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("piper: endpoint must not be empty")
	}
	p := &Provider{
		endpoint:   strings.TrimRight(endpoint, "/"),
		sampleRate: defaultSampleRate,
		// No overall timeout: synthesis of long replies streams for a
		// while; cancellation is handled via the request context.
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan types.AudioFrame, error) {
	if text == "" {
		return nil, errors.New("piper: text must not be empty")
	}

	form := url.Values{}
	form.Set("text", text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: http request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("piper: server returned HTTP %d", resp.StatusCode)
	}

	frameBytes := p.sampleRate * frameDurationMs / 1000 * 2 // 16-bit mono
	frames := make(chan types.AudioFrame, 32)

	go func() {
		defer close(frames)
		defer resp.Body.Close()

		// Discard the WAV header; the pipeline deals in raw PCM.
		if _, err := io.CopyN(io.Discard, resp.Body, wavHeaderSize); err != nil {
			return
		}

		buf := make([]byte, frameBytes)
		for {
			n, err := io.ReadFull(resp.Body, buf)
			if n > 0 {
				frame := types.AudioFrame{
					Data:       append([]byte(nil), buf[:n]...),
					SampleRate: p.sampleRate,
					Channels:   1,
				}
				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return frames, nil
}
