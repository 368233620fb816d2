package stt

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/clearline-ai/clearline/pkg/core"
)

// minUsableChars is the shortest transcript worth acting on. Anything
// below this is treated as no input, not an error.
const minUsableChars = 2

// Client wraps a Provider with bounded retries and quality gating. It is
// the only path the orchestrator uses to reach transcription.
type Client struct {
	provider   Provider
	maxRetries uint64
	baseDelay  time.Duration
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithMaxRetries bounds how many times a transient failure is retried.
func WithMaxRetries(n uint64) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.baseDelay = d }
}

// NewClient creates a transcription client around the given provider.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:   provider,
		maxRetries: 2,
		baseDelay:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// Transcribe submits one utterance. Transient provider errors are retried
// with exponential backoff. A (nil, nil) return means the audio produced
// no usable input and no downstream turn should be generated.
func (c *Client) Transcribe(ctx context.Context, utterance []byte, opts TranscribeOptions) (*Transcript, error) {
	var result *Transcript

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := c.provider.Transcribe(ctx, bytes.NewReader(utterance), opts)
		if err != nil {
			var statusErr *httpStatusError
			if errors.As(err, &statusErr) && !statusErr.Transient() {
				return err
			}
			return retry.RetryableError(err)
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, core.NewTranscriptionError(c.provider.Name(), err)
	}

	if !usable(result) {
		return nil, nil
	}
	return result, nil
}

func usable(t *Transcript) bool {
	if t == nil {
		return false
	}
	text := strings.TrimSpace(t.Text)
	return len(text) >= minUsableChars
}
