package tts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/clearline-ai/clearline/pkg/core"
)

// ErrNoAudio is returned when every provider in the chain failed.
var ErrNoAudio = errors.New("tts: no provider produced audio")

// Chain tries providers in configured order until one succeeds. Results
// are cached so repeated lines skip synthesis entirely.
type Chain struct {
	providers []Provider
	cache     Cache
	health    *Health
	logger    *slog.Logger
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithCache sets the cache backend. Without it, nothing is cached.
func WithCache(c Cache) ChainOption {
	return func(ch *Chain) { ch.cache = c }
}

// WithHealth sets the health tracker shared with the rest of the gateway.
func WithHealth(h *Health) ChainOption {
	return func(ch *Chain) { ch.health = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ChainOption {
	return func(ch *Chain) { ch.logger = l }
}

// NewChain creates a failover chain over the given providers. Order is
// preserved: the first provider is always tried first.
func NewChain(providers []Provider, opts ...ChainOption) *Chain {
	ch := &Chain{
		providers: providers,
		health:    NewHealth(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Health returns the chain's health tracker.
func (c *Chain) Health() *Health { return c.health }

// Synthesize runs text through the chain. The cache is consulted per
// provider before synthesis, so a cached result from the primary wins
// even if the primary is currently failing live requests.
func (c *Chain) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	return c.synthesize(ctx, c.providers, text, opts)
}

// SynthesizeFrom is Synthesize with the named provider moved to the
// front of the chain. An empty or unknown name keeps the configured
// order, so business pins degrade gracefully.
func (c *Chain) SynthesizeFrom(ctx context.Context, primary, text string, opts SynthesizeOptions) (*Synthesis, error) {
	return c.synthesize(ctx, c.ordered(primary), text, opts)
}

func (c *Chain) ordered(primary string) []Provider {
	if primary == "" {
		return c.providers
	}
	for i, p := range c.providers {
		if p.Name() != primary {
			continue
		}
		if i == 0 {
			return c.providers
		}
		out := make([]Provider, 0, len(c.providers))
		out = append(out, p)
		for j, q := range c.providers {
			if j != i {
				out = append(out, q)
			}
		}
		return out
	}
	return c.providers
}

func (c *Chain) synthesize(ctx context.Context, providers []Provider, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if len(providers) == 0 {
		return nil, core.NewSynthesisError("", ErrNoAudio)
	}

	var lastErr error
	for _, p := range providers {
		if cached, ok := c.lookup(ctx, p.Name(), text, opts); ok {
			cacheHitsTotal.Inc()
			return cached, nil
		}

		result, err := p.Synthesize(ctx, text, opts)
		if err != nil {
			lastErr = err
			c.health.RecordFailure(p.Name())
			c.logger.Warn("tts provider failed",
				"provider", p.Name(),
				"consecutive_failures", c.health.ConsecutiveFailures(p.Name()),
				"error", err)
			if ctx.Err() != nil {
				return nil, core.NewSynthesisError(p.Name(), ctx.Err())
			}
			continue
		}

		c.health.RecordSuccess(p.Name())
		c.store(ctx, p.Name(), text, opts, result)
		return result, nil
	}

	if lastErr == nil {
		lastErr = ErrNoAudio
	}
	last := providers[len(providers)-1]
	return nil, core.NewSynthesisError(last.Name(), lastErr)
}

func (c *Chain) lookup(ctx context.Context, provider, text string, opts SynthesizeOptions) (*Synthesis, bool) {
	if c.cache == nil {
		return nil, false
	}
	audio, ok := c.cache.Get(ctx, CacheKey(provider, text, opts))
	if !ok {
		return nil, false
	}
	format := opts.Format
	if format == "" {
		format = "ulaw_8000"
	}
	sampleRate := opts.SampleRate
	if format == "ulaw_8000" {
		sampleRate = 8000
	}
	return &Synthesis{
		Audio:      audio,
		Format:     format,
		SampleRate: sampleRate,
		Provider:   provider,
	}, true
}

func (c *Chain) store(ctx context.Context, provider, text string, opts SynthesizeOptions, result *Synthesis) {
	if c.cache == nil || result == nil || len(result.Audio) == 0 {
		return
	}
	c.cache.Put(ctx, CacheKey(provider, text, opts), result.Audio)
}
