// Package tts provides text-to-speech with an ordered provider chain,
// result caching, and per-provider health accounting.
package tts

import (
	"context"
	"strconv"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // Voice identifier
	Model      string  // Provider-specific model
	Speed      float64 // Speed multiplier (default 1.0)
	Language   string  // Language code
	Format     string  // Output format: "ulaw_8000" or "pcm"
	SampleRate int     // Sample rate for PCM output
}

// cacheKeyFields returns the settings that distinguish one synthesis
// result from another for caching. Every option that changes the audio
// must appear here or two callers with different settings collide.
func (o SynthesizeOptions) cacheKeyFields() []string {
	return []string{
		o.Voice,
		o.Model,
		o.Language,
		o.Format,
		strconv.FormatFloat(o.Speed, 'g', -1, 64),
		strconv.Itoa(o.SampleRate),
	}
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio      []byte // Audio data
	Format     string // Audio format
	SampleRate int    // Sample rate of the audio, 8000 for ulaw_8000
	Provider   string // Provider that produced the audio
}
