package policy

import (
	"fmt"
	"strings"
)

// minSuffixDigits is the shortest trailing-digit run accepted as a
// fallback match, the national-significant part of a phone number.
const minSuffixDigits = 7

// BusinessConfig is the per-business configuration resolved once at
// session start. Everything provider selection needs lives here so no
// other component consults loosely typed parameters mid-call.
type BusinessConfig struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Greeting     string `json:"greeting,omitempty"`
	Instructions string `json:"instructions,omitempty"` // persona prompt for the AI backend

	STTProvider string `json:"stt_provider,omitempty"` // "deepgram" or "openai"
	TTSProvider string `json:"tts_provider,omitempty"` // primary provider, rest of the chain follows
	Voice       string `json:"voice,omitempty"`
	TTSModel    string `json:"tts_model,omitempty"`
	Language    string `json:"language,omitempty"`

	// StreamingMode routes the call through the realtime backend
	// instead of the turn-based pipeline.
	StreamingMode bool `json:"streaming_mode,omitempty"`
}

// BusinessResolver maps a callee address to its business configuration.
type BusinessResolver interface {
	Resolve(callee string) (BusinessConfig, error)
}

// StaticResolver resolves from a fixed table. Lookup is exact first,
// then by trailing national-significant digits, so "+15551234567" and
// "5551234567" land on the same business.
type StaticResolver struct {
	byAddress map[string]BusinessConfig
}

// NewStaticResolver creates a resolver over the given table, keyed by
// callee address.
func NewStaticResolver(businesses map[string]BusinessConfig) *StaticResolver {
	return &StaticResolver{byAddress: businesses}
}

// Resolve implements BusinessResolver.
func (r *StaticResolver) Resolve(callee string) (BusinessConfig, error) {
	if cfg, ok := r.byAddress[callee]; ok {
		return cfg, nil
	}

	want := digits(callee)
	if len(want) >= minSuffixDigits {
		for addr, cfg := range r.byAddress {
			if suffixMatch(digits(addr), want) {
				return cfg, nil
			}
		}
	}
	return BusinessConfig{}, fmt.Errorf("no business configured for callee %q", callee)
}

// suffixMatch reports whether two digit strings agree on a trailing run
// of at least minSuffixDigits, tolerating country-code prefixes on
// either side.
func suffixMatch(a, b string) bool {
	if len(a) < minSuffixDigits || len(b) < minSuffixDigits {
		return false
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return strings.HasSuffix(b, a)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
