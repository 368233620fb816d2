package session

import (
	"math"

	"github.com/clearline-ai/clearline/pkg/core/audio"
)

// builtinApologyTone is the absolute last resort when no TTS provider
// can produce the apology: two short soft tones so the caller hears the
// line is alive. 350 Hz sits inside the telephony band.
func builtinApologyTone() []byte {
	const (
		freq     = 350.0
		toneMs   = 180
		gapMs    = 120
		amp      = 6000.0
		rate     = float64(audio.TelephonyRate)
		toneSamp = audio.TelephonyRate * toneMs / 1000
		gapSamp  = audio.TelephonyRate * gapMs / 1000
	)

	total := toneSamp*2 + gapSamp
	pcm := make([]byte, total*2)
	writeTone := func(offset int) {
		for i := 0; i < toneSamp; i++ {
			// Fade in/out over the first and last 10% to avoid clicks.
			env := 1.0
			edge := toneSamp / 10
			if i < edge {
				env = float64(i) / float64(edge)
			} else if i > toneSamp-edge {
				env = float64(toneSamp-i) / float64(edge)
			}
			sample := int16(amp * env * math.Sin(2*math.Pi*freq*float64(i)/rate))
			idx := (offset + i) * 2
			pcm[idx] = byte(sample)
			pcm[idx+1] = byte(sample >> 8)
		}
	}
	writeTone(0)
	writeTone(toneSamp + gapSamp)

	return audio.EncodeMulaw(pcm)
}
