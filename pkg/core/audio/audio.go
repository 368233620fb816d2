// Package audio provides the transcoding path between the narrow-band
// telephony codec (G.711 mu-law, 8 kHz mono) and the linear PCM formats
// speech providers expect. All conversions are pure and stateless.
package audio

// Config specifies linear PCM audio format parameters.
type Config struct {
	// SampleRate in Hz. Telephony is 8000; providers typically want
	// 16000 or 24000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// TelephonyRate is the narrow-band telephony sample rate in Hz.
const TelephonyRate = 8000

// DefaultConfig returns the telephony-side PCM configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:    TelephonyRate,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the PCM byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c Config) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration.
func (c Config) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// MulawBytesForDurationMs returns the mu-law byte count for a duration at
// the telephony rate. Mu-law carries one byte per sample.
func MulawBytesForDurationMs(ms int) int {
	return (TelephonyRate * ms) / 1000
}

// MulawDurationMs returns the duration in milliseconds of a mu-law buffer.
func MulawDurationMs(bytes int) int {
	return (bytes * 1000) / TelephonyRate
}

// FrameEnergy returns the mean absolute deviation of a mu-law frame from
// the codec bias point, computed over the decoded linear samples and
// normalized to 0..1. Silence is near zero.
func FrameEnergy(mulaw []byte) float64 {
	if len(mulaw) == 0 {
		return 0
	}
	var sum float64
	for _, b := range mulaw {
		s := mulawToPCM[b]
		if s < 0 {
			s = -s
		}
		sum += float64(s)
	}
	return sum / float64(len(mulaw)) / 32768.0
}
