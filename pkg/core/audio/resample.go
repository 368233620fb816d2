package audio

// Resample converts 16-bit mono little-endian PCM between sample rates
// using linear interpolation. It is adequate for narrow-band speech; the
// providers do their own filtering.
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	inSamples := len(pcm) / 2
	if inSamples == 0 {
		return nil
	}

	outSamples := int(int64(inSamples) * int64(toRate) / int64(fromRate))
	out := make([]byte, outSamples*2)
	for i := 0; i < outSamples; i++ {
		// Source position in input samples.
		pos := float64(i) * float64(fromRate) / float64(toRate)
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sampleAt(pcm, idx)
		s1 := s0
		if idx+1 < inSamples {
			s1 = sampleAt(pcm, idx+1)
		}
		v := int16(float64(s0) + (float64(s1)-float64(s0))*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}
