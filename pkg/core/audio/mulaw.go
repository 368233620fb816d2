package audio

// G.711 mu-law codec. The decode table is generated once at init; encode
// runs the standard segment search with the 0x84 bias.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawToPCM [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^uint8(i)
		sign := u & 0x80
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		sample := int32(mantissa)<<3 + mulawBias
		sample <<= exponent
		sample -= mulawBias
		if sign != 0 {
			sample = -sample
		}
		mulawToPCM[i] = int16(sample)
	}
}

// DecodeMulaw converts mu-law bytes to 16-bit little-endian linear PCM.
func DecodeMulaw(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		s := mulawToPCM[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// EncodeMulaw converts 16-bit little-endian linear PCM to mu-law bytes.
// A trailing odd byte is ignored.
func EncodeMulaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = encodeMulawSample(s)
	}
	return out
}

func encodeMulawSample(s int16) byte {
	sample := int32(s)
	sign := byte(0)
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > mulawClip {
		sample = mulawClip
	}
	sample += mulawBias

	exponent := 7
	for mask := int32(0x4000); exponent > 0 && sample&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((sample >> (uint(exponent) + 3)) & 0x0F)
	return ^(sign | byte(exponent)<<4 | mantissa)
}

// MulawSilence is the mu-law byte for a zero-amplitude sample, used to pad
// outbound frames to a whole chunk.
const MulawSilence = 0xFF
