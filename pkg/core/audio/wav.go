package audio

import "encoding/binary"

// WrapWAV prepends a RIFF/WAVE header to raw 16-bit PCM so it can be
// uploaded to STT providers that refuse headerless audio.
func WrapWAV(pcm []byte, cfg Config) []byte {
	byteRate := cfg.BytesPerSecond()
	blockAlign := cfg.Channels * cfg.BitsPerSample / 8

	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(cfg.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(cfg.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(cfg.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// MulawToWAV decodes mu-law audio, optionally resamples it, and wraps it
// in a WAV container at the target rate. This is the inbound transcoding
// path for utterances headed to an STT provider.
func MulawToWAV(mulaw []byte, targetRate int) []byte {
	pcm := DecodeMulaw(mulaw)
	if targetRate != TelephonyRate {
		pcm = Resample(pcm, TelephonyRate, targetRate)
	}
	cfg := Config{SampleRate: targetRate, Channels: 1, BitsPerSample: 16}
	return WrapWAV(pcm, cfg)
}

// PCMToMulaw resamples linear PCM down to the telephony rate and encodes
// it as mu-law. This is the outbound transcoding path for synthesized
// speech headed back to the caller.
func PCMToMulaw(pcm []byte, fromRate int) []byte {
	if fromRate != TelephonyRate {
		pcm = Resample(pcm, fromRate, TelephonyRate)
	}
	return EncodeMulaw(pcm)
}
