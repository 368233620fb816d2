package realtime

// TurnDetection configures the backend's server-side voice activity
// detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// SessionConfig is sent as a session.update immediately after connecting,
// before any audio. Telephony calls use g711_ulaw both ways so no
// transcoding is needed on the realtime path.
type SessionConfig struct {
	Modalities         []string       `json:"modalities,omitempty"`
	Instructions       string         `json:"instructions,omitempty"`
	Voice              string         `json:"voice,omitempty"`
	InputAudioFormat   string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat  string         `json:"output_audio_format,omitempty"`
	TranscriptionModel string         `json:"-"`
	TurnDetection      *TurnDetection `json:"turn_detection,omitempty"`
}

// DefaultSessionConfig returns the telephony-shaped session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Modalities:        []string{"audio", "text"},
		InputAudioFormat:  "g711_ulaw",
		OutputAudioFormat: "g711_ulaw",
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 600,
		},
	}
}

// wireSession is the session.update payload shape.
type wireSession struct {
	Modalities        []string       `json:"modalities,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	Transcription     *struct {
		Model string `json:"model"`
	} `json:"input_audio_transcription,omitempty"`
}

func (c SessionConfig) wire() wireSession {
	w := wireSession{
		Modalities:        c.Modalities,
		Instructions:      c.Instructions,
		Voice:             c.Voice,
		InputAudioFormat:  c.InputAudioFormat,
		OutputAudioFormat: c.OutputAudioFormat,
		TurnDetection:     c.TurnDetection,
	}
	if c.TranscriptionModel != "" {
		w.Transcription = &struct {
			Model string `json:"model"`
		}{Model: c.TranscriptionModel}
	}
	return w
}
