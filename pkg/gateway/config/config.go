// Package config loads the gateway configuration from CLEARLINE_*
// environment variables. Every knob has a default so a bare environment
// still yields a runnable config; validation rejects values that would
// put the session layer into an unusable state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Provider credentials. Base URLs are overridable for test and
	// self-hosted deployments.
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	// Realtime backend (speech-to-speech). The API key falls back to
	// OpenAIAPIKey when unset.
	RealtimeURL           string
	RealtimeAPIKey        string
	RealtimeMaxReconnects int
	RealtimeReconnectBase time.Duration

	// Default provider bindings, used when a business does not pin its
	// own.
	STTProvider string
	TTSOrder    []string
	TTSVoice    string
	TTSModel    string

	// TTS result cache. Empty RedisURL selects the in-process LRU.
	RedisURL    string
	TTSCacheTTL time.Duration

	// Path to a JSON file mapping callee addresses to business configs.
	// Empty means every call resolves to the built-in defaults.
	BusinessesFile string

	// Transcription retry budget.
	STTMaxRetries uint64
	STTRetryBase  time.Duration

	// Audio activity detection tunables, applied per session.
	VADCalibrationFrames    int
	VADEnergyMargin         float64
	VADSilenceDuration      time.Duration
	VADMinUtteranceDuration time.Duration

	// Session pipeline.
	ChunkInterval  time.Duration
	ProcessTimeout time.Duration
	GreetingText   string
	ApologyText    string

	// Idle sweep.
	SweepInterval      time.Duration
	SessionIdleTimeout time.Duration
	MemWarnBytes       uint64

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("CLEARLINE_ADDR", ":8080"),
		DeepgramAPIKey:          envOr("CLEARLINE_DEEPGRAM_API_KEY", ""),
		OpenAIAPIKey:            envOr("CLEARLINE_OPENAI_API_KEY", ""),
		ElevenLabsAPIKey:        envOr("CLEARLINE_ELEVENLABS_API_KEY", ""),
		RealtimeURL:             envOr("CLEARLINE_REALTIME_URL", "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview"),
		RealtimeAPIKey:          envOr("CLEARLINE_REALTIME_API_KEY", ""),
		RealtimeMaxReconnects:   envIntOr("CLEARLINE_REALTIME_MAX_RECONNECTS", 5),
		RealtimeReconnectBase:   envDurationOr("CLEARLINE_REALTIME_RECONNECT_BASE", time.Second),
		STTProvider:             envOr("CLEARLINE_STT_PROVIDER", "deepgram"),
		TTSOrder:                splitCSV(envOr("CLEARLINE_TTS_ORDER", "elevenlabs,openai")),
		TTSVoice:                envOr("CLEARLINE_TTS_VOICE", ""),
		TTSModel:                envOr("CLEARLINE_TTS_MODEL", ""),
		RedisURL:                envOr("CLEARLINE_REDIS_URL", ""),
		TTSCacheTTL:             envDurationOr("CLEARLINE_TTS_CACHE_TTL", 24*time.Hour),
		BusinessesFile:          envOr("CLEARLINE_BUSINESSES_FILE", ""),
		STTMaxRetries:           uint64(envIntOr("CLEARLINE_STT_MAX_RETRIES", 2)),
		STTRetryBase:            envDurationOr("CLEARLINE_STT_RETRY_BASE", 250*time.Millisecond),
		VADCalibrationFrames:    envIntOr("CLEARLINE_VAD_CALIBRATION_FRAMES", 50),
		VADEnergyMargin:         envFloat64Or("CLEARLINE_VAD_ENERGY_MARGIN", 0.01),
		VADSilenceDuration:      envDurationOr("CLEARLINE_VAD_SILENCE_DURATION", 600*time.Millisecond),
		VADMinUtteranceDuration: envDurationOr("CLEARLINE_VAD_MIN_UTTERANCE", 200*time.Millisecond),
		ChunkInterval:           envDurationOr("CLEARLINE_CHUNK_INTERVAL", 40*time.Millisecond),
		ProcessTimeout:          envDurationOr("CLEARLINE_PROCESS_TIMEOUT", 30*time.Second),
		GreetingText:            envOr("CLEARLINE_GREETING_TEXT", "Hello, thanks for calling. How can I help you today?"),
		ApologyText:             envOr("CLEARLINE_APOLOGY_TEXT", "I'm sorry, I'm having a little trouble right now. Could you say that again?"),
		SweepInterval:           envDurationOr("CLEARLINE_SWEEP_INTERVAL", time.Minute),
		SessionIdleTimeout:      envDurationOr("CLEARLINE_SESSION_IDLE_TIMEOUT", 30*time.Minute),
		MemWarnBytes:            uint64(envInt64Or("CLEARLINE_MEM_WARN_BYTES", 1<<30)),
		ReadHeaderTimeout:       envDurationOr("CLEARLINE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:     envDurationOr("CLEARLINE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.RealtimeAPIKey == "" {
		cfg.RealtimeAPIKey = cfg.OpenAIAPIKey
	}

	switch cfg.STTProvider {
	case "deepgram", "openai":
	default:
		return Config{}, fmt.Errorf("CLEARLINE_STT_PROVIDER must be one of deepgram|openai")
	}

	if len(cfg.TTSOrder) == 0 {
		return Config{}, fmt.Errorf("CLEARLINE_TTS_ORDER must name at least one provider")
	}
	for _, p := range cfg.TTSOrder {
		switch p {
		case "elevenlabs", "openai":
		default:
			return Config{}, fmt.Errorf("CLEARLINE_TTS_ORDER contains unknown provider %q", p)
		}
	}

	if cfg.RealtimeMaxReconnects < 0 {
		return Config{}, fmt.Errorf("CLEARLINE_REALTIME_MAX_RECONNECTS must be >= 0")
	}
	if cfg.RealtimeReconnectBase <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_REALTIME_RECONNECT_BASE must be > 0")
	}
	if cfg.STTRetryBase <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_STT_RETRY_BASE must be > 0")
	}
	if cfg.TTSCacheTTL <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_TTS_CACHE_TTL must be > 0")
	}
	if cfg.VADCalibrationFrames <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_VAD_CALIBRATION_FRAMES must be > 0")
	}
	if cfg.VADEnergyMargin <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_VAD_ENERGY_MARGIN must be > 0")
	}
	if cfg.VADSilenceDuration <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_VAD_SILENCE_DURATION must be > 0")
	}
	if cfg.VADMinUtteranceDuration <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_VAD_MIN_UTTERANCE must be > 0")
	}
	if cfg.ChunkInterval <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_CHUNK_INTERVAL must be > 0")
	}
	if cfg.ProcessTimeout <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_PROCESS_TIMEOUT must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_SWEEP_INTERVAL must be > 0")
	}
	if cfg.SessionIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_SESSION_IDLE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CLEARLINE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
