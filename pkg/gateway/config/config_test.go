package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"CLEARLINE_ADDR",
	"CLEARLINE_DEEPGRAM_API_KEY",
	"CLEARLINE_OPENAI_API_KEY",
	"CLEARLINE_ELEVENLABS_API_KEY",
	"CLEARLINE_REALTIME_URL",
	"CLEARLINE_REALTIME_API_KEY",
	"CLEARLINE_REALTIME_MAX_RECONNECTS",
	"CLEARLINE_REALTIME_RECONNECT_BASE",
	"CLEARLINE_STT_PROVIDER",
	"CLEARLINE_TTS_ORDER",
	"CLEARLINE_TTS_VOICE",
	"CLEARLINE_TTS_MODEL",
	"CLEARLINE_REDIS_URL",
	"CLEARLINE_TTS_CACHE_TTL",
	"CLEARLINE_BUSINESSES_FILE",
	"CLEARLINE_STT_MAX_RETRIES",
	"CLEARLINE_STT_RETRY_BASE",
	"CLEARLINE_VAD_CALIBRATION_FRAMES",
	"CLEARLINE_VAD_ENERGY_MARGIN",
	"CLEARLINE_VAD_SILENCE_DURATION",
	"CLEARLINE_VAD_MIN_UTTERANCE",
	"CLEARLINE_CHUNK_INTERVAL",
	"CLEARLINE_PROCESS_TIMEOUT",
	"CLEARLINE_GREETING_TEXT",
	"CLEARLINE_APOLOGY_TEXT",
	"CLEARLINE_SWEEP_INTERVAL",
	"CLEARLINE_SESSION_IDLE_TIMEOUT",
	"CLEARLINE_MEM_WARN_BYTES",
	"CLEARLINE_READ_HEADER_TIMEOUT",
	"CLEARLINE_SHUTDOWN_GRACE_PERIOD",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearGatewayEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.STTProvider != "deepgram" {
		t.Fatalf("STTProvider = %q, want deepgram", cfg.STTProvider)
	}
	if len(cfg.TTSOrder) != 2 || cfg.TTSOrder[0] != "elevenlabs" || cfg.TTSOrder[1] != "openai" {
		t.Fatalf("TTSOrder = %v, want [elevenlabs openai]", cfg.TTSOrder)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("RedisURL = %q, want empty", cfg.RedisURL)
	}
	if cfg.TTSCacheTTL != 24*time.Hour {
		t.Fatalf("TTSCacheTTL = %v, want 24h", cfg.TTSCacheTTL)
	}
	if cfg.STTMaxRetries != 2 {
		t.Fatalf("STTMaxRetries = %d, want 2", cfg.STTMaxRetries)
	}
	if cfg.STTRetryBase != 250*time.Millisecond {
		t.Fatalf("STTRetryBase = %v, want 250ms", cfg.STTRetryBase)
	}
	if cfg.RealtimeMaxReconnects != 5 {
		t.Fatalf("RealtimeMaxReconnects = %d, want 5", cfg.RealtimeMaxReconnects)
	}
	if cfg.RealtimeReconnectBase != time.Second {
		t.Fatalf("RealtimeReconnectBase = %v, want 1s", cfg.RealtimeReconnectBase)
	}
	if cfg.VADCalibrationFrames != 50 {
		t.Fatalf("VADCalibrationFrames = %d, want 50", cfg.VADCalibrationFrames)
	}
	if cfg.VADEnergyMargin != 0.01 {
		t.Fatalf("VADEnergyMargin = %v, want 0.01", cfg.VADEnergyMargin)
	}
	if cfg.VADSilenceDuration != 600*time.Millisecond {
		t.Fatalf("VADSilenceDuration = %v, want 600ms", cfg.VADSilenceDuration)
	}
	if cfg.VADMinUtteranceDuration != 200*time.Millisecond {
		t.Fatalf("VADMinUtteranceDuration = %v, want 200ms", cfg.VADMinUtteranceDuration)
	}
	if cfg.ChunkInterval != 40*time.Millisecond {
		t.Fatalf("ChunkInterval = %v, want 40ms", cfg.ChunkInterval)
	}
	if cfg.ProcessTimeout != 30*time.Second {
		t.Fatalf("ProcessTimeout = %v, want 30s", cfg.ProcessTimeout)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("SweepInterval = %v, want 1m", cfg.SweepInterval)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want 30m", cfg.SessionIdleTimeout)
	}
	if cfg.MemWarnBytes != 1<<30 {
		t.Fatalf("MemWarnBytes = %d, want %d", cfg.MemWarnBytes, uint64(1<<30))
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
	if cfg.GreetingText == "" || cfg.ApologyText == "" {
		t.Fatal("greeting and apology text must have defaults")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("CLEARLINE_ADDR", ":9090")
	t.Setenv("CLEARLINE_STT_PROVIDER", "openai")
	t.Setenv("CLEARLINE_TTS_ORDER", "openai")
	t.Setenv("CLEARLINE_VAD_SILENCE_DURATION", "450ms")
	t.Setenv("CLEARLINE_VAD_CALIBRATION_FRAMES", "25")
	t.Setenv("CLEARLINE_VAD_ENERGY_MARGIN", "0.02")
	t.Setenv("CLEARLINE_SESSION_IDLE_TIMEOUT", "5m")
	t.Setenv("CLEARLINE_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.STTProvider != "openai" {
		t.Fatalf("STTProvider = %q, want openai", cfg.STTProvider)
	}
	if len(cfg.TTSOrder) != 1 || cfg.TTSOrder[0] != "openai" {
		t.Fatalf("TTSOrder = %v, want [openai]", cfg.TTSOrder)
	}
	if cfg.VADSilenceDuration != 450*time.Millisecond {
		t.Fatalf("VADSilenceDuration = %v, want 450ms", cfg.VADSilenceDuration)
	}
	if cfg.VADCalibrationFrames != 25 {
		t.Fatalf("VADCalibrationFrames = %d, want 25", cfg.VADCalibrationFrames)
	}
	if cfg.VADEnergyMargin != 0.02 {
		t.Fatalf("VADEnergyMargin = %v, want 0.02", cfg.VADEnergyMargin)
	}
	if cfg.SessionIdleTimeout != 5*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want 5m", cfg.SessionIdleTimeout)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("RedisURL = %q", cfg.RedisURL)
	}
}

func TestLoadFromEnvRealtimeKeyFallsBackToOpenAI(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("CLEARLINE_OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.RealtimeAPIKey != "sk-test" {
		t.Fatalf("RealtimeAPIKey = %q, want sk-test", cfg.RealtimeAPIKey)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"unknown stt provider", "CLEARLINE_STT_PROVIDER", "whisperx", "CLEARLINE_STT_PROVIDER"},
		{"unknown tts provider", "CLEARLINE_TTS_ORDER", "elevenlabs,polly", "CLEARLINE_TTS_ORDER"},
		{"empty tts order", "CLEARLINE_TTS_ORDER", ",", "CLEARLINE_TTS_ORDER"},
		{"zero silence duration", "CLEARLINE_VAD_SILENCE_DURATION", "0s", "CLEARLINE_VAD_SILENCE_DURATION"},
		{"zero chunk interval", "CLEARLINE_CHUNK_INTERVAL", "0s", "CLEARLINE_CHUNK_INTERVAL"},
		{"zero process timeout", "CLEARLINE_PROCESS_TIMEOUT", "0s", "CLEARLINE_PROCESS_TIMEOUT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("LoadFromEnv() expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestLoadFromEnvMalformedNumbersFallBackToDefaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("CLEARLINE_VAD_CALIBRATION_FRAMES", "not-a-number")
	t.Setenv("CLEARLINE_PROCESS_TIMEOUT", "soon")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.VADCalibrationFrames != 50 {
		t.Fatalf("VADCalibrationFrames = %d, want default 50", cfg.VADCalibrationFrames)
	}
	if cfg.ProcessTimeout != 30*time.Second {
		t.Fatalf("ProcessTimeout = %v, want default 30s", cfg.ProcessTimeout)
	}
}
