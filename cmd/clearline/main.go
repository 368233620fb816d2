package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clearline-ai/clearline/internal/dotenv"
	"github.com/clearline-ai/clearline/pkg/core/policy"
	"github.com/clearline-ai/clearline/pkg/core/realtime"
	"github.com/clearline-ai/clearline/pkg/core/stt"
	"github.com/clearline-ai/clearline/pkg/core/tts"
	"github.com/clearline-ai/clearline/pkg/core/vad"
	"github.com/clearline-ai/clearline/pkg/gateway/config"
	gatewayserver "github.com/clearline-ai/clearline/pkg/gateway/server"
	"github.com/clearline-ai/clearline/pkg/gateway/session"
	"github.com/clearline-ai/clearline/pkg/gateway/sessions"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	newGateway   func(config.Config, *sessions.Registry, session.Config, session.Deps, *slog.Logger) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		VAD: vad.Config{
			CalibrationFrames:    cfg.VADCalibrationFrames,
			EnergyMargin:         cfg.VADEnergyMargin,
			SilenceDuration:      cfg.VADSilenceDuration,
			MinUtteranceDuration: cfg.VADMinUtteranceDuration,
		},
		ChunkInterval:  cfg.ChunkInterval,
		ProcessTimeout: cfg.ProcessTimeout,
		GreetingText:   cfg.GreetingText,
		ApologyText:    cfg.ApologyText,
		TTSVoice:       cfg.TTSVoice,
		TTSModel:       cfg.TTSModel,
	}
}

// buildSTTClients constructs a client per supported provider so a
// business can pin either one; the returned default follows the
// gateway-wide setting.
func buildSTTClients(cfg config.Config) (*stt.Client, map[string]*stt.Client, error) {
	opts := []stt.ClientOption{
		stt.WithMaxRetries(cfg.STTMaxRetries),
		stt.WithBaseDelay(cfg.STTRetryBase),
	}
	clients := map[string]*stt.Client{
		"deepgram": stt.NewClient(stt.NewDeepgram(cfg.DeepgramAPIKey), opts...),
		"openai":   stt.NewClient(stt.NewOpenAI(cfg.OpenAIAPIKey), opts...),
	}
	def, ok := clients[cfg.STTProvider]
	if !ok {
		return nil, nil, fmt.Errorf("unknown stt provider %q", cfg.STTProvider)
	}
	return def, clients, nil
}

func buildTTSChain(cfg config.Config, logger *slog.Logger) (*tts.Chain, error) {
	providers := make([]tts.Provider, 0, len(cfg.TTSOrder))
	for _, name := range cfg.TTSOrder {
		switch name {
		case "elevenlabs":
			providers = append(providers, tts.NewElevenLabs(cfg.ElevenLabsAPIKey))
		case "openai":
			providers = append(providers, tts.NewOpenAI(cfg.OpenAIAPIKey))
		default:
			return nil, fmt.Errorf("unknown tts provider %q", name)
		}
	}

	cache, err := tts.NewCacheFromURL(cfg.RedisURL, cfg.TTSCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("tts cache: %w", err)
	}

	return tts.NewChain(providers,
		tts.WithCache(cache),
		tts.WithHealth(tts.NewHealth()),
		tts.WithLogger(logger),
	), nil
}

// loadBusinesses reads the callee-address-to-business map. An empty
// path yields an empty resolver; unknown callees then fall back to the
// gateway-wide defaults inside the session.
func loadBusinesses(path string) (map[string]policy.BusinessConfig, error) {
	if path == "" {
		return map[string]policy.BusinessConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read businesses file: %w", err)
	}
	businesses := make(map[string]policy.BusinessConfig)
	if err := json.Unmarshal(data, &businesses); err != nil {
		return nil, fmt.Errorf("parse businesses file %q: %w", path, err)
	}
	return businesses, nil
}

func buildRealtimeDialer(cfg config.Config, logger *slog.Logger) session.RealtimeDialer {
	if cfg.RealtimeAPIKey == "" {
		return nil
	}
	return func(ctx context.Context, business policy.BusinessConfig) (*realtime.Client, error) {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+cfg.RealtimeAPIKey)
		header.Set("OpenAI-Beta", "realtime=v1")

		sc := realtime.DefaultSessionConfig()
		sc.Instructions = business.Instructions
		if business.Voice != "" {
			sc.Voice = business.Voice
		}

		return realtime.Dial(ctx, cfg.RealtimeURL, header, sc,
			realtime.WithLogger(logger),
			realtime.WithMaxReconnects(cfg.RealtimeMaxReconnects),
			realtime.WithReconnectBase(cfg.RealtimeReconnectBase),
		)
	}
}

// defaultEngine is the turn-based fallback conversation policy. Real
// deployments replace it through the policy engine binding; it keeps
// turn-based calls answered when no engine backend is configured.
func defaultEngine() policy.Engine {
	return policy.EngineFunc(func(ctx context.Context, in policy.Input) (*policy.Reply, error) {
		name := in.Business.Name
		if name == "" {
			name = "the office"
		}
		return &policy.Reply{
			Text: fmt.Sprintf("Thanks, I've noted that. Someone from %s will follow up with you shortly. Is there anything else?", name),
		}, nil
	})
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sttClient, sttClients, err := buildSTTClients(cfg)
	if err != nil {
		return err
	}
	ttsChain, err := buildTTSChain(cfg, logger)
	if err != nil {
		return err
	}
	businesses, err := loadBusinesses(cfg.BusinessesFile)
	if err != nil {
		return err
	}

	sessionDeps := session.Deps{
		STT:          sttClient,
		STTProviders: sttClients,
		TTS:          ttsChain,
		Policy:       defaultEngine(),
		Resolver:     policy.NewStaticResolver(businesses),
		Realtime:     buildRealtimeDialer(cfg, logger),
		Logger:       logger,
	}

	registry := sessions.NewRegistry()
	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	go registry.Sweep(sweepCtx, sessions.SweepConfig{
		Interval:     cfg.SweepInterval,
		IdleTimeout:  cfg.SessionIdleTimeout,
		MemWarnBytes: cfg.MemWarnBytes,
		Logger:       logger,
	})

	gw := deps.newGateway(cfg, registry, sessionConfig(cfg), sessionDeps, logger)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"stt_provider", cfg.STTProvider,
		"tts_order", cfg.TTSOrder,
		"streaming_enabled", sessionDeps.Realtime != nil,
		"businesses", len(businesses),
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitSessions(waitCtx) {
		closed := gw.CloseSessions()
		logger.Warn("drain timed out, closed remaining sessions", "closed", closed)
		forceCtx, forceCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer forceCancel()
		_ = gw.WaitSessions(forceCtx)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "clearline: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "clearline: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
