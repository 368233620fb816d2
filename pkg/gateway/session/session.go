// Package session drives one telephone call: the lifecycle state
// machine, utterance capture, the turn-based pipeline, streaming-mode
// bridging, and paced playback back to the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearline-ai/clearline/pkg/core/audio"
	"github.com/clearline-ai/clearline/pkg/core/policy"
	"github.com/clearline-ai/clearline/pkg/core/realtime"
	"github.com/clearline-ai/clearline/pkg/core/stt"
	"github.com/clearline-ai/clearline/pkg/core/tts"
	"github.com/clearline-ai/clearline/pkg/core/vad"
	"github.com/clearline-ai/clearline/pkg/gateway/mediastream"
	"github.com/clearline-ai/clearline/pkg/gateway/sessions"
)

// Config holds per-session tunables.
type Config struct {
	VAD            vad.Config
	ChunkInterval  time.Duration // outbound pacing, default one chunk duration
	ProcessTimeout time.Duration // budget for one transcribe, respond, speak pipeline
	GreetingText   string        // used when the business has no greeting
	ApologyText    string        // spoken on pipeline failure
	TTSVoice       string        // default voice when the business pins none
	TTSModel       string        // default synthesis model when the business pins none
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		VAD:            vad.DefaultConfig(),
		ChunkInterval:  time.Duration(mediastream.ChunkDurationMs()) * time.Millisecond,
		ProcessTimeout: 30 * time.Second,
		GreetingText:   "Hello, thanks for calling. How can I help you today?",
		ApologyText:    "I'm sorry, I'm having a little trouble right now. Could you say that again?",
	}
}

// RealtimeDialer opens the streaming AI backend connection for a
// business. A nil dialer disables streaming mode entirely.
type RealtimeDialer func(ctx context.Context, business policy.BusinessConfig) (*realtime.Client, error)

// Deps are the collaborator bindings, resolved once at startup and
// shared across sessions.
type Deps struct {
	// STT is the default transcription client; STTProviders holds the
	// per-provider clients a business may pin instead.
	STT          *stt.Client
	STTProviders map[string]*stt.Client

	TTS      *tts.Chain
	Policy   policy.Engine
	Resolver policy.BusinessResolver
	Realtime RealtimeDialer
	Logger   *slog.Logger
}

// Session is one active call. It is owned by the connection's read
// goroutine; HandleMessage is not safe for concurrent use, everything
// else is.
type Session struct {
	id   string
	cfg  Config
	deps Deps

	// logger gains call attrs at stream start; guarded by mu, read
	// through log().
	logger *slog.Logger

	writer     frameWriter
	registry   *sessions.Registry
	unregister func()

	detector *vad.Detector
	hist     *history
	clock    func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	callID       string
	streamID     string
	callerID     string
	calleeID     string
	business     policy.BusinessConfig
	sttc         *stt.Client
	flow         string
	pl           *player
	rt           *realtime.Client
	streaming    bool
	pipelineBusy bool
	replySeq     int
	apologyAudio []byte
}

// New creates a session for one caller socket and registers it under a
// provisional key until the start event supplies the call identifier.
func New(writer frameWriter, registry *sessions.Registry, cfg Config, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		deps:     deps,
		writer:   writer,
		registry: registry,
		detector: vad.New(cfg.VAD),
		hist:     newHistory(),
		clock:    time.Now,
		state:    StateInitializing,
	}
	s.logger = logger.With("session_id", s.id)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.lastActivity = s.clock()

	s.unregister = registry.Register(s.provisionalKey(), sessions.Handle{
		Close:        func() { s.Close() },
		LastActivity: s.LastActivity,
	})
	s.setState(StateAwaitingStreamStart)
	return s
}

func (s *Session) provisionalKey() string { return "pending:" + s.id }

// log returns the session logger. Never call it while holding mu.
func (s *Session) log() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// spawn runs fn on the session's WaitGroup unless teardown has begun.
// The state check and the Add share the lock with Close's state flip,
// so Close never waits on a counter that is still being raised.
func (s *Session) spawn(fn func()) {
	s.mu.Lock()
	if s.state == StateTerminating || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// pickSTT binds the transcription client for the call: the provider the
// business pins when one is wired, the gateway default otherwise.
func (s *Session) pickSTT(business policy.BusinessConfig) *stt.Client {
	name := business.STTProvider
	if name == "" {
		return s.deps.STT
	}
	if c, ok := s.deps.STTProviders[name]; ok && c != nil {
		return c
	}
	if s.deps.STT != nil && s.deps.STT.Provider().Name() != name {
		s.logger.Warn("pinned stt provider not wired, using default",
			"pinned", name, "default", s.deps.STT.Provider().Name())
	}
	return s.deps.STT
}

// ID returns the internal session identifier.
func (s *Session) ID() string { return s.id }

// CallID returns the call identifier from the start event, empty before
// the stream starts.
func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity reports the most recent frame or event time, read by the
// idle sweep.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// History returns a snapshot of the conversation so far.
func (s *Session) History() []policy.Turn {
	return s.hist.snapshot()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = s.clock()
	s.mu.Unlock()
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// HandleMessage processes one inbound socket message. Malformed and
// unknown frames are logged and dropped; nothing here tears the session
// down except an explicit stop.
func (s *Session) HandleMessage(data []byte) {
	msg, err := mediastream.Decode(data)
	if err != nil {
		s.log().Warn("inbound frame dropped", "error", err)
		return
	}

	switch f := msg.(type) {
	case mediastream.StartFrame:
		s.handleStart(f)
	case mediastream.MediaFrame:
		s.handleMedia(f)
	case mediastream.StopFrame:
		s.log().Info("stream stopped by caller side")
		s.Close()
	case mediastream.MarkFrame:
		s.log().Debug("playback mark echoed", "name", f.Name)
	case mediastream.UnknownFrame:
		s.log().Warn("unknown event dropped", "event", f.Event)
	}
}

func (s *Session) handleStart(f mediastream.StartFrame) {
	s.mu.Lock()
	if s.state != StateAwaitingStreamStart {
		s.mu.Unlock()
		s.log().Warn("duplicate start event ignored", "call_id", f.CallID)
		return
	}
	s.callID = f.CallID
	s.streamID = f.StreamID
	s.callerID = firstNonEmpty(f.CallerID, f.Params["from"])
	s.calleeID = firstNonEmpty(f.CalleeID, f.Params["to"])
	s.lastActivity = s.clock()
	s.pl = newPlayer(s.writer, mediastream.NewEncoder(f.StreamID), s.cfg.ChunkInterval)
	s.logger = s.logger.With("call_id", f.CallID)
	s.mu.Unlock()

	s.registry.Rekey(s.provisionalKey(), f.CallID)

	business := s.resolveBusiness()
	s.mu.Lock()
	s.business = business
	s.sttc = s.pickSTT(business)
	s.mu.Unlock()

	s.setState(StateListening)
	s.log().Info("call started",
		"stream_id", f.StreamID,
		"business", business.Name,
		"streaming", business.StreamingMode)

	s.spawn(s.prepareApology)

	if business.StreamingMode && s.deps.Realtime != nil {
		if s.startStreaming(business) {
			return
		}
		// Streaming setup failed; the call continues turn-based.
	}

	s.spawn(func() {
		greeting := firstNonEmpty(business.Greeting, s.cfg.GreetingText)
		s.hist.appendAssistant(greeting, s.clock())
		s.say(s.ctx, greeting, "greeting")
	})
}

func (s *Session) resolveBusiness() policy.BusinessConfig {
	if s.deps.Resolver == nil {
		return policy.BusinessConfig{}
	}
	s.mu.Lock()
	callee := s.calleeID
	s.mu.Unlock()

	business, err := s.deps.Resolver.Resolve(callee)
	if err != nil {
		s.log().Warn("business resolution failed, using defaults",
			"callee", callee, "error", err)
		return policy.BusinessConfig{}
	}
	return business
}

func (s *Session) startStreaming(business policy.BusinessConfig) bool {
	rt, err := s.deps.Realtime(s.ctx, business)
	if err != nil {
		s.log().Warn("realtime dial failed, falling back to turn-based", "error", err)
		return false
	}

	s.mu.Lock()
	s.rt = rt
	s.streaming = true
	s.mu.Unlock()

	s.spawn(func() { s.consumeRealtime(rt) })

	// The backend speaks first; its instructions carry the greeting.
	if err := rt.CreateResponse(); err != nil {
		s.log().Warn("greeting request failed", "error", err)
	}
	return true
}

func (s *Session) handleMedia(f mediastream.MediaFrame) {
	s.touch()

	s.mu.Lock()
	state := s.state
	streaming := s.streaming
	rt := s.rt
	pl := s.pl
	s.mu.Unlock()

	if pl == nil || !state.active() {
		return
	}

	if streaming && rt != nil {
		// Frames are forwarded continuously; VAD only signals when to
		// ask for a reply turn.
		if err := rt.AppendAudio(f.Payload); err != nil {
			s.log().Warn("realtime audio forward failed", "error", err)
		}
		result, _ := s.detector.Process(f.Payload, s.clock())
		if result == vad.ResultUtterance {
			if err := rt.CreateResponse(); err != nil {
				s.log().Warn("reply request failed", "error", err)
			}
		}
		return
	}

	result, utterance := s.detector.Process(f.Payload, s.clock())
	switch result {
	case vad.ResultSpeech:
		s.mu.Lock()
		if s.state == StateListening {
			s.state = StateRecording
		}
		s.mu.Unlock()
	case vad.ResultDiscarded:
		s.mu.Lock()
		if s.state == StateRecording {
			s.state = StateListening
		}
		s.mu.Unlock()
	case vad.ResultUtterance:
		s.dispatchPipeline(utterance)
	}
}

// dispatchPipeline starts utterance processing unless one is already in
// flight. One pipeline per session at a time; a caller talking over a
// busy pipeline is dropped, not queued.
func (s *Session) dispatchPipeline(utterance []byte) {
	s.mu.Lock()
	if !s.state.active() {
		s.mu.Unlock()
		return
	}
	if s.pipelineBusy {
		s.mu.Unlock()
		s.log().Warn("utterance dropped, pipeline busy",
			"bytes", len(utterance))
		return
	}
	s.pipelineBusy = true
	s.state = StateProcessing
	s.mu.Unlock()

	s.spawn(func() { s.runPipeline(utterance) })
}

func (s *Session) runPipeline(utterance []byte) {
	defer func() {
		s.mu.Lock()
		s.pipelineBusy = false
		if s.state == StateProcessing || s.state == StateSpeaking {
			s.state = StateListening
		}
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ProcessTimeout)
	defer cancel()

	transcript, err := s.transcribe(ctx, utterance)
	if err != nil {
		s.log().Error("transcription failed", "error", err)
		s.apologize()
		return
	}
	if transcript == nil {
		// No usable input; stay quiet and keep listening.
		return
	}

	s.hist.appendCaller(transcript.Text, s.clock())

	s.mu.Lock()
	business := s.business
	flow := s.flow
	s.mu.Unlock()

	reply, err := s.deps.Policy.Respond(ctx, policy.Input{
		Text:     transcript.Text,
		History:  s.hist.snapshot(),
		Business: business,
		Flow:     flow,
	})
	if err != nil {
		s.log().Error("policy engine failed", "error", err)
		s.apologize()
		return
	}

	s.mu.Lock()
	s.flow = reply.NextFlow
	s.replySeq++
	seq := s.replySeq
	s.mu.Unlock()

	s.hist.appendAssistant(reply.Text, s.clock())
	s.say(ctx, reply.Text, fmt.Sprintf("reply-%d", seq))
}

func (s *Session) transcribe(ctx context.Context, utterance []byte) (*stt.Transcript, error) {
	s.mu.Lock()
	client := s.sttc
	language := s.business.Language
	s.mu.Unlock()
	if client == nil {
		client = s.deps.STT
	}

	payload := utterance
	opts := stt.TranscribeOptions{
		Language:   language,
		Format:     "mulaw",
		SampleRate: audio.TelephonyRate,
	}
	// The payload format follows the provider actually doing the
	// transcription, not the business config: Whisper wants WAV,
	// upsampled out of the telephony band.
	if client.Provider().Name() == "openai" {
		payload = audio.MulawToWAV(utterance, 16000)
		opts.Format = "wav"
		opts.SampleRate = 16000
	}
	return client.Transcribe(ctx, payload, opts)
}

// say synthesizes text through the provider chain and paces it out. Any
// failure falls through to the apology path; the caller never gets dead
// air.
func (s *Session) say(ctx context.Context, text, markName string) {
	s.mu.Lock()
	business := s.business
	pl := s.pl
	s.mu.Unlock()
	if pl == nil {
		return
	}

	s.setSpeaking()
	mulaw, err := s.synthesize(ctx, text, business)
	if err != nil {
		s.log().Error("synthesis failed", "error", err)
		s.apologize()
		return
	}
	if err := pl.play(ctx, mulaw, markName); err != nil && !errors.Is(err, context.Canceled) {
		s.log().Warn("playback aborted", "mark", markName, "error", err)
	}
	s.doneSpeaking()
}

func (s *Session) setSpeaking() {
	s.mu.Lock()
	if s.state.active() {
		s.state = StateSpeaking
	}
	s.mu.Unlock()
}

func (s *Session) doneSpeaking() {
	s.mu.Lock()
	if s.state == StateSpeaking {
		s.state = StateListening
	}
	s.mu.Unlock()
}

func (s *Session) synthesize(ctx context.Context, text string, business policy.BusinessConfig) ([]byte, error) {
	result, err := s.deps.TTS.SynthesizeFrom(ctx, business.TTSProvider, text, tts.SynthesizeOptions{
		Voice:    firstNonEmpty(business.Voice, s.cfg.TTSVoice),
		Model:    firstNonEmpty(business.TTSModel, s.cfg.TTSModel),
		Language: business.Language,
		Format:   "ulaw_8000",
	})
	if err != nil {
		return nil, err
	}
	if result.Format == "ulaw_8000" {
		return result.Audio, nil
	}
	return audio.PCMToMulaw(result.Audio, result.SampleRate), nil
}

// prepareApology synthesizes the apology line up front so total provider
// failure mid-call still produces sound.
func (s *Session) prepareApology() {
	ctx, cancel := context.WithTimeout(s.ctx, 15*time.Second)
	defer cancel()

	s.mu.Lock()
	business := s.business
	s.mu.Unlock()

	mulaw, err := s.synthesize(ctx, s.cfg.ApologyText, business)
	if err != nil {
		s.log().Warn("apology preparation failed", "error", err)
		return
	}
	s.mu.Lock()
	s.apologyAudio = mulaw
	s.mu.Unlock()
}

// apologize plays the prepared apology, synthesizing on the spot if
// preparation failed, and finally a built-in tone if every provider is
// down. A call must never go silent. Runs on its own deadline so an
// exhausted pipeline context cannot mute it.
func (s *Session) apologize() {
	ctx, cancel := context.WithTimeout(s.ctx, 15*time.Second)
	defer cancel()

	s.mu.Lock()
	clip := s.apologyAudio
	business := s.business
	pl := s.pl
	s.mu.Unlock()
	if pl == nil {
		return
	}

	if clip == nil {
		if mulaw, err := s.synthesize(ctx, s.cfg.ApologyText, business); err == nil {
			clip = mulaw
		}
	}
	if clip == nil {
		clip = builtinApologyTone()
	}
	s.setSpeaking()
	if err := pl.play(ctx, clip, "apology"); err != nil && !errors.Is(err, context.Canceled) {
		s.log().Warn("apology playback failed", "error", err)
	}
	s.doneSpeaking()
}

// consumeRealtime bridges backend events into playback and history
// until the client closes. Reconnect exhaustion downgrades the call to
// the turn-based pipeline instead of dropping it.
func (s *Session) consumeRealtime(rt *realtime.Client) {
	var replyText strings.Builder
	var segment chan []byte

	closeSegment := func() {
		if segment != nil {
			close(segment)
			segment = nil
		}
	}
	defer closeSegment()

	for ev := range rt.Events() {
		s.touch()
		switch e := ev.(type) {
		case *realtime.AudioDeltaEvent:
			if segment == nil {
				segment = make(chan []byte, 256)
				s.mu.Lock()
				s.replySeq++
				markName := fmt.Sprintf("reply-%d", s.replySeq)
				pl := s.pl
				s.mu.Unlock()
				s.setSpeaking()
				s.wg.Add(1)
				go func(ch chan []byte) {
					defer s.wg.Done()
					if err := pl.stream(s.ctx, ch, markName); err != nil && !errors.Is(err, context.Canceled) {
						s.log().Warn("streaming playback aborted", "error", err)
					}
					s.doneSpeaking()
				}(segment)
			}
			select {
			case segment <- e.Audio:
			case <-s.ctx.Done():
				return
			}
		case *realtime.TextDeltaEvent:
			replyText.WriteString(e.Delta)
		case *realtime.ItemCreatedEvent:
			if e.Role == "user" && strings.TrimSpace(e.Text) != "" {
				s.hist.appendCaller(e.Text, s.clock())
			}
		case *realtime.ResponseDoneEvent:
			closeSegment()
			if text := strings.TrimSpace(replyText.String()); text != "" {
				s.hist.appendAssistant(text, s.clock())
			}
			replyText.Reset()
		case *realtime.ClosedEvent:
			if e.Err != nil {
				s.downgrade(e.Err)
			}
			return
		}
	}
}

// downgrade switches a streaming call to the turn-based pipeline for the
// remainder of the call. The detector kept processing frames all along,
// so utterance capture resumes without recalibration.
func (s *Session) downgrade(cause error) {
	s.mu.Lock()
	if !s.state.active() {
		s.mu.Unlock()
		return
	}
	s.streaming = false
	s.rt = nil
	s.mu.Unlock()

	s.log().Warn("realtime backend lost, downgrading to turn-based pipeline",
		"error", cause)
}

// Close tears the session down: abandon in-flight work, close the
// realtime client and caller socket, and leave the registry. Idempotent;
// explicit stop and the idle sweep may both call it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateTerminating)
		s.cancel()

		s.mu.Lock()
		rt := s.rt
		s.rt = nil
		s.mu.Unlock()
		if rt != nil {
			rt.Close()
		}

		if err := s.writer.Close(); err != nil {
			s.log().Debug("socket close", "error", err)
		}
		s.unregister()
		s.wg.Wait()
		s.setState(StateClosed)
		s.log().Info("session closed", "turns", s.hist.len())
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
