package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clearline-ai/clearline/pkg/core/policy"
	"github.com/clearline-ai/clearline/pkg/core/stt"
	"github.com/clearline-ai/clearline/pkg/core/tts"
	"github.com/clearline-ai/clearline/pkg/core/vad"
	"github.com/clearline-ai/clearline/pkg/gateway/config"
	"github.com/clearline-ai/clearline/pkg/gateway/session"
	"github.com/clearline-ai/clearline/pkg/gateway/sessions"
)

type fakeSTTProvider struct{}

func (fakeSTTProvider) Name() string { return "fake-stt" }

func (fakeSTTProvider) Transcribe(ctx context.Context, r io.Reader, opts stt.TranscribeOptions) (*stt.Transcript, error) {
	return &stt.Transcript{Text: "hello"}, nil
}

type fakeTTSProvider struct{}

func (fakeTTSProvider) Name() string { return "fake-tts" }

func (fakeTTSProvider) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOptions) (*tts.Synthesis, error) {
	audio := make([]byte, 640)
	for i := range audio {
		audio[i] = 0x55
	}
	return &tts.Synthesis{Audio: audio, Format: "ulaw_8000", SampleRate: 8000, Provider: "fake-tts"}, nil
}

func testServer(t *testing.T) (*Server, *sessions.Registry) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := sessions.NewRegistry()
	deps := session.Deps{
		STT: stt.NewClient(fakeSTTProvider{}, stt.WithMaxRetries(0)),
		TTS: tts.NewChain([]tts.Provider{fakeTTSProvider{}}),
		Policy: policy.EngineFunc(func(ctx context.Context, in policy.Input) (*policy.Reply, error) {
			return &policy.Reply{Text: "Sure."}, nil
		}),
		Resolver: policy.NewStaticResolver(map[string]policy.BusinessConfig{
			"+15551234567": {
				ID:       "biz-1",
				Name:     "Riverside Dental",
				Greeting: "Thank you for calling Riverside Dental.",
			},
		}),
		Logger: logger,
	}
	sessionCfg := session.Config{
		VAD:            vad.DefaultConfig(),
		ChunkInterval:  time.Millisecond,
		ProcessTimeout: 5 * time.Second,
		GreetingText:   "Hello.",
		ApologyText:    "Sorry.",
	}

	return New(config.Config{Addr: ":0"}, registry, sessionCfg, deps, logger), registry
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestReadyzReflectsDraining(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	srv.SetDraining()

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 while draining", resp.StatusCode)
	}
	var body struct {
		OK       bool `json:"ok"`
		Draining bool `json:"draining"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.OK || !body.Draining {
		t.Fatalf("body = %+v, want draining", body)
	}
}

func TestStreamRejectedWhileDraining(t *testing.T) {
	srv, _ := testServer(t)
	srv.SetDraining()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStreamRejectsNonGet(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/stream", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

type outboundFrame struct {
	Event string `json:"event"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark"`
}

func TestStreamWebsocketGreetsCaller(t *testing.T) {
	srv, registry := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	start := `{"event":"start","start":{"callId":"CA100","streamId":"MZ100","callerId":"+15557001234","calleeId":"+15551234567"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(start)); err != nil {
		t.Fatalf("write start: %v", err)
	}

	var mediaFrames int
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read greeting frames: %v (media so far %d)", err, mediaFrames)
		}
		var f outboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode outbound frame %q: %v", data, err)
		}
		switch f.Event {
		case "media":
			mediaFrames++
		case "mark":
			if f.Mark == nil || f.Mark.Name != "greeting" {
				t.Fatalf("unexpected mark %+v", f.Mark)
			}
			if mediaFrames != 2 {
				t.Fatalf("media frames before greeting mark = %d, want 2", mediaFrames)
			}
			if got := registry.Count(); got != 1 {
				t.Fatalf("registry count = %d, want 1", got)
			}
			return
		default:
			t.Fatalf("unexpected outbound event %q", f.Event)
		}
	}
}

func TestStreamSessionUnregistersOnDisconnect(t *testing.T) {
	srv, registry := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for registry.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("registry count = %d, want 0 after disconnect", registry.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !srv.WaitSessions(ctx) {
		t.Fatal("WaitSessions did not drain")
	}
}
