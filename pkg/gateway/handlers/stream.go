package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clearline-ai/clearline/pkg/gateway/lifecycle"
	"github.com/clearline-ai/clearline/pkg/gateway/session"
	"github.com/clearline-ai/clearline/pkg/gateway/sessions"
)

const defaultWriteTimeout = 5 * time.Second

// StreamHandler upgrades /stream to a websocket and runs one call
// session over it. The connection's read goroutine owns the session;
// playback happens on session-internal goroutines through the writer.
type StreamHandler struct {
	Logger        *slog.Logger
	Lifecycle     *lifecycle.Lifecycle
	Registry      *sessions.Registry
	SessionConfig session.Config
	SessionDeps   session.Deps
	WriteTimeout  time.Duration
}

func (h StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		// Media-stream peers are telephony backends, not browsers.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	writeTimeout := h.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	writer := &wsWriter{conn: conn, timeout: writeTimeout}

	sess := session.New(writer, h.Registry, h.SessionConfig, h.SessionDeps)
	defer sess.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if h.Logger != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.Logger.Debug("stream socket closed", "session_id", sess.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		sess.HandleMessage(data)
	}
}

// wsWriter adapts a websocket connection to the session's frame writer.
// The mutex serializes writes from the playback goroutine and session
// teardown; Close is idempotent.
type wsWriter struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func (w *wsWriter) WriteFrame(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsWriter) Close() error {
	w.closeOnce.Do(func() {
		_ = w.conn.Close()
	})
	return nil
}
