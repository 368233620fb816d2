package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Event is the interface for all realtime backend events.
type Event interface {
	// EventType returns the event type string.
	EventType() string
}

// AudioDeltaEvent carries one chunk of synthesized reply audio.
type AudioDeltaEvent struct {
	ResponseID string
	ItemID     string
	Audio      []byte
}

func (e *AudioDeltaEvent) EventType() string { return "response.audio.delta" }

// TextDeltaEvent carries one chunk of the reply transcript.
type TextDeltaEvent struct {
	ResponseID string
	ItemID     string
	Delta      string
}

func (e *TextDeltaEvent) EventType() string { return "response.text.delta" }

// ItemCreatedEvent is emitted when the backend records a conversation turn.
type ItemCreatedEvent struct {
	ItemID string
	Role   string
	Text   string
}

func (e *ItemCreatedEvent) EventType() string { return "conversation.item.created" }

// SpeechStartedEvent signals that the backend's own turn detection heard
// the caller start speaking.
type SpeechStartedEvent struct{}

func (e *SpeechStartedEvent) EventType() string { return "input_audio_buffer.speech_started" }

// SpeechStoppedEvent signals that the backend heard the caller stop.
type SpeechStoppedEvent struct{}

func (e *SpeechStoppedEvent) EventType() string { return "input_audio_buffer.speech_stopped" }

// SessionCreatedEvent is emitted once after the socket is established.
type SessionCreatedEvent struct {
	SessionID string
}

func (e *SessionCreatedEvent) EventType() string { return "session.created" }

// SessionUpdatedEvent acknowledges a configuration update.
type SessionUpdatedEvent struct{}

func (e *SessionUpdatedEvent) EventType() string { return "session.updated" }

// ResponseDoneEvent signals that the backend finished one reply turn.
type ResponseDoneEvent struct {
	ResponseID string
}

func (e *ResponseDoneEvent) EventType() string { return "response.done" }

// ErrorEvent carries a backend-reported error. Most are recoverable and
// the session continues; auth errors terminate the connection.
type ErrorEvent struct {
	Code    string
	Message string
}

func (e *ErrorEvent) EventType() string { return "error" }

// ClosedEvent is the last event on the channel. Err is nil on a clean
// local close and non-nil when the connection was lost for good.
type ClosedEvent struct {
	Err error
}

func (e *ClosedEvent) EventType() string { return "closed" }

// serverEnvelope is the common wire shape of inbound messages. Only the
// fields the gateway acts on are decoded.
type serverEnvelope struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Session    struct {
		ID string `json:"id"`
	} `json:"session"`
	Item struct {
		ID      string `json:"id"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"item"`
	Response struct {
		ID string `json:"id"`
	} `json:"response"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeServerEvent parses one inbound message into a typed event.
// Unknown types return (nil, nil): the caller logs and drops them so new
// backend event types never break live calls.
func decodeServerEvent(data []byte) (Event, error) {
	var env serverEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch env.Type {
	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(env.Delta)
		if err != nil {
			return nil, fmt.Errorf("decode audio delta: %w", err)
		}
		return &AudioDeltaEvent{ResponseID: env.ResponseID, ItemID: env.ItemID, Audio: audio}, nil
	case "response.text.delta", "response.audio_transcript.delta":
		return &TextDeltaEvent{ResponseID: env.ResponseID, ItemID: env.ItemID, Delta: env.Delta}, nil
	case "conversation.item.created":
		text := ""
		for _, c := range env.Item.Content {
			if c.Text != "" {
				text = c.Text
				break
			}
		}
		return &ItemCreatedEvent{ItemID: env.Item.ID, Role: env.Item.Role, Text: text}, nil
	case "input_audio_buffer.speech_started":
		return &SpeechStartedEvent{}, nil
	case "input_audio_buffer.speech_stopped":
		return &SpeechStoppedEvent{}, nil
	case "session.created":
		return &SessionCreatedEvent{SessionID: env.Session.ID}, nil
	case "session.updated":
		return &SessionUpdatedEvent{}, nil
	case "response.done":
		id := env.Response.ID
		if id == "" {
			id = env.ResponseID
		}
		return &ResponseDoneEvent{ResponseID: id}, nil
	case "error":
		return &ErrorEvent{Code: env.Error.Code, Message: env.Error.Message}, nil
	default:
		return nil, nil
	}
}
