// Package mediastream speaks the inbound telephony media-stream
// protocol: JSON frames over a persistent socket carrying narrow-band
// audio in both directions.
package mediastream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clearline-ai/clearline/pkg/core/audio"
)

// ChunkBytes is one outbound media frame's worth of mulaw audio, 40 ms
// at the telephony rate.
const ChunkBytes = 320

// DecodeError describes a malformed inbound frame. The frame is dropped
// and the session continues.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// StartFrame carries the definitive call identity and per-call custom
// parameters.
type StartFrame struct {
	CallID   string            `json:"callId"`
	StreamID string            `json:"streamId"`
	CallerID string            `json:"callerId,omitempty"`
	CalleeID string            `json:"calleeId,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// MediaFrame is one inbound audio frame, payload already base64-decoded.
type MediaFrame struct {
	StreamID string
	Payload  []byte
}

// StopFrame terminates the stream. Both "stop" and "end" events decode
// to this.
type StopFrame struct {
	StreamID string `json:"streamId,omitempty"`
}

// MarkFrame echoes a playback marker back from the caller side.
type MarkFrame struct {
	StreamID string
	Name     string
}

// UnknownFrame is any event type this gateway does not handle. Callers
// log it and move on.
type UnknownFrame struct {
	Event string
}

type wireMedia struct {
	Payload string `json:"payload"`
}

type wireMark struct {
	Name string `json:"name"`
}

type inboundEnvelope struct {
	Event    string          `json:"event"`
	StreamID string          `json:"streamId,omitempty"`
	Start    *StartFrame     `json:"start,omitempty"`
	Media    *wireMedia      `json:"media,omitempty"`
	Mark     *wireMark       `json:"mark,omitempty"`
	Stop     json.RawMessage `json:"stop,omitempty"`
}

// Decode parses one inbound protocol message. Unknown event types come
// back as UnknownFrame with a nil error; malformed frames return a
// *DecodeError. Neither is ever fatal to the session.
func Decode(data []byte) (any, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	event := strings.TrimSpace(env.Event)
	if event == "" {
		return nil, badRequest("missing event", "event")
	}

	switch event {
	case "start":
		if env.Start == nil {
			return nil, badRequest("start payload is required", "start")
		}
		if strings.TrimSpace(env.Start.CallID) == "" {
			return nil, badRequest("start.callId is required", "start.callId")
		}
		if strings.TrimSpace(env.Start.StreamID) == "" {
			return nil, badRequest("start.streamId is required", "start.streamId")
		}
		return *env.Start, nil
	case "media":
		if env.Media == nil || strings.TrimSpace(env.Media.Payload) == "" {
			return nil, badRequest("media.payload is required", "media.payload")
		}
		payload, err := base64.StdEncoding.DecodeString(env.Media.Payload)
		if err != nil {
			return nil, badRequest("media.payload is not valid base64", "media.payload")
		}
		return MediaFrame{StreamID: env.StreamID, Payload: payload}, nil
	case "stop", "end":
		return StopFrame{StreamID: env.StreamID}, nil
	case "mark":
		if env.Mark == nil || strings.TrimSpace(env.Mark.Name) == "" {
			return nil, badRequest("mark.name is required", "mark.name")
		}
		return MarkFrame{StreamID: env.StreamID, Name: env.Mark.Name}, nil
	default:
		return UnknownFrame{Event: event}, nil
	}
}

type outboundMedia struct {
	Event    string    `json:"event"`
	StreamID string    `json:"streamId"`
	Media    wireMedia `json:"media"`
}

type outboundMark struct {
	Event    string   `json:"event"`
	StreamID string   `json:"streamId"`
	Mark     wireMark `json:"mark"`
}

// Encoder packages outbound audio for one stream.
type Encoder struct {
	streamID string
}

// NewEncoder creates an encoder bound to a stream identifier.
func NewEncoder(streamID string) *Encoder {
	return &Encoder{streamID: streamID}
}

// MediaFrames splits mulaw audio into 40 ms media frames, marshaled and
// ready to write. Chunks preserve input order; the final chunk may be
// short.
func (e *Encoder) MediaFrames(mulaw []byte) [][]byte {
	if len(mulaw) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(mulaw)+ChunkBytes-1)/ChunkBytes)
	for off := 0; off < len(mulaw); off += ChunkBytes {
		end := off + ChunkBytes
		if end > len(mulaw) {
			end = len(mulaw)
		}
		frame, _ := json.Marshal(outboundMedia{
			Event:    "media",
			StreamID: e.streamID,
			Media:    wireMedia{Payload: base64.StdEncoding.EncodeToString(mulaw[off:end])},
		})
		frames = append(frames, frame)
	}
	return frames
}

// Mark builds the end-of-message marker sent after the last chunk of a
// spoken reply.
func (e *Encoder) Mark(name string) []byte {
	frame, _ := json.Marshal(outboundMark{
		Event:    "mark",
		StreamID: e.streamID,
		Mark:     wireMark{Name: name},
	})
	return frame
}

// ChunkDurationMs reports how long one full outbound chunk plays for.
func ChunkDurationMs() int {
	return audio.MulawDurationMs(ChunkBytes)
}
