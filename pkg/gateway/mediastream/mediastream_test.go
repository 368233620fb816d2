package mediastream

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeStart(t *testing.T) {
	raw := `{"event":"start","start":{"callId":"CA1","streamId":"MS1","calleeId":"+15551234567","params":{"agent":"front-desk"}}}`
	got, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	start, ok := got.(StartFrame)
	if !ok {
		t.Fatalf("got %T, want StartFrame", got)
	}
	if start.CallID != "CA1" || start.StreamID != "MS1" {
		t.Errorf("identity = %q/%q", start.CallID, start.StreamID)
	}
	if start.Params["agent"] != "front-desk" {
		t.Errorf("params = %v", start.Params)
	}
}

func TestDecodeMedia(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0xFF, 0x00, 0x7F})
	raw := `{"event":"media","streamId":"MS1","media":{"payload":"` + payload + `"}}`
	got, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	media, ok := got.(MediaFrame)
	if !ok {
		t.Fatalf("got %T, want MediaFrame", got)
	}
	if len(media.Payload) != 3 || media.Payload[0] != 0xFF {
		t.Errorf("payload = %v", media.Payload)
	}
}

func TestDecodeStopAndEnd(t *testing.T) {
	for _, event := range []string{"stop", "end"} {
		got, err := Decode([]byte(`{"event":"` + event + `","streamId":"MS1"}`))
		if err != nil {
			t.Fatalf("Decode(%s): %v", event, err)
		}
		if _, ok := got.(StopFrame); !ok {
			t.Errorf("Decode(%s) = %T, want StopFrame", event, got)
		}
	}
}

func TestDecodeUnknownEventDropped(t *testing.T) {
	got, err := Decode([]byte(`{"event":"dtmf","digit":"5"}`))
	if err != nil {
		t.Fatalf("unknown event must not error: %v", err)
	}
	unknown, ok := got.(UnknownFrame)
	if !ok || unknown.Event != "dtmf" {
		t.Errorf("got %#v, want UnknownFrame{dtmf}", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{media`},
		{"missing event", `{"streamId":"MS1"}`},
		{"start without callId", `{"event":"start","start":{"streamId":"MS1"}}`},
		{"media without payload", `{"event":"media","streamId":"MS1","media":{}}`},
		{"media bad base64", `{"event":"media","streamId":"MS1","media":{"payload":"!!!"}}`},
		{"mark without name", `{"event":"mark","streamId":"MS1","mark":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
		})
	}
}

func TestEncoderChunksTo40ms(t *testing.T) {
	enc := NewEncoder("MS1")
	mulaw := make([]byte, ChunkBytes*2+100)
	frames := enc.MediaFrames(mulaw)
	if len(frames) != 3 {
		t.Fatalf("frame count = %d, want 3", len(frames))
	}

	sizes := []int{ChunkBytes, ChunkBytes, 100}
	for i, frame := range frames {
		var msg struct {
			Event    string `json:"event"`
			StreamID string `json:"streamId"`
			Media    struct {
				Payload string `json:"payload"`
			} `json:"media"`
		}
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if msg.Event != "media" || msg.StreamID != "MS1" {
			t.Errorf("frame %d envelope = %+v", i, msg)
		}
		payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			t.Fatalf("frame %d payload: %v", i, err)
		}
		if len(payload) != sizes[i] {
			t.Errorf("frame %d size = %d, want %d", i, len(payload), sizes[i])
		}
	}
}

func TestEncoderMark(t *testing.T) {
	frame := NewEncoder("MS1").Mark("reply-1")
	var msg struct {
		Event string `json:"event"`
		Mark  struct {
			Name string `json:"name"`
		} `json:"mark"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Event != "mark" || msg.Mark.Name != "reply-1" {
		t.Errorf("got %+v", msg)
	}
}

func TestEncoderEmptyAudio(t *testing.T) {
	if frames := NewEncoder("MS1").MediaFrames(nil); frames != nil {
		t.Errorf("got %d frames for empty audio, want none", len(frames))
	}
}

func TestChunkDuration(t *testing.T) {
	if got := ChunkDurationMs(); got != 40 {
		t.Errorf("chunk duration = %d ms, want 40", got)
	}
}
