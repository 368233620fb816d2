package session

import (
	"context"
	"sync"
	"time"

	"github.com/clearline-ai/clearline/pkg/gateway/mediastream"
)

// frameWriter is the outbound side of the caller socket. Close tears
// down the underlying connection and must be idempotent.
type frameWriter interface {
	WriteFrame(data []byte) error
	Close() error
}

// player paces outbound audio at real-time rate: one chunk per chunk
// duration, strictly in generation order, with a mark after the final
// chunk of each spoken message. The mutex holds the invariant of at
// most one outbound stream per session.
type player struct {
	writer   frameWriter
	enc      *mediastream.Encoder
	interval time.Duration

	mu sync.Mutex
}

func newPlayer(writer frameWriter, enc *mediastream.Encoder, interval time.Duration) *player {
	if interval <= 0 {
		interval = time.Duration(mediastream.ChunkDurationMs()) * time.Millisecond
	}
	return &player{writer: writer, enc: enc, interval: interval}
}

// play writes one complete audio clip as paced media frames followed by
// a mark. Returns early when ctx is canceled; no mark is sent then.
func (p *player) play(ctx context.Context, mulaw []byte, markName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for i, frame := range p.enc.MediaFrames(mulaw) {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		if err := p.writer.WriteFrame(frame); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.writer.WriteFrame(p.enc.Mark(markName))
}

// stream paces audio arriving incrementally on ch, accumulating deltas
// into full chunks, and marks once ch closes and the tail is flushed.
// Used for realtime backend replies where audio is not known up front.
func (p *player) stream(ctx context.Context, ch <-chan []byte, markName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var pending []byte
	wrote := false

	writeChunk := func(chunk []byte) error {
		if wrote {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		frames := p.enc.MediaFrames(chunk)
		for _, frame := range frames {
			if err := p.writer.WriteFrame(frame); err != nil {
				return err
			}
		}
		wrote = true
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delta, ok := <-ch:
			if !ok {
				if len(pending) > 0 {
					if err := writeChunk(pending); err != nil {
						return err
					}
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				return p.writer.WriteFrame(p.enc.Mark(markName))
			}
			pending = append(pending, delta...)
			for len(pending) >= mediastream.ChunkBytes {
				if err := writeChunk(pending[:mediastream.ChunkBytes]); err != nil {
					return err
				}
				pending = pending[mediastream.ChunkBytes:]
			}
		}
	}
}
