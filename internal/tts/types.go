package tts

import "context"

// Synthesizer streams synthesized audio for the given text. The audio
// channel closes when the stream ends; the error channel carries at most one
// error.
type Synthesizer interface {
	Stream(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// AudioSink consumes synthesized audio bytes and performs delivery (e.g.
// pushing frames over a browser WebSocket). Implementations should buffer
// internally and pace delivery.
type AudioSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued audio immediately (used when speech is interrupted).
	Reset()
}

// NopSink discards audio. Useful in tests and headless runs.
type NopSink struct{}

func (NopSink) WritePCM(_ []byte) {}
func (NopSink) FlushTail()        {}
func (NopSink) Reset()            {}
