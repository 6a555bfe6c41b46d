package tts

import (
	"context"
	"fmt"
	"log"
)

// Output speaks text through the primary synthesizer and falls back once to
// the secondary channel when the primary rejects the turn. A fallback
// failure is reported but never retried: the turn is considered complete
// even without audible output.
type Output struct {
	Primary  Synthesizer
	Fallback Synthesizer
	Sink     AudioSink
}

func NewOutput(primary, fallback Synthesizer, sink AudioSink) *Output {
	if sink == nil {
		sink = NopSink{}
	}
	return &Output{Primary: primary, Fallback: fallback, Sink: sink}
}

// Speak blocks until playback delivery finishes, the stream fails, or ctx is
// canceled.
func (o *Output) Speak(ctx context.Context, text string) error {
	if o.Primary != nil {
		sawAudio, err := o.drain(ctx, o.Primary, text)
		if err == nil {
			o.Sink.FlushTail()
			return nil
		}
		if sawAudio || ctx.Err() != nil {
			// mid-stream failure or interruption: no fallback, partial audio stands
			return err
		}
		log.Printf("tts: primary channel rejected, falling back: %v", err)
	}
	if o.Fallback == nil {
		return fmt.Errorf("tts: no speech channel available")
	}
	if _, err := o.drain(ctx, o.Fallback, text); err != nil {
		return fmt.Errorf("tts: fallback failed: %w", err)
	}
	o.Sink.FlushTail()
	return nil
}

// drain consumes one synthesizer stream into the sink. It reports whether
// any audio was produced alongside the stream error, mirroring how the
// session loop in the original kept reading both channels until closed.
func (o *Output) drain(ctx context.Context, syn Synthesizer, text string) (bool, error) {
	audioCh, errCh := syn.Stream(ctx, text)
	var sawAudio bool
	var streamErr error
	openAudio, openErr := true, true
	for openAudio || openErr {
		select {
		case b, ok := <-audioCh:
			if !ok {
				openAudio = false
				continue
			}
			if len(b) > 0 {
				sawAudio = true
				o.Sink.WritePCM(b)
			}
		case e, ok := <-errCh:
			if !ok {
				openErr = false
				continue
			}
			if e != nil && streamErr == nil {
				streamErr = e
			}
		case <-ctx.Done():
			return sawAudio, ctx.Err()
		}
	}
	return sawAudio, streamErr
}
