package tts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSynth emits chunks then either closes cleanly or fails.
type fakeSynth struct {
	chunks int
	err    error
	calls  int32
	heard  atomic.Value // last text
}

func (f *fakeSynth) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	atomic.AddInt32(&f.calls, 1)
	f.heard.Store(text)
	audio := make(chan []byte, 8)
	errc := make(chan error, 1)
	go func() {
		defer close(audio)
		defer close(errc)
		for i := 0; i < f.chunks; i++ {
			select {
			case audio <- []byte{1, 0}:
			case <-ctx.Done():
				return
			}
		}
		if f.err != nil {
			errc <- f.err
		}
	}()
	return audio, errc
}

type countingSink struct{ wrote, resets int32 }

func (s *countingSink) WritePCM(_ []byte) { atomic.AddInt32(&s.wrote, 1) }
func (s *countingSink) FlushTail()        {}
func (s *countingSink) Reset()            { atomic.AddInt32(&s.resets, 1) }

func TestOutput_PrimarySuccessSkipsFallback(t *testing.T) {
	primary := &fakeSynth{chunks: 3}
	fallback := &fakeSynth{chunks: 1}
	sink := &countingSink{}
	out := NewOutput(primary, fallback, sink)
	if err := out.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if atomic.LoadInt32(&fallback.calls) != 0 {
		t.Fatalf("fallback must not run when primary succeeds")
	}
	if atomic.LoadInt32(&sink.wrote) != 3 {
		t.Fatalf("expected 3 chunks written, got %d", sink.wrote)
	}
}

func TestOutput_RejectionFallsBackOnceWithSameText(t *testing.T) {
	primary := &fakeSynth{chunks: 0, err: errors.New("rejected")}
	fallback := &fakeSynth{chunks: 2}
	out := NewOutput(primary, fallback, &countingSink{})
	if err := out.Speak(context.Background(), "same text"); err != nil {
		t.Fatalf("speak should succeed via fallback: %v", err)
	}
	if got := atomic.LoadInt32(&fallback.calls); got != 1 {
		t.Fatalf("expected exactly one fallback attempt, got %d", got)
	}
	if fallback.heard.Load().(string) != "same text" {
		t.Fatalf("fallback must receive the same text")
	}
}

func TestOutput_FallbackFailureStillReturns(t *testing.T) {
	primary := &fakeSynth{err: errors.New("rejected")}
	fallback := &fakeSynth{err: errors.New("also broken")}
	out := NewOutput(primary, fallback, &countingSink{})
	done := make(chan error, 1)
	go func() { done <- out.Speak(context.Background(), "x") }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected error when both channels fail")
		}
	case <-time.After(time.Second):
		t.Fatalf("Speak must not block when both channels fail")
	}
}

func TestOutput_MidStreamFailureDoesNotFallBack(t *testing.T) {
	primary := &fakeSynth{chunks: 2, err: errors.New("cut off")}
	fallback := &fakeSynth{chunks: 1}
	out := NewOutput(primary, fallback, &countingSink{})
	if err := out.Speak(context.Background(), "x"); err == nil {
		t.Fatalf("expected mid-stream error to surface")
	}
	if atomic.LoadInt32(&fallback.calls) != 0 {
		t.Fatalf("fallback must not replay partially spoken text")
	}
}

func TestDeepgramFallback_NoKey(t *testing.T) {
	d := NewDeepgramFallback("", "", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	audioCh, errCh := d.Stream(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-audioCh:
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestOpenAITTS_NoKey(t *testing.T) {
	c := NewOpenAIClient("", "", 0)
	_, errCh := c.Stream(context.Background(), "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}
