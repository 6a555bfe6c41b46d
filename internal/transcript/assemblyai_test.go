package transcript

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestHasVoiceEnergy(t *testing.T) {
	silence := make([]byte, 3200)
	if hasVoiceEnergy(silence) {
		t.Fatalf("silence must not register as voice")
	}

	tone := make([]byte, 3200)
	for i := 0; i < len(tone)/2; i++ {
		v := int16(3000 * math.Sin(float64(i)*0.3))
		binary.LittleEndian.PutUint16(tone[2*i:], uint16(v))
	}
	if !hasVoiceEnergy(tone) {
		t.Fatalf("loud tone must register as voice")
	}

	if hasVoiceEnergy(tone[:100]) {
		t.Fatalf("tiny buffer must not register as voice")
	}
}

func TestSessionFinalizeEmitsOnce(t *testing.T) {
	r := NewAssemblyAIRecognizer("key")
	s := newAAISession(r)
	s.latest = "  שלום לך  "

	s.finalize()
	s.finalize()
	s.fail(ErrCodeOther)

	select {
	case got := <-r.Utterances():
		if got != "שלום לך" {
			t.Fatalf("expected trimmed utterance, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected one utterance")
	}
	select {
	case code := <-r.Errors():
		t.Fatalf("unexpected error code after finalize: %s", code)
	case got := <-r.Utterances():
		t.Fatalf("second emission: %q", got)
	default:
	}
}

func TestSessionFinalizeWithoutTranscriptReportsNoSpeech(t *testing.T) {
	r := NewAssemblyAIRecognizer("key")
	s := newAAISession(r)

	s.finalize()

	select {
	case code := <-r.Errors():
		if code != ErrCodeNoSpeech {
			t.Fatalf("expected %s, got %s", ErrCodeNoSpeech, code)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected no-speech code")
	}
}

func TestSessionAbandonEmitsNothing(t *testing.T) {
	r := NewAssemblyAIRecognizer("key")
	s := newAAISession(r)
	s.latest = "half a sentence"

	s.abandon()
	s.finalize()

	select {
	case got := <-r.Utterances():
		t.Fatalf("abandoned session must stay silent, got %q", got)
	case code := <-r.Errors():
		t.Fatalf("abandoned session must stay silent, got %s", code)
	default:
	}
}

func TestStartRequiresKeyAndSingleSession(t *testing.T) {
	r := NewAssemblyAIRecognizer("")
	if err := r.Start(context.Background()); err == nil {
		t.Fatalf("expected error with no api key")
	}

	r = NewAssemblyAIRecognizer("key")
	r.session = newAAISession(r)
	if err := r.Start(context.Background()); err == nil {
		t.Fatalf("expected error while a session is active")
	}
}

func TestSendPCMWithoutSessionDrops(t *testing.T) {
	r := NewAssemblyAIRecognizer("key")
	if err := r.SendPCM16KLE(make([]byte, 640)); err != nil {
		t.Fatalf("audio between sessions should be dropped silently: %v", err)
	}
	r.Stop()
}
