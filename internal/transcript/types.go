package transcript

import "context"

// ErrorCode classifies recognition failures the way the capture surface
// reports them.
type ErrorCode string

const (
	// ErrCodeNotAllowed means microphone access was refused.
	ErrCodeNotAllowed ErrorCode = "not-allowed"
	// ErrCodeNoSpeech means the listening session ended without a usable utterance.
	ErrCodeNoSpeech ErrorCode = "no-speech"
	// ErrCodeAudioCapture means no capture device/stream was available.
	ErrCodeAudioCapture ErrorCode = "audio-capture"
	// ErrCodeOther covers everything else.
	ErrCodeOther ErrorCode = "other"
)

// Recognizer captures speech imperatively. Each successful listening
// session emits exactly one finalized utterance on Utterances, or one code
// on Errors. The channels stay open across sessions; Start begins a session
// and Stop abandons it.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop()
	Utterances() <-chan string
	Errors() <-chan ErrorCode
	// SendPCM16KLE feeds captured 16kHz little-endian mono PCM into the
	// active session.
	SendPCM16KLE(pcm []byte) error
}
