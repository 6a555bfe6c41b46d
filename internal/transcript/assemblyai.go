package transcript

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// silenceThreshold is the inactivity window required before an utterance is
// considered complete. Conservative to avoid cutting the user mid-sentence.
const silenceThreshold = 900 * time.Millisecond

// noSpeechTimeout bounds a listening session that never produced any
// transcript; it maps to the no-speech error code.
const noSpeechTimeout = 8 * time.Second

// AssemblyAIRecognizer captures one finalized utterance per listening
// session over the AssemblyAI streaming WebSocket.
type AssemblyAIRecognizer struct {
	apiKey     string
	utterances chan string
	errors     chan ErrorCode

	mu      sync.Mutex
	session *aaiSession
}

func NewAssemblyAIRecognizer(apiKey string) *AssemblyAIRecognizer {
	return &AssemblyAIRecognizer{
		apiKey:     apiKey,
		utterances: make(chan string, 4),
		errors:     make(chan ErrorCode, 4),
	}
}

func (r *AssemblyAIRecognizer) Utterances() <-chan string { return r.utterances }
func (r *AssemblyAIRecognizer) Errors() <-chan ErrorCode  { return r.errors }

// Start begins a listening session. Connection and recognition failures are
// reported asynchronously on Errors, mirroring event-style capture APIs.
func (r *AssemblyAIRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return fmt.Errorf("transcript: listening session already active")
	}
	if r.apiKey == "" {
		return fmt.Errorf("transcript: api key missing")
	}
	s := newAAISession(r)
	r.session = s
	go s.run(ctx, r.apiKey)
	return nil
}

// Stop abandons the active session without emitting anything.
func (r *AssemblyAIRecognizer) Stop() {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()
	if s != nil {
		s.abandon()
	}
}

// SendPCM16KLE feeds captured audio into the active session. Audio arriving
// between sessions is dropped.
func (r *AssemblyAIRecognizer) SendPCM16KLE(pcm []byte) error {
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.feed(pcm)
}

func (r *AssemblyAIRecognizer) sessionDone(s *aaiSession) {
	r.mu.Lock()
	if r.session == s {
		r.session = nil
	}
	r.mu.Unlock()
}

// aaiSession is the per-listening-session state. It emits exactly once.
type aaiSession struct {
	parent  *AssemblyAIRecognizer
	stopCh  chan struct{}
	audioCh chan []byte
	once    sync.Once

	accMu         sync.Mutex
	conn          *websocket.Conn
	latest        string
	lastVoiceTime time.Time
	silenceTimer  *time.Timer
}

func newAAISession(parent *AssemblyAIRecognizer) *aaiSession {
	return &aaiSession{
		parent:  parent,
		stopCh:  make(chan struct{}),
		audioCh: make(chan []byte, 1000),
	}
}

// AssemblyAI message frames.
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *aaiSession) run(ctx context.Context, apiKey string) {
	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, map[string][]string{"Authorization": {apiKey}})
	if err != nil {
		code := ErrCodeAudioCapture
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			code = ErrCodeNotAllowed
		}
		log.Printf("transcript: connect failed: %v", err)
		s.fail(code)
		return
	}
	s.accMu.Lock()
	s.conn = conn
	s.lastVoiceTime = time.Now()
	s.accMu.Unlock()

	noSpeech := time.AfterFunc(noSpeechTimeout, func() { s.finalize() })
	defer noSpeech.Stop()

	go s.writeLoop(conn)
	s.readLoop(conn)
}

func (s *aaiSession) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audioCh:
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Printf("transcript: send audio: %v", err)
				return
			}
		}
	}
}

func (s *aaiSession) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			// a closed socket after finalization is expected
			select {
			case <-s.stopCh:
			default:
				s.finalize()
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *aaiSession) handleMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("transcript: bad frame: %v", err)
		return
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if json.Unmarshal(message, &msg) == nil {
			log.Printf("transcript: session began id=%s", msg.ID)
		}
	case "Turn":
		var msg turnMessage
		if json.Unmarshal(message, &msg) != nil || msg.Transcript == "" {
			return
		}
		s.accMu.Lock()
		s.latest = msg.Transcript
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(silenceThreshold, s.onSilence)
		} else {
			s.silenceTimer.Stop()
			s.silenceTimer.Reset(silenceThreshold)
		}
		s.accMu.Unlock()
	case "Termination":
		s.finalize()
	case "Error":
		var msg errorMessage
		_ = json.Unmarshal(message, &msg)
		log.Printf("transcript: provider error: %s", msg.Error)
		s.fail(ErrCodeOther)
	}
}

// onSilence fires after the inactivity window. Recent voice energy without
// transcript updates pushes the window forward.
func (s *aaiSession) onSilence() {
	s.accMu.Lock()
	sinceVoice := time.Since(s.lastVoiceTime)
	if sinceVoice < silenceThreshold {
		s.silenceTimer.Reset(silenceThreshold - sinceVoice)
		s.accMu.Unlock()
		return
	}
	s.accMu.Unlock()
	s.finalize()
}

// finalize ends the session, emitting the accumulated utterance or the
// no-speech code. Safe to call multiple times; only the first wins.
func (s *aaiSession) finalize() {
	s.once.Do(func() {
		s.accMu.Lock()
		text := strings.TrimSpace(s.latest)
		s.accMu.Unlock()
		s.teardown()
		s.parent.sessionDone(s)
		if text == "" {
			s.parent.errors <- ErrCodeNoSpeech
			return
		}
		s.parent.utterances <- text
	})
}

func (s *aaiSession) fail(code ErrorCode) {
	s.once.Do(func() {
		s.teardown()
		s.parent.sessionDone(s)
		s.parent.errors <- code
	})
}

// abandon tears the session down without emitting; used for user stops.
func (s *aaiSession) abandon() {
	s.once.Do(func() {
		s.teardown()
	})
}

func (s *aaiSession) teardown() {
	close(s.stopCh)
	s.accMu.Lock()
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	if s.conn != nil {
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = s.conn.Close()
		s.conn = nil
	}
	s.accMu.Unlock()
}

// feed queues audio and refreshes voice-activity timing.
func (s *aaiSession) feed(pcm []byte) error {
	if hasVoiceEnergy(pcm) {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
	select {
	case <-s.stopCh:
		return nil
	case s.audioCh <- pcm:
		return nil
	default:
		log.Println("transcript: audio buffer full, dropping packet")
		return nil
	}
}

// hasVoiceEnergy reports whether a 16-bit little-endian mono buffer carries
// voice-level RMS energy.
func hasVoiceEnergy(pcm []byte) bool {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return false
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return false
	}
	const voiceRMS = 250.0
	return math.Sqrt(sumSquares/float64(count)) >= voiceRMS
}
