package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/roy2392/natalie-voice-agent-demo/internal/conversation"
	"github.com/roy2392/natalie-voice-agent-demo/internal/llm"
	"github.com/roy2392/natalie-voice-agent-demo/internal/scenario"
	"github.com/roy2392/natalie-voice-agent-demo/internal/transcript"
	"github.com/roy2392/natalie-voice-agent-demo/internal/tts"
)

// State is the controller's turn-taking position.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// errorDisplayDelay keeps an error message visible before returning to idle.
	errorDisplayDelay = 3 * time.Second
	generateTimeout   = 20 * time.Second
	speakTimeout      = 30 * time.Second
)

// User-facing Hebrew messages. The apology carries the human phone fallback.
const (
	apologyMessage    = "מצטער, אירעה שגיאה. אנא נסו שוב או חייגו 03-6076111"
	msgNotAllowed     = "הגישה למיקרופון נדחתה. אנא אשרו גישה למיקרופון בדפדפן ונסו שוב."
	msgNoSpeech       = "לא זוהה דיבור. אנא נסו שוב."
	msgNoMicrophone   = "לא נמצא מיקרופון. אנא בדקו שהמיקרופון מחובר ונסו שוב."
	msgGenericFailure = "אירעה שגיאה בזיהוי הדיבור. אנא נסו שוב."
)

// Events surface transcript lines and status text to the display layer.
type Events struct {
	OnUser      func(text string)
	OnAssistant func(text string)
	OnStatus    func(state State)
	OnNotice    func(text string)
}

// Timer schedules the controller's delayed transitions.
type Timer interface {
	AfterFunc(d time.Duration, fn func())
}

type realTimer struct{}

func (realTimer) AfterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Agent is the conversation controller: it sequences capture, generation and
// speech so that no two collaborator calls for the session overlap, and
// converts every collaborator failure into a fixed state transition plus
// user-visible text.
type Agent struct {
	recognizer   transcript.Recognizer
	generator    llm.Generator
	speech       *tts.Output
	history      *conversation.History
	systemPrompt func() string
	events       Events
	timer        Timer

	mu            sync.Mutex
	state         State
	pendingListen bool
	speakCancel   context.CancelFunc
	baseCtx       context.Context

	flow *scenario.Engine
}

func New(recognizer transcript.Recognizer, generator llm.Generator, speech *tts.Output, history *conversation.History, systemPrompt func() string, events Events, timer Timer) *Agent {
	if timer == nil {
		timer = realTimer{}
	}
	if systemPrompt == nil {
		systemPrompt = func() string { return "" }
	}
	return &Agent{
		recognizer:   recognizer,
		generator:    generator,
		speech:       speech,
		history:      history,
		systemPrompt: systemPrompt,
		events:       events,
		timer:        timer,
		state:        StateIdle,
		baseCtx:      context.Background(),
	}
}

// SetFlow attaches the scripted-call engine. Wired after construction since
// the engine's actions close over the agent.
func (a *Agent) SetFlow(flow *scenario.Engine) { a.flow = flow }

// State returns the current controller state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Run consumes recognizer events until ctx ends. It owns the single logical
// thread of control for the session.
func (a *Agent) Run(ctx context.Context) {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case utterance, ok := <-a.recognizer.Utterances():
			if !ok {
				return
			}
			a.handleUtterance(ctx, utterance)
		case code, ok := <-a.recognizer.Errors():
			if !ok {
				return
			}
			a.handleRecognitionError(code)
		}
	}
}

// Listen starts a capture turn. Outside Idle/Error it is a no-op: the state
// machine's mutual exclusion, not an error.
func (a *Agent) Listen() {
	a.mu.Lock()
	if a.state != StateIdle && a.state != StateError {
		a.mu.Unlock()
		log.Printf("agent: listen ignored in state %s", a.state)
		return
	}
	a.setStateLocked(StateListening)
	ctx := a.baseCtx
	a.mu.Unlock()

	if err := a.recognizer.Start(ctx); err != nil {
		log.Printf("agent: start capture: %v", err)
		a.failTurn(msgNoMicrophone)
	}
}

// RequestListen is the flow engine's capture hook: while the agent is still
// speaking a step, the request is queued until playback finishes.
func (a *Agent) RequestListen() {
	a.mu.Lock()
	if a.state == StateSpeaking || a.state == StateProcessing {
		a.pendingListen = true
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.Listen()
}

// Stop cancels in-flight speech, halts capture and forces Idle. Safe from
// any state.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel := a.speakCancel
	a.speakCancel = nil
	a.pendingListen = false
	a.setStateLocked(StateIdle)
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.recognizer.Stop()
	if a.speech != nil && a.speech.Sink != nil {
		a.speech.Sink.Reset()
	}
}

func (a *Agent) handleUtterance(ctx context.Context, utterance string) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		a.returnToIdle()
		return
	}
	a.mu.Lock()
	a.setStateLocked(StateProcessing)
	a.mu.Unlock()
	if a.events.OnUser != nil {
		a.events.OnUser(utterance)
	}
	log.Printf("agent: heard: %s", utterance)

	if a.flow != nil && a.flow.Active() {
		if err := a.flow.HandleResponse(utterance); err != nil {
			// scenario data defect: fatal to the scripted session
			log.Printf("agent: scripted flow: %v", err)
			a.failTurn(msgGenericFailure)
		}
		return
	}

	a.history.AppendUser(utterance)
	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	reply, err := a.generator.Generate(genCtx, a.systemPrompt(), a.history.ForRequest())
	cancel()
	if err != nil {
		log.Printf("agent: generate: %v", err)
		a.speakApology(ctx)
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		a.returnToIdle()
		return
	}
	a.history.AppendAssistant(reply)
	if a.events.OnAssistant != nil {
		a.events.OnAssistant(reply)
	}
	a.Say(reply)
}

// Say speaks a line through the speech output and returns to Idle when
// playback delivery finishes. A queued capture request fires afterwards.
func (a *Agent) Say(text string) {
	a.mu.Lock()
	ctx, cancel := context.WithTimeout(a.baseCtx, speakTimeout)
	a.speakCancel = cancel
	a.setStateLocked(StateSpeaking)
	a.mu.Unlock()
	defer cancel()

	if a.speech != nil {
		if err := a.speech.Speak(ctx, text); err != nil {
			// the turn still completes without audible output
			log.Printf("agent: speech output: %v", err)
		}
	}

	a.mu.Lock()
	a.speakCancel = nil
	if a.state == StateSpeaking {
		a.setStateLocked(StateIdle)
	}
	pending := a.pendingListen
	a.pendingListen = false
	a.mu.Unlock()
	if pending {
		a.Listen()
	}
}

// speakApology handles generation failure: fixed apology with the phone
// fallback, spoken if possible, never retried.
func (a *Agent) speakApology(ctx context.Context) {
	if a.events.OnAssistant != nil {
		a.events.OnAssistant(apologyMessage)
	}
	if a.speech != nil {
		speakCtx, cancel := context.WithTimeout(ctx, speakTimeout)
		if err := a.speech.Speak(speakCtx, apologyMessage); err != nil {
			log.Printf("agent: apology speech: %v", err)
		}
		cancel()
	}
	a.returnToIdle()
}

func (a *Agent) handleRecognitionError(code transcript.ErrorCode) {
	var msg string
	switch code {
	case transcript.ErrCodeNotAllowed:
		msg = msgNotAllowed
	case transcript.ErrCodeNoSpeech:
		msg = msgNoSpeech
	case transcript.ErrCodeAudioCapture:
		msg = msgNoMicrophone
	default:
		msg = msgGenericFailure
	}
	log.Printf("agent: recognition error: %s", code)
	a.failTurn(msg)
}

// failTurn surfaces a user-facing message, enters Error, and returns to Idle
// after the display delay. Recovery is user-initiated.
func (a *Agent) failTurn(msg string) {
	if a.events.OnNotice != nil {
		a.events.OnNotice(msg)
	}
	a.mu.Lock()
	a.setStateLocked(StateError)
	a.mu.Unlock()
	a.timer.AfterFunc(errorDisplayDelay, func() {
		a.mu.Lock()
		if a.state == StateError {
			a.setStateLocked(StateIdle)
		}
		a.mu.Unlock()
	})
}

func (a *Agent) returnToIdle() {
	a.mu.Lock()
	a.setStateLocked(StateIdle)
	a.mu.Unlock()
}

// setStateLocked updates the state and notifies the display listener. The
// listener runs under the agent lock and must not call back into the agent.
func (a *Agent) setStateLocked(s State) {
	if a.state == s {
		return
	}
	a.state = s
	if a.events.OnStatus != nil {
		a.events.OnStatus(s)
	}
}
