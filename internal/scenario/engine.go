package scenario

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnknownScenario means the requested id is not in the library.
	ErrUnknownScenario = errors.New("scenario: unknown scenario")
	// ErrStepNotFound means the current step number has no flow entry. This
	// is a scenario-authoring defect and ends the scripted session.
	ErrStepNotFound = errors.New("scenario: step not found")
	// ErrNoScenario means no scripted session is active.
	ErrNoScenario = errors.New("scenario: no active scenario")
)

const (
	// listenDelay lets speech output begin before capture restarts.
	listenDelay = 2 * time.Second
	// chainDelay paces consecutive statement-only steps.
	chainDelay = 3 * time.Second
	// endedDelay keeps the closing line on screen before the session resets.
	endedDelay = 3 * time.Second
)

// Timer schedules the engine's delayed transitions. Tests swap in an
// immediate implementation.
type Timer interface {
	AfterFunc(d time.Duration, fn func())
}

type realTimer struct{}

func (realTimer) AfterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Deliverer receives the finalized collected-data snapshot of a scripted
// call. Delivery must not block the session's transition back to idle.
type Deliverer interface {
	Deliver(data map[string]string)
}

// Actions are the engine's outward effects, injected by the controller.
type Actions struct {
	// Say speaks and displays a resolved step line.
	Say func(text string)
	// Listen requests a new capture turn.
	Listen func()
	// Ended signals that a scripted call finished, with its collected data.
	Ended func(collected map[string]string)
	// ResetHistory clears the free-form conversation history.
	ResetHistory func()
}

// Engine drives scripted call flows: step progression, branching on
// validated answers, data collection, and the hand-off back to free-form
// mode when a flow ends.
type Engine struct {
	library   *Library
	actions   Actions
	deliverer Deliverer
	timer     Timer

	mu        sync.Mutex
	active    bool
	id        string
	steps     map[int]*Step
	current   int
	collected map[string]string
}

func NewEngine(library *Library, actions Actions, deliverer Deliverer, timer Timer) *Engine {
	if timer == nil {
		timer = realTimer{}
	}
	return &Engine{library: library, actions: actions, deliverer: deliverer, timer: timer}
}

// Active reports whether a scripted session is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// ActiveID returns the running scenario id, empty when none.
func (e *Engine) ActiveID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Collected returns a copy of the data gathered so far.
func (e *Engine) Collected() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyData(e.collected)
}

// SelectScenario starts a scripted session: collected data is re-seeded
// from the template, the step cursor returns to 1, and prior free-form
// history is cleared.
func (e *Engine) SelectScenario(id string) error {
	e.mu.Lock()
	sc, ok := e.library.Scenarios[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	// per-session copies: placeholder substitution mutates step text
	steps := make(map[int]*Step, len(sc.Flow))
	for i := range sc.Flow {
		step := sc.Flow[i]
		steps[step.Step] = &step
	}
	collected := copyData(sc.DataCollection)
	collected["timestamp"] = time.Now().Format(time.RFC3339)

	e.active = true
	e.id = id
	e.steps = steps
	e.current = 1
	e.collected = collected
	reset := e.actions.ResetHistory
	e.mu.Unlock()

	log.Printf("scenario: selected %q", id)
	if reset != nil {
		reset()
	}
	return nil
}

// Reset abandons any scripted session without firing end-of-call effects.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.clearLocked()
	e.mu.Unlock()
}

func (e *Engine) clearLocked() {
	e.active = false
	e.id = ""
	e.steps = nil
	e.current = 0
	e.collected = nil
}

// ExecuteStep speaks the current step and schedules what follows it:
// listening for a user turn, chaining into the next statement, or closing
// the call.
func (e *Engine) ExecuteStep() error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return ErrNoScenario
	}
	step, ok := e.steps[e.current]
	if !ok {
		err := fmt.Errorf("%w: step %d of %q", ErrStepNotFound, e.current, e.id)
		e.clearLocked()
		e.mu.Unlock()
		return err
	}

	e.resolvePlaceholdersLocked(step)
	text := step.AgentSays
	endCall := step.EndCall
	sendWebhook := step.SendWebhook
	waits := step.Waits()

	var snapshot map[string]string
	if endCall {
		snapshot = copyData(e.collected)
		e.clearLocked()
	} else if !waits {
		e.current++
	}
	e.mu.Unlock()

	if e.actions.Say != nil {
		e.actions.Say(text)
	}

	switch {
	case endCall:
		if sendWebhook && e.deliverer != nil {
			go e.deliverer.Deliver(snapshot)
		}
		e.timer.AfterFunc(endedDelay, func() {
			if e.actions.Ended != nil {
				e.actions.Ended(snapshot)
			}
		})
	case !waits:
		e.timer.AfterFunc(chainDelay, func() {
			if err := e.ExecuteStep(); err != nil {
				log.Printf("scenario: chained step: %v", err)
			}
		})
	default:
		e.timer.AfterFunc(listenDelay, func() {
			if e.actions.Listen != nil {
				e.actions.Listen()
			}
		})
	}
	return nil
}

// HandleResponse records the user's answer for the current question step,
// resolves branching, and executes the successor step.
func (e *Engine) HandleResponse(utterance string) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return ErrNoScenario
	}
	step, ok := e.steps[e.current]
	if !ok {
		err := fmt.Errorf("%w: step %d of %q", ErrStepNotFound, e.current, e.id)
		e.clearLocked()
		e.mu.Unlock()
		return err
	}

	if step.Type == "question" {
		e.collected[captureKey(step)] = utterance
	}

	next := 0
	if step.Validation == "yes_no" {
		yes := matchesAny(utterance, yesWords)
		no := matchesAny(utterance, noWords)
		// both or neither keeps the default successor
		if yes && !no && step.NextStepIfYes > 0 {
			next = step.NextStepIfYes
		}
		if no && !yes && step.NextStepIfNo > 0 {
			next = step.NextStepIfNo
		}
	}
	if next == 0 {
		if step.NextStep > 0 {
			next = step.NextStep
		} else {
			next = step.Step + 1
		}
	}
	e.current = next
	e.mu.Unlock()

	return e.ExecuteStep()
}

// resolvePlaceholdersLocked substitutes demo data into the step text once;
// the literal template is gone afterwards.
func (e *Engine) resolvePlaceholdersLocked(step *Step) {
	if !strings.Contains(step.AgentSays, "[ADDRESS]") {
		return
	}
	if len(e.library.DemoAddresses) == 0 {
		return
	}
	addr := e.library.DemoAddresses[rand.Intn(len(e.library.DemoAddresses))].Address
	step.AgentSays = strings.ReplaceAll(step.AgentSays, "[ADDRESS]", addr)
	if e.collected != nil {
		e.collected["address"] = addr
	}
}

func captureKey(step *Step) string {
	if step.QuestionID != "" {
		return step.QuestionID
	}
	return fmt.Sprintf("step_%d", step.Step)
}

var yesWords = []string{"כן", "נכון", "בסדר", "yes", "correct", "satisfied"}

var noWords = []string{"לא", "שלילי", "no", "not satisfied", "wrong"}

func matchesAny(utterance string, words []string) bool {
	u := strings.ToLower(utterance)
	for _, w := range words {
		if strings.Contains(u, w) {
			return true
		}
	}
	return false
}

func copyData(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
