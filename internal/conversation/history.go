// Package conversation maintains the ordered message history for one
// agent session.
package conversation

import "sync"

// RetentionLimit bounds the number of messages kept for request context.
const RetentionLimit = 10

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one immutable entry of the conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History holds the ordered message sequence for a single session. The
// system message is never stored here; it is synthesized fresh per request.
type History struct {
	mu   sync.Mutex
	msgs []Message
}

func NewHistory() *History {
	return &History{}
}

// AppendUser appends a user message and re-applies the retention bound.
func (h *History) AppendUser(text string) {
	h.append(Message{Role: RoleUser, Content: text})
}

// AppendAssistant appends an assistant message and re-applies the retention bound.
func (h *History) AppendAssistant(text string) {
	h.append(Message{Role: RoleAssistant, Content: text})
}

func (h *History) append(m Message) {
	h.mu.Lock()
	h.msgs = append(h.msgs, m)
	if len(h.msgs) > RetentionLimit {
		// keep only the most recent entries, never reordering
		h.msgs = h.msgs[len(h.msgs)-RetentionLimit:]
	}
	h.mu.Unlock()
}

// ForRequest returns the history ordered oldest-to-newest as a copy the
// caller may extend (e.g. prepend the system prompt) without mutating past
// entries.
func (h *History) ForRequest() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len reports the current number of retained messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// Clear drops all retained messages. Used when a scripted scenario starts.
func (h *History) Clear() {
	h.mu.Lock()
	h.msgs = nil
	h.mu.Unlock()
}
