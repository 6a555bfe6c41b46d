package llm

import (
	"context"

	"github.com/roy2392/natalie-voice-agent-demo/internal/conversation"
)

// Generator produces one assistant reply for a system prompt plus the
// ordered message history of the current session.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []conversation.Message) (string, error)
}
