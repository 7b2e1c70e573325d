package coach

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=4000"`
}

// CompletionRequest is a single chat completion.
type CompletionRequest struct {
	System      string
	History     []Message
	Prompt      string
	MaxTokens   int
	Temperature float32
	// JSON asks the model for a single JSON object.
	JSON bool
}

// Provider is the AI backend. Implementations wrap transport failures in
// ErrProviderUnavailable.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Speak returns WAV encoded audio of text.
	Speak(ctx context.Context, text string) ([]byte, error)
}
