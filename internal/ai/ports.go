package ai

import "context"

// AI is the language-model service. It knows nothing about sessions or the
// ERP; it gets the new message plus prior turns and returns raw text.
type AI interface {
	Reply(
		ctx context.Context,
		message string,
		history []Message,
	) (string, error)
}

// Message is one prior turn as the model sees it.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
