package assistant

import (
	"context"
	"errors"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/actions"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/entityref"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/session"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/signal"
)

var (
	ErrInputRejected = errors.New("message is empty")
	ErrSessionBusy   = errors.New("a message is already being processed for this session")
)

// ModelServiceError wraps any failure of the model call. The user turn is
// kept; no assistant turn is added.
type ModelServiceError struct {
	Err error
}

func (e *ModelServiceError) Error() string { return "model service: " + e.Err.Error() }
func (e *ModelServiceError) Unwrap() error { return e.Err }

// Result is one completed exchange.
type Result struct {
	UserTurn   *session.Turn         `json:"user_turn"`
	Turn       *session.Turn         `json:"turn,omitempty"`
	References []entityref.Reference `json:"references"`
	Operations []*actions.Candidate  `json:"operations"`
	Notices    []signal.Notice       `json:"notices"`
	Refresh    []string              `json:"refresh"`
}

// Confirmation is the outcome of running a held operation.
type Confirmation struct {
	Operation *actions.Candidate `json:"operation"`
	Notice    signal.Notice      `json:"notice"`
	Refresh   []string           `json:"refresh"`
}

// Service runs one conversation turn at a time per session.
type Service interface {
	HandleUserMessage(ctx context.Context, sessionID, text string) (*Result, error)
	ConfirmOperation(ctx context.Context, sessionID, opID string) (*Confirmation, error)
}
