package session

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the lifecycle state a client sets on a session. Only active
// sessions take new messages.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

func (s Status) valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

var (
	ErrNotFound      = errors.New("session not found")
	ErrBusy          = errors.New("session is busy")
	ErrInvalidRole   = errors.New("invalid turn role")
	ErrInvalidStatus = errors.New("invalid session status")
	ErrNotActive     = errors.New("session is not active")
)

// Turn is one message in a session. Turns are never edited or removed.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	ID        string         `json:"id"`
	Status    Status         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

func (s *Session) expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Repo persists sessions and their turns.
type Repo interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
	UpdateSession(ctx context.Context, id string, status Status, metadata map[string]any) error
	TouchSession(ctx context.Context, id string, expiresAt time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)

	AppendTurn(ctx context.Context, t *Turn) error
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
}
