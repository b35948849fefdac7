package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/actions"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/ai"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

var ErrOperationNotFound = errors.New("pending operation not found")

// live is process-local state for one session.
type live struct {
	busy    atomic.Bool
	mu      sync.Mutex
	pending map[string]*actions.Candidate
}

// Manager owns sessions: their transcript, expiry, busy flag and held
// operations.
type Manager struct {
	repo Repo
	ttl  time.Duration
	now  func() time.Time

	mu   sync.Mutex
	live map[string]*live
}

// NewManager returns a manager. ttl <= 0 disables expiry.
func NewManager(repo Repo, ttl time.Duration) *Manager {
	return &Manager{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
		live: map[string]*live{},
	}
}

func (m *Manager) Create(ctx context.Context) (*Session, error) {
	now := m.now().UTC()
	s := &Session{ID: uuid.NewString(), Status: StatusActive, CreatedAt: now}
	if m.ttl > 0 {
		exp := now.Add(m.ttl)
		s.ExpiresAt = &exp
	}
	if err := m.repo.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	observability.LoggerFromContext(ctx).Info("session created", zap.String("session_id", s.ID))
	return s, nil
}

// Get returns a live session. Expired sessions are removed and reported as
// ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	s, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.expired(m.now()) {
		_ = m.Delete(ctx, id)
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) List(ctx context.Context) ([]Session, error) {
	all, err := m.repo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := all[:0]
	for _, s := range all {
		if !s.expired(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Update sets a session's status and metadata. A nil status or nil metadata
// keeps the current value.
func (m *Manager) Update(ctx context.Context, id string, status *Status, metadata map[string]any) (*Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if status != nil {
		if !status.valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *status)
		}
		s.Status = *status
	}
	if metadata != nil {
		s.Metadata = metadata
	}
	if err := m.repo.UpdateSession(ctx, id, s.Status, s.Metadata); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return s, nil
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.repo.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
	return nil
}

// Append records a turn. User content is escaped before storage; assistant
// content is stored as given.
func (m *Manager) Append(ctx context.Context, sessionID string, role Role, content string) (*Turn, error) {
	switch role {
	case RoleUser:
		content = EscapeUserContent(content)
	case RoleAssistant:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	if _, err := m.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	t := &Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	if err := m.repo.AppendTurn(ctx, t); err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}
	if m.ttl > 0 {
		if err := m.repo.TouchSession(ctx, sessionID, now.Add(m.ttl)); err != nil {
			observability.LoggerFromContext(ctx).Warn("extend session expiry failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return t, nil
}

// History returns the turns in append order.
func (m *Manager) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if _, err := m.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return m.repo.Turns(ctx, sessionID)
}

// ModelHistory is History mapped onto model-service roles.
func (m *Manager) ModelHistory(ctx context.Context, sessionID string) ([]ai.Message, error) {
	turns, err := m.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		role := ai.RoleUser
		if t.Role == RoleAssistant {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Message{Role: role, Content: t.Content})
	}
	return out, nil
}

// Acquire sets the busy flag. It fails immediately with ErrBusy when a call
// is already in flight; it never waits.
func (m *Manager) Acquire(sessionID string) (release func(), err error) {
	l := m.state(sessionID)
	if !l.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() { once.Do(func() { l.busy.Store(false) }) }, nil
}

// Busy reports the current flag.
func (m *Manager) Busy(sessionID string) bool {
	return m.state(sessionID).busy.Load()
}

// Hold parks an operation awaiting user confirmation.
func (m *Manager) Hold(sessionID string, c *actions.Candidate) {
	l := m.state(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		l.pending = map[string]*actions.Candidate{}
	}
	l.pending[c.ID] = c
}

// Take removes a held operation and returns it.
func (m *Manager) Take(sessionID, opID string) (*actions.Candidate, error) {
	l := m.state(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.pending[opID]
	if !ok {
		return nil, ErrOperationNotFound
	}
	delete(l.pending, opID)
	return c, nil
}

// Pending lists held operations ordered by id.
func (m *Manager) Pending(sessionID string) []*actions.Candidate {
	l := m.state(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*actions.Candidate, 0, len(l.pending))
	for _, c := range l.pending {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sweep deletes expired sessions and returns how many went.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	ids, err := m.repo.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	m.mu.Lock()
	for _, id := range ids {
		delete(m.live, id)
	}
	m.mu.Unlock()
	if len(ids) > 0 {
		observability.LoggerFromContext(ctx).Info("expired sessions removed", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				observability.LoggerFromContext(ctx).Warn("session sweep failed", zap.Error(err))
			}
		}
	}
}

func (m *Manager) state(sessionID string) *live {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.live[sessionID]
	if !ok {
		l = &live{}
		m.live[sessionID] = l
	}
	return l
}
