package session

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

type memoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
	turns    map[string][]Turn
}

// NewMemoryRepo keeps everything in process memory.
func NewMemoryRepo() Repo {
	return &memoryRepo{
		sessions: map[string]Session{},
		turns:    map[string][]Turn{},
	}
}

func (r *memoryRepo) CreateSession(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	r.sessions[s.ID] = c
	return nil
}

func (r *memoryRepo) GetSession(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Metadata = maps.Clone(s.Metadata)
	return &s, nil
}

func (r *memoryRepo) ListSessions(_ context.Context) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.Metadata = maps.Clone(s.Metadata)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	delete(r.turns, id)
	return nil
}

func (r *memoryRepo) UpdateSession(_ context.Context, id string, status Status, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.Metadata = maps.Clone(metadata)
	r.sessions[id] = s
	return nil
}

func (r *memoryRepo) TouchSession(_ context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.ExpiresAt = &expiresAt
	r.sessions[id] = s
	return nil
}

func (r *memoryRepo) DeleteExpired(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.expired(now) {
			ids = append(ids, id)
			delete(r.sessions, id)
			delete(r.turns, id)
		}
	}
	return ids, nil
}

func (r *memoryRepo) AppendTurn(_ context.Context, t *Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[t.SessionID]; !ok {
		return ErrNotFound
	}
	r.turns[t.SessionID] = append(r.turns[t.SessionID], *t)
	return nil
}

func (r *memoryRepo) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	src := r.turns[sessionID]
	out := make([]Turn, len(src))
	copy(out, src)
	return out, nil
}
