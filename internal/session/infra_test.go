package session

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Postgres when TEST_DATABASE_URL is set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestRepo_Postgres(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	exp := now.Add(time.Minute)
	s := &Session{ID: uuid.NewString(), Status: StatusActive, CreatedAt: now, ExpiresAt: &exp}
	require.NoError(t, r.CreateSession(ctx, s))
	t.Cleanup(func() { _ = r.DeleteSession(ctx, s.ID) })

	for i, content := range []string{"first", "second", "third"} {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		require.NoError(t, r.AppendTurn(ctx, &Turn{
			ID: uuid.NewString(), SessionID: s.ID, Role: role, Content: content, CreatedAt: now,
		}))
	}

	turns, err := r.Turns(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "third", turns[2].Content)

	got, err := r.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(exp))
	assert.Equal(t, StatusActive, got.Status)
	assert.Nil(t, got.Metadata)

	require.NoError(t, r.UpdateSession(ctx, s.ID, StatusPaused, map[string]any{"customer": "Acme"}))
	got, err = r.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, got.Status)
	assert.Equal(t, map[string]any{"customer": "Acme"}, got.Metadata)
	assert.ErrorIs(t, r.UpdateSession(ctx, uuid.NewString(), StatusActive, nil), ErrNotFound)

	ids, err := r.DeleteExpired(ctx, exp.Add(time.Second))
	require.NoError(t, err)
	assert.Contains(t, ids, s.ID)

	_, err = r.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
