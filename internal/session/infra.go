package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the schema with goose.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

type repo struct {
	db *sql.DB
}

// NewRepo stores sessions in Postgres. Run Migrate first.
func NewRepo(db *sql.DB) Repo {
	return &repo{db: db}
}

func (r *repo) CreateSession(ctx context.Context, s *Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, status, metadata, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		s.ID,
		string(s.Status),
		metadataJSON(s.Metadata),
		s.CreatedAt,
		nullTime(s.ExpiresAt),
	)
	return err
}

func (r *repo) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, metadata, created_at, expires_at
		FROM sessions
		WHERE id = $1
	`, id)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repo) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, metadata, created_at, expires_at
		FROM sessions
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *repo) DeleteSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *repo) UpdateSession(ctx context.Context, id string, status Status, metadata map[string]any) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $2, metadata = $3 WHERE id = $1
	`, id, string(status), metadataJSON(metadata))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *repo) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET expires_at = $2 WHERE id = $1
	`, id, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *repo) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repo) AppendTurn(ctx context.Context, t *Turn) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		t.ID,
		t.SessionID,
		string(t.Role),
		t.Content,
		t.CreatedAt,
	)
	return err
}

func (r *repo) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM turns
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(
			&t.ID,
			&t.SessionID,
			&role,
			&t.Content,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.Role = Role(role)
		out = append(out, t)
	}

	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s      Session
		status string
		meta   []byte
		exp    sql.NullTime
	)
	if err := row.Scan(&s.ID, &status, &meta, &s.CreatedAt, &exp); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	if exp.Valid {
		t := exp.Time
		s.ExpiresAt = &t
	}
	return &s, nil
}

// metadataJSON encodes metadata for the jsonb column; empty maps are NULL.
// Sent as text since pq would encode []byte as bytea.
func metadataJSON(m map[string]any) sql.NullString {
	if len(m) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
