package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opsmates/agentcore/internal/domain"
)

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, organization_id, user_id, thread_id, agent_key, status, created_at, last_activity_at`

// ResolveOrCreate returns the active session for the candidate's triple,
// expiring a stale one and inserting the candidate atomically. The partial
// unique index on active triples serializes concurrent resolves: the loser's
// insert conflicts away and both callers read the same winner. The thread's
// active-session pointer is superseded in the same transaction.
func (r *SessionRepository) ResolveOrCreate(ctx context.Context, candidate *domain.Session) (*domain.Session, bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin session resolve: %w", err)
	}
	defer tx.Rollback(ctx)

	cutoff := candidate.CreatedAt.Add(-domain.SessionTimeout)

	// Expiry must be resolved before a replacement exists, or memory from two
	// conversations could merge.
	expireQuery := `
		UPDATE sessions
		SET status = 'expired'
		WHERE user_id = $1 AND thread_id = $2 AND agent_key = $3
		  AND status = 'active' AND last_activity_at < $4
	`
	if _, err := tx.Exec(ctx, expireQuery,
		candidate.UserID, candidate.ThreadID, candidate.AgentKey, cutoff,
	); err != nil {
		return nil, false, fmt.Errorf("failed to expire stale session: %w", err)
	}

	insertQuery := `
		INSERT INTO sessions (id, organization_id, user_id, thread_id, agent_key, status, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $6)
		ON CONFLICT (user_id, thread_id, agent_key) WHERE status = 'active' DO NOTHING
	`
	tag, err := tx.Exec(ctx, insertQuery,
		candidate.ID,
		candidate.OrganizationID,
		candidate.UserID,
		candidate.ThreadID,
		candidate.AgentKey,
		candidate.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert session: %w", err)
	}
	created := tag.RowsAffected() > 0

	selectQuery := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND thread_id = $2 AND agent_key = $3 AND status = 'active'
	`
	winner, err := scanSession(tx.QueryRow(ctx, selectQuery,
		candidate.UserID, candidate.ThreadID, candidate.AgentKey,
	))
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve session: %w", err)
	}

	pointerQuery := `
		UPDATE chat_threads SET active_session_id = $2, updated_at = NOW()
		WHERE id = $1 AND (active_session_id IS DISTINCT FROM $2)
	`
	if _, err := tx.Exec(ctx, pointerQuery, candidate.ThreadID, winner.ID); err != nil {
		return nil, false, fmt.Errorf("failed to supersede active session pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit session resolve: %w", err)
	}

	return winner, created, nil
}

// GetByID retrieves a session
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// Touch resets the inactivity window. Returns false if the session is no
// longer active.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE sessions SET last_activity_at = $2
		WHERE id = $1 AND status = 'active' AND last_activity_at < $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// AppendTranscript appends one message snapshot. Ordering is the store's
// natural insertion order.
func (r *SessionRepository) AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error {
	query := `
		INSERT INTO session_transcripts (session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.SessionID,
		entry.Role,
		entry.Content,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}

	return nil
}

// Transcript retrieves the session's transcript in insertion order
func (r *SessionRepository) Transcript(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptEntry, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM session_transcripts
		WHERE session_id = $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript: %w", err)
	}
	defer rows.Close()

	var entries []domain.TranscriptEntry
	for rows.Next() {
		var e domain.TranscriptEntry
		var roleStr string
		if err := rows.Scan(&e.ID, &e.SessionID, &roleStr, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript entry: %w", err)
		}
		e.Role = domain.MessageRole(roleStr)
		entries = append(entries, e)
	}

	return entries, nil
}

// ExpireStale marks active sessions idle since cutoff as expired. The
// durable transcript is retained; only the session's active status ends.
func (r *SessionRepository) ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		UPDATE sessions SET status = 'expired'
		WHERE status = 'active' AND last_activity_at < $1
		RETURNING id
	`

	rows, err := r.db.Pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired session: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var statusStr string

	if err := row.Scan(
		&s.ID,
		&s.OrganizationID,
		&s.UserID,
		&s.ThreadID,
		&s.AgentKey,
		&statusStr,
		&s.CreatedAt,
		&s.LastActivityAt,
	); err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(statusStr)

	return &s, nil
}
