package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsmates/agentcore/internal/domain"
)

// ThreadRepository implements domain.ThreadRepository
type ThreadRepository struct {
	db *DB
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// Create inserts a new chat thread
func (r *ThreadRepository) Create(ctx context.Context, thread *domain.ChatThread) error {
	query := `
		INSERT INTO chat_threads (id, organization_id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		thread.ID,
		thread.OrganizationID,
		thread.UserID,
		thread.Title,
		thread.CreatedAt,
		thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}

	return nil
}

// GetByID retrieves a thread scoped to an organization
func (r *ThreadRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.ChatThread, error) {
	query := `
		SELECT id, organization_id, user_id, title, active_session_id, created_at, updated_at
		FROM chat_threads
		WHERE organization_id = $1 AND id = $2
	`

	var t domain.ChatThread
	err := r.db.Pool.QueryRow(ctx, query, orgID, id).Scan(
		&t.ID,
		&t.OrganizationID,
		&t.UserID,
		&t.Title,
		&t.ActiveSessionID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return &t, nil
}

// ListByUser retrieves a user's threads in an organization
func (r *ThreadRepository) ListByUser(ctx context.Context, orgID, userID uuid.UUID, limit int) ([]domain.ChatThread, error) {
	query := `
		SELECT id, organization_id, user_id, title, active_session_id, created_at, updated_at
		FROM chat_threads
		WHERE organization_id = $1 AND user_id = $2
		ORDER BY updated_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, orgID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []domain.ChatThread
	for rows.Next() {
		var t domain.ChatThread
		if err := rows.Scan(
			&t.ID,
			&t.OrganizationID,
			&t.UserID,
			&t.Title,
			&t.ActiveSessionID,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, t)
	}

	return threads, nil
}

// Delete removes a thread. Messages and sessions cascade at the schema level.
func (r *ThreadRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	query := `DELETE FROM chat_threads WHERE organization_id = $1 AND id = $2`

	tag, err := r.db.Pool.Exec(ctx, query, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}
