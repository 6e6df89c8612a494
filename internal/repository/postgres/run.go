package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsmates/agentcore/internal/domain"
)

// RunRepository implements domain.RunRepository
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, organization_id, user_id, agent_key, task_id, status, input, output, error, tokens_used, duration_ms, cost_usd, started_at, completed_at`

// Create inserts a new run in running state
func (r *RunRepository) Create(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO runs (id, organization_id, user_id, agent_key, task_id, status, input, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		run.ID,
		run.OrganizationID,
		run.UserID,
		run.AgentKey,
		run.TaskID,
		run.Status,
		run.Input,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run scoped to an organization
func (r *RunRepository) GetByID(ctx context.Context, orgID uuid.UUID, id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE organization_id = $1 AND id = $2`

	run, err := scanRun(r.db.Pool.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListByOrganization retrieves recent runs for an organization
func (r *RunRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE organization_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, nil
}

// Complete writes the completion fields once and records the usage event in
// the same transaction. The conditional update makes completion write-once;
// the usage insert cannot be skipped or double-applied because both commit
// or neither does.
func (r *RunRepository) Complete(ctx context.Context, id string, completion *domain.RunCompletion, usage *domain.UsageEvent) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin run completion: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := `
		UPDATE runs
		SET status = $2, output = $3, error = $4, tokens_used = $5, duration_ms = $6, cost_usd = $7, completed_at = NOW()
		WHERE id = $1 AND status = 'running'
	`

	tag, err := tx.Exec(ctx, updateQuery,
		id,
		completion.Status,
		completion.Output,
		completion.Error,
		completion.TokensUsed,
		completion.DurationMs,
		completion.CostUSD,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Already completed; idempotent no-op.
		return false, nil
	}

	if usage != nil {
		usageQuery := `
			INSERT INTO usage_events (id, organization_id, run_id, event_type, quantity, cost_usd, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.Exec(ctx, usageQuery,
			usage.ID,
			usage.OrganizationID,
			usage.RunID,
			usage.EventType,
			usage.Quantity,
			usage.CostUSD,
			usage.CreatedAt,
		); err != nil {
			return false, fmt.Errorf("failed to record usage event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit run completion: %w", err)
	}

	return true, nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run

	if err := row.Scan(
		&run.ID,
		&run.OrganizationID,
		&run.UserID,
		&run.AgentKey,
		&run.TaskID,
		&run.Status,
		&run.Input,
		&run.Output,
		&run.Error,
		&run.TokensUsed,
		&run.DurationMs,
		&run.CostUSD,
		&run.StartedAt,
		&run.CompletedAt,
	); err != nil {
		return nil, err
	}

	return &run, nil
}
