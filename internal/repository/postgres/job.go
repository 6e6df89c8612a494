package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsmates/agentcore/internal/domain"
)

// JobRepository implements domain.JobRepository. All cross-worker
// coordination is expressed as conditional writes against the jobs table;
// there is no in-memory scheduler state.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, organization_id, user_id, agent_key, status, payload, result, error, progress, run_id, created_at, started_at, finished_at, heartbeat_at`

// Create inserts a new pending job. The membership guard runs inside the
// INSERT itself so tenant scope cannot change between check and write.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO jobs (id, organization_id, user_id, agent_key, status, payload, progress, created_at)
		SELECT $1, $2, $3, $4, $5, $6, 0, $7
		WHERE EXISTS (
			SELECT 1 FROM memberships m
			INNER JOIN organizations o ON o.id = m.organization_id
			WHERE m.organization_id = $2 AND m.user_id = $3 AND m.active AND o.active
		)
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		job.ID,
		job.OrganizationID,
		job.UserID,
		job.AgentKey,
		job.Status,
		payload,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDenied
	}

	return nil
}

// CreateInternal inserts a pending job for the service principal. Scheduled
// work has no acting user, so only the organization must be active.
func (r *JobRepository) CreateInternal(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO jobs (id, organization_id, user_id, agent_key, status, payload, progress, created_at)
		SELECT $1, $2, $3, $4, $5, $6, 0, $7
		WHERE EXISTS (SELECT 1 FROM organizations WHERE id = $2 AND active)
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		job.ID,
		job.OrganizationID,
		job.UserID,
		job.AgentKey,
		job.Status,
		payload,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDenied
	}

	return nil
}

// GetByID retrieves a job without tenant scoping. Internal principal only.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetScoped retrieves a job within an organization scope. A job in another
// organization is indistinguishable from a missing one.
func (r *JobRepository) GetScoped(ctx context.Context, orgID, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE organization_id = $1 AND id = $2`

	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListByOrganization retrieves recent jobs for an organization
func (r *JobRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, nil
}

// CountActive counts pending and running jobs for an organization
func (r *JobRepository) CountActive(ctx context.Context, orgID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM jobs WHERE organization_id = $1 AND status IN ('pending', 'running')`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, orgID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}

	return count, nil
}

// CountActiveByUser counts pending and running jobs for one user
func (r *JobRepository) CountActiveByUser(ctx context.Context, orgID, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM jobs
		WHERE organization_id = $1 AND user_id = $2 AND status IN ('pending', 'running')
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, orgID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}

	return count, nil
}

// Claim transitions pending -> running via compare-and-set on status.
// Exactly one concurrent claimant observes an affected row.
func (r *JobRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE jobs
		SET status = 'running', started_at = NOW(), heartbeat_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ClaimNext claims the oldest pending job. FOR UPDATE SKIP LOCKED lets
// concurrent workers pull disjoint rows without lock contention.
func (r *JobRepository) ClaimNext(ctx context.Context) (*domain.Job, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	selectQuery := `
		SELECT id FROM jobs
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`

	var id uuid.UUID
	if err := tx.QueryRow(ctx, selectQuery).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // queue empty
		}
		return nil, fmt.Errorf("failed to select claimable job: %w", err)
	}

	updateQuery := `
		UPDATE jobs
		SET status = 'running', started_at = NOW(), heartbeat_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobColumns

	job, err := scanJob(tx.QueryRow(ctx, updateQuery, id))
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	return job, nil
}

// SetProgress applies a progress report. The conditional update enforces
// both the running-only rule and monotonicity; racing regressions simply
// match no row.
func (r *JobRepository) SetProgress(ctx context.Context, id uuid.UUID, progress int) (bool, error) {
	query := `
		UPDATE jobs
		SET progress = $2, heartbeat_at = NOW()
		WHERE id = $1 AND status = 'running' AND progress <= $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, progress)
	if err != nil {
		return false, fmt.Errorf("failed to set progress: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Heartbeat refreshes the staleness clock for a running job
func (r *JobRepository) Heartbeat(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE jobs SET heartbeat_at = NOW() WHERE id = $1 AND status = 'running'`

	if _, err := r.db.Pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to heartbeat job: %w", err)
	}

	return nil
}

// Finish transitions running -> terminal. Callers resolve idempotent
// re-completion by reading the stored outcome when no row matched.
func (r *JobRepository) Finish(ctx context.Context, id uuid.UUID, status domain.JobStatus, result map[string]any, errMsg string) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("failed to marshal result: %w", err)
	}
	if result == nil {
		resultJSON = nil
	}

	query := `
		UPDATE jobs
		SET status = $2, result = $3, error = $4, progress = CASE WHEN $2 = 'succeeded' THEN 100 ELSE progress END, finished_at = NOW()
		WHERE id = $1 AND status = 'running'
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, status, resultJSON, errMsg)
	if err != nil {
		return false, fmt.Errorf("failed to finish job: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Cancel transitions pending or running -> cancelled. Cancellation is
// cooperative: a running job's worker discovers the terminal status on its
// next conditional write, there is no hard preemption.
func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE jobs
		SET status = 'cancelled', finished_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')
	`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ReapStale force-fails running jobs whose heartbeat predates cutoff and
// returns them so callers can notify owners. Recovery, not retry: the task
// owner decides whether to re-enqueue.
func (r *JobRepository) ReapStale(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'failed', error = 'job stale: no heartbeat past threshold', finished_at = NOW()
		WHERE status = 'running' AND heartbeat_at < $1
		RETURNING ` + jobColumns

	rows, err := r.db.Pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to reap stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reaped job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, nil
}

// SetRunID links the job to its audit run record
func (r *JobRepository) SetRunID(ctx context.Context, id uuid.UUID, runID string) error {
	query := `UPDATE jobs SET run_id = $2 WHERE id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, id, runID); err != nil {
		return fmt.Errorf("failed to set run id: %w", err)
	}

	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var payloadJSON, resultJSON []byte

	if err := row.Scan(
		&job.ID,
		&job.OrganizationID,
		&job.UserID,
		&job.AgentKey,
		&job.Status,
		&payloadJSON,
		&resultJSON,
		&job.Error,
		&job.Progress,
		&job.RunID,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.HeartbeatAt,
	); err != nil {
		return nil, err
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	return &job, nil
}
