package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsmates/agentcore/internal/domain"
)

// BillingRepository implements domain.BillingRepository
type BillingRepository struct {
	db *DB
}

// NewBillingRepository creates a new billing repository
func NewBillingRepository(db *DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// GetPlan retrieves the plan for an organization
func (r *BillingRepository) GetPlan(ctx context.Context, orgID uuid.UUID) (*domain.Plan, error) {
	query := `
		SELECT organization_id, name, status, monthly_actions, concurrent_jobs, active_jobs_per_user, updated_at
		FROM plans
		WHERE organization_id = $1
	`

	var p domain.Plan
	var statusStr string
	err := r.db.Pool.QueryRow(ctx, query, orgID).Scan(
		&p.OrganizationID,
		&p.Name,
		&statusStr,
		&p.MonthlyActions,
		&p.ConcurrentJobs,
		&p.ActiveJobsPerUser,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	p.Status = domain.PlanStatus(statusStr)

	return &p, nil
}

// UpsertPlan creates or replaces an organization's plan
func (r *BillingRepository) UpsertPlan(ctx context.Context, plan *domain.Plan) error {
	query := `
		INSERT INTO plans (organization_id, name, status, monthly_actions, concurrent_jobs, active_jobs_per_user, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id) DO UPDATE
		SET name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    monthly_actions = EXCLUDED.monthly_actions,
		    concurrent_jobs = EXCLUDED.concurrent_jobs,
		    active_jobs_per_user = EXCLUDED.active_jobs_per_user,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool.Exec(ctx, query,
		plan.OrganizationID,
		plan.Name,
		plan.Status,
		plan.MonthlyActions,
		plan.ConcurrentJobs,
		plan.ActiveJobsPerUser,
		plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}

	return nil
}

// MonthlyActionCount counts agent actions for the calendar month containing now
func (r *BillingRepository) MonthlyActionCount(ctx context.Context, orgID uuid.UUID, now time.Time) (int, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	query := `
		SELECT COUNT(*) FROM usage_events
		WHERE organization_id = $1 AND event_type = $2 AND created_at >= $3
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, orgID, domain.UsageEventAgentAction, monthStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count monthly actions: %w", err)
	}

	return count, nil
}

// RecordEvent inserts a billing event keyed by external event ID. Duplicate
// deliveries conflict away and report false so the caller skips re-applying.
func (r *BillingRepository) RecordEvent(ctx context.Context, event *domain.BillingEvent) (bool, error) {
	query := `
		INSERT INTO billing_events (id, external_event_id, event_type, organization_id, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_event_id) DO NOTHING
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		event.ExternalEventID,
		event.EventType,
		event.OrganizationID,
		event.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record billing event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListUsage retrieves usage events for an organization since a point in time
func (r *BillingRepository) ListUsage(ctx context.Context, orgID uuid.UUID, since time.Time) ([]domain.UsageEvent, error) {
	query := `
		SELECT id, organization_id, run_id, event_type, quantity, cost_usd, created_at
		FROM usage_events
		WHERE organization_id = $1 AND created_at >= $2
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}
	defer rows.Close()

	var events []domain.UsageEvent
	for rows.Next() {
		var e domain.UsageEvent
		if err := rows.Scan(
			&e.ID,
			&e.OrganizationID,
			&e.RunID,
			&e.EventType,
			&e.Quantity,
			&e.CostUSD,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		events = append(events, e)
	}

	return events, nil
}
