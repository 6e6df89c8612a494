package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsmates/agentcore/internal/authz"
	"github.com/opsmates/agentcore/internal/config"
	"github.com/opsmates/agentcore/internal/domain"
)

// BillingService enforces plan caps and ingests subscription provider events
type BillingService struct {
	billingRepo domain.BillingRepository
	jobRepo     domain.JobRepository
	cfg         config.BillingConfig
}

// NewBillingService creates a new billing service
func NewBillingService(
	billingRepo domain.BillingRepository,
	jobRepo domain.JobRepository,
	cfg config.BillingConfig,
) *BillingService {
	return &BillingService{
		billingRepo: billingRepo,
		jobRepo:     jobRepo,
		cfg:         cfg,
	}
}

// PlanFor returns the organization's plan, falling back to configured
// defaults when none is stored
func (s *BillingService) PlanFor(ctx context.Context, orgID uuid.UUID) (*domain.Plan, error) {
	plan, err := s.billingRepo.GetPlan(ctx, orgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.Plan{
				OrganizationID:    orgID,
				Name:              "default",
				Status:            domain.PlanStatusActive,
				MonthlyActions:    s.cfg.DefaultMonthlyActions,
				ConcurrentJobs:    s.cfg.DefaultConcurrentJobs,
				ActiveJobsPerUser: s.cfg.DefaultActiveJobsPerUser,
			}, nil
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	return plan, nil
}

// CheckEnqueueAllowed verifies every plan cap that gates new work. Checks run
// before the enqueue write; the caps are advisory guards, not serialized
// reservations, so a burst can land slightly over the line.
func (s *BillingService) CheckEnqueueAllowed(ctx context.Context, orgID, userID uuid.UUID) error {
	if !s.cfg.Enabled {
		return nil
	}

	plan, err := s.PlanFor(ctx, orgID)
	if err != nil {
		return err
	}

	if plan.Status != domain.PlanStatusActive {
		return &domain.LimitError{Resource: "plan_status", Limit: 0, Current: 0}
	}

	if plan.ConcurrentJobs > 0 {
		active, err := s.jobRepo.CountActive(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to count active jobs: %w", err)
		}
		if active >= plan.ConcurrentJobs {
			return &domain.LimitError{Resource: "concurrent_jobs", Limit: plan.ConcurrentJobs, Current: active}
		}
	}

	// Scheduled work carries no acting user; the per-user cap does not apply.
	if plan.ActiveJobsPerUser > 0 && userID != uuid.Nil {
		active, err := s.jobRepo.CountActiveByUser(ctx, orgID, userID)
		if err != nil {
			return fmt.Errorf("failed to count user jobs: %w", err)
		}
		if active >= plan.ActiveJobsPerUser {
			return &domain.LimitError{Resource: "active_jobs_per_user", Limit: plan.ActiveJobsPerUser, Current: active}
		}
	}

	if plan.MonthlyActions > 0 {
		used, err := s.billingRepo.MonthlyActionCount(ctx, orgID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to count monthly actions: %w", err)
		}
		if used >= plan.MonthlyActions {
			return &domain.LimitError{Resource: "monthly_actions", Limit: plan.MonthlyActions, Current: used}
		}
	}

	return nil
}

// WebhookEvent is a normalized subscription provider event
type WebhookEvent struct {
	ExternalEventID string            `json:"id" validate:"required"`
	EventType       string            `json:"type" validate:"required"`
	OrganizationID  uuid.UUID         `json:"organization_id" validate:"required"`
	PlanName        string            `json:"plan_name,omitempty"`
	PlanStatus      domain.PlanStatus `json:"plan_status,omitempty"`
	MonthlyActions  *int              `json:"monthly_actions,omitempty"`
	ConcurrentJobs  *int              `json:"concurrent_jobs,omitempty"`
	JobsPerUser     *int              `json:"active_jobs_per_user,omitempty"`
}

// IngestWebhook applies a provider event at most once. Duplicate deliveries
// are detected on the external event ID and acknowledged without re-applying.
// Returns false for duplicates.
func (s *BillingService) IngestWebhook(ctx context.Context, event WebhookEvent) (bool, error) {
	record := &domain.BillingEvent{
		ID:              uuid.New(),
		ExternalEventID: event.ExternalEventID,
		EventType:       event.EventType,
		OrganizationID:  event.OrganizationID,
		ReceivedAt:      time.Now().UTC(),
	}

	applied, err := s.billingRepo.RecordEvent(ctx, record)
	if err != nil {
		return false, fmt.Errorf("failed to record billing event: %w", err)
	}
	if !applied {
		log.Info().
			Str("external_event_id", event.ExternalEventID).
			Msg("duplicate billing event ignored")
		return false, nil
	}

	plan, err := s.PlanFor(ctx, event.OrganizationID)
	if err != nil {
		return false, err
	}

	if event.PlanName != "" {
		plan.Name = event.PlanName
	}
	if event.PlanStatus != "" {
		plan.Status = event.PlanStatus
	}
	if event.MonthlyActions != nil {
		plan.MonthlyActions = *event.MonthlyActions
	}
	if event.ConcurrentJobs != nil {
		plan.ConcurrentJobs = *event.ConcurrentJobs
	}
	if event.JobsPerUser != nil {
		plan.ActiveJobsPerUser = *event.JobsPerUser
	}
	plan.UpdatedAt = time.Now().UTC()

	if err := s.billingRepo.UpsertPlan(ctx, plan); err != nil {
		return false, fmt.Errorf("failed to upsert plan: %w", err)
	}

	return true, nil
}

// Usage returns usage events for an organization
func (s *BillingService) Usage(ctx context.Context, principal authz.Principal, orgID uuid.UUID, since time.Time) ([]domain.UsageEvent, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.billingRepo.ListUsage(ctx, orgID, since)
}

// Plan returns the effective plan for an organization
func (s *BillingService) Plan(ctx context.Context, principal authz.Principal, orgID uuid.UUID) (*domain.Plan, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.PlanFor(ctx, orgID)
}
