package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlanStatus represents the subscription state of an organization
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusPastDue  PlanStatus = "past_due"
	PlanStatusCanceled PlanStatus = "canceled"
)

// Plan carries the caps the tracker enforces before enqueue.
type Plan struct {
	OrganizationID    uuid.UUID  `json:"organization_id"`
	Name              string     `json:"name"`
	Status            PlanStatus `json:"status"`
	MonthlyActions    int        `json:"monthly_actions"`     // 0 = unlimited
	ConcurrentJobs    int        `json:"concurrent_jobs"`     // 0 = unlimited
	ActiveJobsPerUser int        `json:"active_jobs_per_user"` // 0 = unlimited
	UpdatedAt         time.Time  `json:"updated_at"`
}

// UsageEvent is one metering record, emitted exactly once per run completion.
// This is the sole write path for billing-relevant usage.
type UsageEvent struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	RunID          string    `json:"run_id"`
	EventType      string    `json:"event_type"`
	Quantity       int       `json:"quantity"`
	CostUSD        float64   `json:"cost_usd"`
	CreatedAt      time.Time `json:"created_at"`
}

// Usage event types
const (
	UsageEventAgentAction = "agent_action"
)

// BillingEvent records an ingested subscription-provider webhook event.
// ExternalEventID is the dedupe key: an event is applied at most once.
type BillingEvent struct {
	ID              uuid.UUID `json:"id"`
	ExternalEventID string    `json:"external_event_id"`
	EventType       string    `json:"event_type"`
	OrganizationID  uuid.UUID `json:"organization_id"`
	ReceivedAt      time.Time `json:"received_at"`
}

// BillingRepository defines the interface for plan and metering storage
type BillingRepository interface {
	GetPlan(ctx context.Context, orgID uuid.UUID) (*Plan, error)
	UpsertPlan(ctx context.Context, plan *Plan) error
	// MonthlyActionCount counts usage events for the calendar month containing now.
	MonthlyActionCount(ctx context.Context, orgID uuid.UUID, now time.Time) (int, error)
	// RecordEvent inserts the billing event keyed by external event ID.
	// Returns false when the event was already recorded (duplicate delivery).
	RecordEvent(ctx context.Context, event *BillingEvent) (bool, error)
	ListUsage(ctx context.Context, orgID uuid.UUID, since time.Time) ([]UsageEvent, error)
}
