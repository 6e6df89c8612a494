package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the outcome of a run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the audit record of one concrete execution. Completion fields are
// written at most once; re-completion reports the stored outcome.
type Run struct {
	ID             string     `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	UserID         uuid.UUID  `json:"user_id"`
	AgentKey       string     `json:"agent_key"`
	TaskID         *string    `json:"task_id,omitempty"`
	Status         RunStatus  `json:"status"`
	Input          string     `json:"input,omitempty"`
	Output         string     `json:"output,omitempty"`
	Error          string     `json:"error,omitempty"`
	TokensUsed     int        `json:"tokens_used"`
	DurationMs     int64      `json:"duration_ms"`
	CostUSD        float64    `json:"cost_usd"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// RunCompletion carries the write-once completion fields.
type RunCompletion struct {
	Status     RunStatus
	Output     string
	Error      string
	TokensUsed int
	DurationMs int64
	CostUSD    float64
}

// RunRepository defines the interface for run storage
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, orgID uuid.UUID, id string) (*Run, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]Run, error)
	// Complete sets the completion fields if and only if the run is still
	// running, and records the usage event in the same transaction. Returns
	// false when the run had already completed.
	Complete(ctx context.Context, id string, completion *RunCompletion, usage *UsageEvent) (bool, error)
}
