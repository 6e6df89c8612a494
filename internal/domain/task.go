package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is a unit of intended work referencing an agent, optionally recurring.
// The ID is a sortable string with an embedded creation timestamp, not a UUID.
type Task struct {
	ID             string         `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	AgentKey       string         `json:"agent_key"`
	Title          string         `json:"title"`
	Schedule       string         `json:"schedule,omitempty"` // cron expression, empty for one-shot
	Payload        map[string]any `json:"payload,omitempty"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TaskCreate represents task creation data
type TaskCreate struct {
	AgentKey string         `json:"agent_key" validate:"required,max=64"`
	Title    string         `json:"title" validate:"required,max=255"`
	Schedule string         `json:"schedule,omitempty" validate:"omitempty,max=64"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// TaskRepository defines the interface for task storage
type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, orgID uuid.UUID, id string) (*Task, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]Task, error)
	ListScheduled(ctx context.Context) ([]Task, error)
	SetActive(ctx context.Context, orgID uuid.UUID, id string, active bool) error
}
