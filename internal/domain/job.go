package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job is the durable queue ticket for one asynchronous unit of agent work.
// Transitions are monotonic: pending -> running -> {succeeded, failed, cancelled}.
type Job struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	UserID         uuid.UUID      `json:"user_id"`
	AgentKey       string         `json:"agent_key"`
	Status         JobStatus      `json:"status"`
	Payload        map[string]any `json:"payload,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	Progress       int            `json:"progress"`
	RunID          *string        `json:"run_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	HeartbeatAt    *time.Time     `json:"heartbeat_at,omitempty"`
}

// JobCreate represents job enqueue data
type JobCreate struct {
	AgentKey string         `json:"agent_key" validate:"required,max=64"`
	ThreadID *uuid.UUID     `json:"thread_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// JobRepository defines the interface for job storage. Claim, Complete and
// Cancel are conditional writes; cross-worker coordination happens entirely
// through them.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// CreateInternal inserts a job on behalf of the service principal. It
	// skips the membership guard and requires only an active organization.
	CreateInternal(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	GetScoped(ctx context.Context, orgID, id uuid.UUID) (*Job, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]Job, error)
	CountActive(ctx context.Context, orgID uuid.UUID) (int, error)
	CountActiveByUser(ctx context.Context, orgID, userID uuid.UUID) (int, error)

	// Claim transitions a specific job pending -> running. Returns the number
	// of rows affected: zero means the job is absent or already claimed.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	// ClaimNext claims the oldest pending job using SELECT ... FOR UPDATE
	// SKIP LOCKED so concurrent workers never contend on the same row.
	ClaimNext(ctx context.Context) (*Job, error)
	// SetProgress applies a progress value only while running and only if it
	// does not regress. Returns false when the conditional update matched no row.
	SetProgress(ctx context.Context, id uuid.UUID, progress int) (bool, error)
	Heartbeat(ctx context.Context, id uuid.UUID) error
	// Finish transitions running -> terminal. Returns false when the job was
	// not in running state.
	Finish(ctx context.Context, id uuid.UUID, status JobStatus, result map[string]any, errMsg string) (bool, error)
	// Cancel transitions pending or running -> cancelled. Cooperative: the
	// worker observes the terminal status, nothing preempts it.
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	// ReapStale force-fails running jobs whose heartbeat is older than cutoff.
	ReapStale(ctx context.Context, cutoff time.Time) ([]Job, error)
	SetRunID(ctx context.Context, id uuid.UUID, runID string) error
}
