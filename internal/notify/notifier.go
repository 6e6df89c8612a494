package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/opsmates/agentcore/internal/domain"
)

const jobEventChannel = "events:jobs"

// JobEvent announces a terminal job transition to subscribers
type JobEvent struct {
	JobID          uuid.UUID        `json:"job_id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Status         domain.JobStatus `json:"status"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// Notifier publishes job lifecycle events over Redis pub/sub. Delivery is
// best effort: the state transition has already committed, so a publish
// failure is logged and swallowed rather than unwinding the transition.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new notifier
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// JobFinished announces that a job reached a terminal status
func (n *Notifier) JobFinished(ctx context.Context, job *domain.Job) {
	if n == nil || n.rdb == nil {
		return
	}

	event := JobEvent{
		JobID:          job.ID,
		OrganizationID: job.OrganizationID,
		UserID:         job.UserID,
		Status:         job.Status,
		OccurredAt:     time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Stringer("job_id", job.ID).Msg("failed to marshal job event")
		return
	}

	if err := n.rdb.Publish(ctx, jobEventChannel, payload).Err(); err != nil {
		log.Warn().Err(err).Stringer("job_id", job.ID).Msg("failed to publish job event")
	}
}

// Subscribe returns a subscription for job lifecycle events
func (n *Notifier) Subscribe(ctx context.Context) *redis.PubSub {
	return n.rdb.Subscribe(ctx, jobEventChannel)
}
