package service

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsmates/agentcore/internal/authz"
	"github.com/opsmates/agentcore/internal/domain"
	"github.com/opsmates/agentcore/internal/ids"
	"github.com/opsmates/agentcore/internal/notify"
)

// JobService owns the job state machine. Transitions are monotonic
// (pending -> running -> terminal) and every guarded transition is a single
// conditional write in the repository, so two workers can never both win.
type JobService struct {
	jobRepo  domain.JobRepository
	runRepo  domain.RunRepository
	billing  *BillingService
	notifier *notify.Notifier
}

// NewJobService creates a new job service
func NewJobService(
	jobRepo domain.JobRepository,
	runRepo domain.RunRepository,
	billing *BillingService,
	notifier *notify.Notifier,
) *JobService {
	return &JobService{
		jobRepo:  jobRepo,
		runRepo:  runRepo,
		billing:  billing,
		notifier: notifier,
	}
}

// Enqueue creates a pending job after plan caps pass. The membership guard is
// re-checked inside the insert, so a revoked membership between the authz
// check and the write still denies.
func (s *JobService) Enqueue(ctx context.Context, principal authz.Principal, orgID uuid.UUID, input domain.JobCreate) (*domain.Job, error) {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return nil, err
	}

	if err := s.billing.CheckEnqueueAllowed(ctx, orgID, principal.UserID); err != nil {
		return nil, err
	}

	payload := input.Payload
	if input.ThreadID != nil {
		if payload == nil {
			payload = make(map[string]any)
		}
		payload["thread_id"] = input.ThreadID.String()
	}

	job := &domain.Job{
		ID:             uuid.New(),
		OrganizationID: orgID,
		UserID:         principal.UserID,
		AgentKey:       input.AgentKey,
		Status:         domain.JobStatusPending,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	log.Info().
		Stringer("job_id", job.ID).
		Stringer("organization_id", orgID).
		Str("agent_key", job.AgentKey).
		Msg("job enqueued")

	return job, nil
}

// EnqueueInternal creates a pending job for scheduled work. Plan caps still
// apply at the organization level; there is no acting user.
func (s *JobService) EnqueueInternal(ctx context.Context, orgID uuid.UUID, agentKey string, payload map[string]any) (*domain.Job, error) {
	if err := s.billing.CheckEnqueueAllowed(ctx, orgID, uuid.Nil); err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:             uuid.New(),
		OrganizationID: orgID,
		AgentKey:       agentKey,
		Status:         domain.JobStatusPending,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.jobRepo.CreateInternal(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}

// Get retrieves a job within the principal's tenant scope
func (s *JobService) Get(ctx context.Context, principal authz.Principal, orgID, id uuid.UUID) (*domain.Job, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.jobRepo.GetScoped(ctx, orgID, id)
}

// List retrieves recent jobs for an organization
func (s *JobService) List(ctx context.Context, principal authz.Principal, orgID uuid.UUID, limit int) ([]domain.Job, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.jobRepo.ListByOrganization(ctx, orgID, limit)
}

// Cancel transitions a pending or running job to cancelled. Cancellation is
// cooperative: the worker keeps running until it observes the terminal status.
// A job already cancelled is a no-op; other terminal states are rejected.
func (s *JobService) Cancel(ctx context.Context, principal authz.Principal, orgID, id uuid.UUID) (*domain.Job, error) {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return nil, err
	}

	job, err := s.jobRepo.GetScoped(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.jobRepo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The conditional update lost: re-read to see what it lost to.
		job, err = s.jobRepo.GetScoped(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		if job.Status == domain.JobStatusCancelled {
			return job, nil
		}
		return nil, fmt.Errorf("%w: cannot cancel %s job", domain.ErrInvalidTransition, job.Status)
	}

	job.Status = domain.JobStatusCancelled
	s.notifier.JobFinished(ctx, job)

	return job, nil
}

// Claim transitions a specific pending job to running. Internal callers only.
func (s *JobService) Claim(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	ok, err := s.jobRepo.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.jobRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyClaimed
	}

	return s.jobRepo.GetByID(ctx, id)
}

// ClaimNext claims the oldest pending job, or returns nil when the queue is
// empty. Internal callers only.
func (s *JobService) ClaimNext(ctx context.Context) (*domain.Job, error) {
	return s.jobRepo.ClaimNext(ctx)
}

// ReportProgress applies a progress update for a running job. Progress is
// monotonic: a report lower than the stored value is dropped silently, since
// out-of-order delivery is expected, not an error.
func (s *JobService) ReportProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress out of range: %d", progress)
	}

	ok, err := s.jobRepo.SetProgress(ctx, id, progress)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusRunning {
		log.Debug().
			Stringer("job_id", id).
			Int("reported", progress).
			Int("stored", job.Progress).
			Msg("progress regression dropped")
		return nil
	}

	return fmt.Errorf("%w: cannot report progress on %s job", domain.ErrInvalidTransition, job.Status)
}

// Heartbeat refreshes the staleness clock for a running job
func (s *JobService) Heartbeat(ctx context.Context, id uuid.UUID) error {
	return s.jobRepo.Heartbeat(ctx, id)
}

// Complete moves a running job to a terminal status. Completion is
// idempotent on the identical outcome: re-completing with the stored status,
// result and error is a no-op, while any other rewrite of a terminal job is
// a conflict.
func (s *JobService) Complete(ctx context.Context, id uuid.UUID, status domain.JobStatus, result map[string]any, errMsg string) (*domain.Job, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: %s is not a terminal status", domain.ErrInvalidTransition, status)
	}

	ok, err := s.jobRepo.Finish(ctx, id, status, result, errMsg)
	if err != nil {
		return nil, err
	}

	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !ok {
		if job.Status == status && job.Error == errMsg && reflect.DeepEqual(job.Result, result) {
			return job, nil
		}
		if job.Status.Terminal() {
			return nil, fmt.Errorf("%w: job already %s", domain.ErrConflict, job.Status)
		}
		return nil, fmt.Errorf("%w: cannot complete %s job", domain.ErrInvalidTransition, job.Status)
	}

	s.notifier.JobFinished(ctx, job)

	return job, nil
}

// ReapStale force-fails running jobs whose heartbeat is older than cutoff.
// Linked runs are failed too, without metering, so audit records never stay
// open for dead workers. This is recovery, not retry; owners decide whether
// to re-enqueue.
func (s *JobService) ReapStale(ctx context.Context, cutoff time.Time) (int, error) {
	reaped, err := s.jobRepo.ReapStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for i := range reaped {
		job := &reaped[i]

		if job.RunID != nil {
			completion := &domain.RunCompletion{
				Status: domain.RunStatusFailed,
				Error:  "worker heartbeat lost",
			}
			if _, err := s.runRepo.Complete(ctx, *job.RunID, completion, nil); err != nil {
				log.Error().Err(err).Str("run_id", *job.RunID).Msg("failed to fail reaped run")
			}
		}

		s.notifier.JobFinished(ctx, job)

		log.Warn().
			Stringer("job_id", job.ID).
			Stringer("organization_id", job.OrganizationID).
			Msg("stale job reaped")
	}

	return len(reaped), nil
}

// StartRun opens the audit record for a claimed job and links it
func (s *JobService) StartRun(ctx context.Context, job *domain.Job, input string) (*domain.Run, error) {
	run := &domain.Run{
		ID:             ids.New(ids.KindRun),
		OrganizationID: job.OrganizationID,
		UserID:         job.UserID,
		AgentKey:       job.AgentKey,
		Status:         domain.RunStatusRunning,
		Input:          input,
		StartedAt:      time.Now().UTC(),
	}

	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, err
	}

	if err := s.jobRepo.SetRunID(ctx, job.ID, run.ID); err != nil {
		return nil, err
	}
	job.RunID = &run.ID

	return run, nil
}

// CompleteRun closes the audit record. On success the usage event is emitted
// in the same transaction as the completion write, which makes it the sole
// metering path and keeps it exactly-once. Re-completion is a no-op.
func (s *JobService) CompleteRun(ctx context.Context, run *domain.Run, completion *domain.RunCompletion) error {
	var usage *domain.UsageEvent
	if completion.Status == domain.RunStatusSucceeded {
		usage = &domain.UsageEvent{
			ID:             uuid.New(),
			OrganizationID: run.OrganizationID,
			RunID:          run.ID,
			EventType:      domain.UsageEventAgentAction,
			Quantity:       1,
			CostUSD:        completion.CostUSD,
			CreatedAt:      time.Now().UTC(),
		}
	}

	applied, err := s.runRepo.Complete(ctx, run.ID, completion, usage)
	if err != nil {
		return err
	}
	if !applied {
		log.Debug().Str("run_id", run.ID).Msg("run already completed")
	}

	return nil
}

// GetRun retrieves a run within the principal's tenant scope
func (s *JobService) GetRun(ctx context.Context, principal authz.Principal, orgID uuid.UUID, id string) (*domain.Run, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.runRepo.GetByID(ctx, orgID, id)
}

// ListRuns retrieves recent runs for an organization
func (s *JobService) ListRuns(ctx context.Context, principal authz.Principal, orgID uuid.UUID, limit int) ([]domain.Run, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.runRepo.ListByOrganization(ctx, orgID, limit)
}
