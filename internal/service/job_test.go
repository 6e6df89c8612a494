package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/opsmates/agentcore/internal/authz"
	"github.com/opsmates/agentcore/internal/config"
	"github.com/opsmates/agentcore/internal/domain"
)

func memberPrincipal(orgID uuid.UUID) authz.Principal {
	return authz.Principal{
		UserID:      uuid.New(),
		Email:       "member@example.com",
		Memberships: map[uuid.UUID]string{orgID: domain.RoleMember},
	}
}

func billingDisabled(jobRepo domain.JobRepository) *BillingService {
	return &BillingService{
		jobRepo: jobRepo,
		cfg:     config.BillingConfig{Enabled: false},
	}
}

func TestJobService_Enqueue(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("success", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{
			jobRepo: mockJobRepo,
			billing: billingDisabled(mockJobRepo),
		}

		mockJobRepo.On("Create", ctx, mock.AnythingOfType("*domain.Job")).Return(nil)

		principal := memberPrincipal(orgID)
		job, err := svc.Enqueue(ctx, principal, orgID, domain.JobCreate{AgentKey: "support-bot"})

		assert.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.Equal(t, orgID, job.OrganizationID)
		assert.Equal(t, principal.UserID, job.UserID)
		mockJobRepo.AssertExpectations(t)
	})

	t.Run("thread id lands in payload", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{
			jobRepo: mockJobRepo,
			billing: billingDisabled(mockJobRepo),
		}

		mockJobRepo.On("Create", ctx, mock.AnythingOfType("*domain.Job")).Return(nil)

		threadID := uuid.New()
		job, err := svc.Enqueue(ctx, memberPrincipal(orgID), orgID, domain.JobCreate{
			AgentKey: "support-bot",
			ThreadID: &threadID,
		})

		assert.NoError(t, err)
		assert.Equal(t, threadID.String(), job.Payload["thread_id"])
	})

	t.Run("non-member denied", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{
			jobRepo: mockJobRepo,
			billing: billingDisabled(mockJobRepo),
		}

		outsider := memberPrincipal(uuid.New())
		_, err := svc.Enqueue(ctx, outsider, orgID, domain.JobCreate{AgentKey: "support-bot"})

		assert.ErrorIs(t, err, domain.ErrDenied)
		mockJobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("concurrent job cap reached", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		mockBillingRepo := new(MockBillingRepository)
		billing := &BillingService{
			billingRepo: mockBillingRepo,
			jobRepo:     mockJobRepo,
			cfg:         config.BillingConfig{Enabled: true},
		}
		svc := &JobService{jobRepo: mockJobRepo, billing: billing}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID: orgID,
			Status:         domain.PlanStatusActive,
			ConcurrentJobs: 2,
		}, nil)
		mockJobRepo.On("CountActive", ctx, orgID).Return(2, nil)

		_, err := svc.Enqueue(ctx, memberPrincipal(orgID), orgID, domain.JobCreate{AgentKey: "support-bot"})

		assert.ErrorIs(t, err, domain.ErrLimitExceeded)
		var limitErr *domain.LimitError
		assert.ErrorAs(t, err, &limitErr)
		assert.Equal(t, "concurrent_jobs", limitErr.Resource)
		mockJobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("inactive plan rejected", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		mockBillingRepo := new(MockBillingRepository)
		billing := &BillingService{
			billingRepo: mockBillingRepo,
			jobRepo:     mockJobRepo,
			cfg:         config.BillingConfig{Enabled: true},
		}
		svc := &JobService{jobRepo: mockJobRepo, billing: billing}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID: orgID,
			Status:         domain.PlanStatusPastDue,
		}, nil)

		_, err := svc.Enqueue(ctx, memberPrincipal(orgID), orgID, domain.JobCreate{AgentKey: "support-bot"})

		assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	})
}

func TestJobService_EnqueueInternal(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("skips per-user cap", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		mockBillingRepo := new(MockBillingRepository)
		billing := &BillingService{
			billingRepo: mockBillingRepo,
			jobRepo:     mockJobRepo,
			cfg:         config.BillingConfig{Enabled: true},
		}
		svc := &JobService{jobRepo: mockJobRepo, billing: billing}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID:    orgID,
			Status:            domain.PlanStatusActive,
			ActiveJobsPerUser: 1,
		}, nil)
		mockJobRepo.On("CreateInternal", ctx, mock.AnythingOfType("*domain.Job")).Return(nil)

		job, err := svc.EnqueueInternal(ctx, orgID, "digest-agent", map[string]any{"task_id": "task_x"})

		assert.NoError(t, err)
		assert.Equal(t, uuid.Nil, job.UserID)
		mockJobRepo.AssertNotCalled(t, "CountActiveByUser", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestJobService_Claim(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()

	t.Run("success", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		claimed := &domain.Job{ID: jobID, Status: domain.JobStatusRunning}
		mockJobRepo.On("Claim", ctx, jobID).Return(true, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(claimed, nil)

		job, err := svc.Claim(ctx, jobID)

		assert.NoError(t, err)
		assert.Equal(t, domain.JobStatusRunning, job.Status)
	})

	t.Run("second claimant loses", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("Claim", ctx, jobID).Return(false, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(&domain.Job{ID: jobID, Status: domain.JobStatusRunning}, nil)

		_, err := svc.Claim(ctx, jobID)

		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	})

	t.Run("missing job surfaces not found", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("Claim", ctx, jobID).Return(false, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(nil, domain.ErrNotFound)

		_, err := svc.Claim(ctx, jobID)

		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestJobService_ReportProgress(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()

	t.Run("applied", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("SetProgress", ctx, jobID, 40).Return(true, nil)

		assert.NoError(t, svc.ReportProgress(ctx, jobID, 40))
	})

	t.Run("regression dropped silently", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("SetProgress", ctx, jobID, 10).Return(false, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(&domain.Job{
			ID:       jobID,
			Status:   domain.JobStatusRunning,
			Progress: 60,
		}, nil)

		assert.NoError(t, svc.ReportProgress(ctx, jobID, 10))
	})

	t.Run("rejected on terminal job", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("SetProgress", ctx, jobID, 50).Return(false, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(&domain.Job{
			ID:     jobID,
			Status: domain.JobStatusSucceeded,
		}, nil)

		err := svc.ReportProgress(ctx, jobID, 50)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("out of range", func(t *testing.T) {
		svc := &JobService{jobRepo: new(MockJobRepository)}

		assert.Error(t, svc.ReportProgress(ctx, jobID, 101))
		assert.Error(t, svc.ReportProgress(ctx, jobID, -1))
	})
}

func TestJobService_Complete(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()
	result := map[string]any{"output": "done"}

	t.Run("success", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("Finish", ctx, jobID, domain.JobStatusSucceeded, result, "").Return(true, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(&domain.Job{
			ID:     jobID,
			Status: domain.JobStatusSucceeded,
			Result: result,
		}, nil)

		job, err := svc.Complete(ctx, jobID, domain.JobStatusSucceeded, result, "")

		assert.NoError(t, err)
		assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	})

	t.Run("idempotent on same outcome", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("Finish", ctx, jobID, domain.JobStatusSucceeded, result, "").Return(false, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(&domain.Job{
			ID:     jobID,
			Status: domain.JobStatusSucceeded,
			Result: result,
		}, nil)

		job, err := svc.Complete(ctx, jobID, domain.JobStatusSucceeded, result, "")

		assert.NoError(t, err)
		assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	})

	t.Run("conflict on same status different result", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("Finish", ctx, jobID, domain.JobStatusSucceeded, result, "").Return(false, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(&domain.Job{
			ID:     jobID,
			Status: domain.JobStatusSucceeded,
			Result: map[string]any{"output": "something else"},
		}, nil)

		_, err := svc.Complete(ctx, jobID, domain.JobStatusSucceeded, result, "")

		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("conflict on different outcome", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("Finish", ctx, jobID, domain.JobStatusFailed, mock.Anything, "boom").Return(false, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(&domain.Job{
			ID:     jobID,
			Status: domain.JobStatusSucceeded,
		}, nil)

		_, err := svc.Complete(ctx, jobID, domain.JobStatusFailed, nil, "boom")

		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("rejects non-terminal status", func(t *testing.T) {
		svc := &JobService{jobRepo: new(MockJobRepository)}

		_, err := svc.Complete(ctx, jobID, domain.JobStatusRunning, nil, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("never claimed", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("Finish", ctx, jobID, domain.JobStatusSucceeded, mock.Anything, "").Return(false, nil)
		mockJobRepo.On("GetByID", ctx, jobID).Return(&domain.Job{
			ID:     jobID,
			Status: domain.JobStatusPending,
		}, nil)

		_, err := svc.Complete(ctx, jobID, domain.JobStatusSucceeded, nil, "")

		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestJobService_Cancel(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	jobID := uuid.New()

	t.Run("pending job cancelled", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("GetScoped", ctx, orgID, jobID).Return(&domain.Job{
			ID:             jobID,
			OrganizationID: orgID,
			Status:         domain.JobStatusPending,
		}, nil)
		mockJobRepo.On("Cancel", ctx, jobID).Return(true, nil)

		job, err := svc.Cancel(ctx, memberPrincipal(orgID), orgID, jobID)

		assert.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, job.Status)
	})

	t.Run("running job cancelled cooperatively", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("GetScoped", ctx, orgID, jobID).Return(&domain.Job{
			ID:             jobID,
			OrganizationID: orgID,
			Status:         domain.JobStatusRunning,
		}, nil)
		mockJobRepo.On("Cancel", ctx, jobID).Return(true, nil)

		job, err := svc.Cancel(ctx, memberPrincipal(orgID), orgID, jobID)

		assert.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, job.Status)
	})

	t.Run("already cancelled is a no-op", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("GetScoped", ctx, orgID, jobID).Return(&domain.Job{
			ID:     jobID,
			Status: domain.JobStatusCancelled,
		}, nil)
		mockJobRepo.On("Cancel", ctx, jobID).Return(false, nil)

		job, err := svc.Cancel(ctx, memberPrincipal(orgID), orgID, jobID)

		assert.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, job.Status)
	})

	t.Run("succeeded job rejected", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("GetScoped", ctx, orgID, jobID).Return(&domain.Job{
			ID:     jobID,
			Status: domain.JobStatusSucceeded,
		}, nil)
		mockJobRepo.On("Cancel", ctx, jobID).Return(false, nil)

		_, err := svc.Cancel(ctx, memberPrincipal(orgID), orgID, jobID)

		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("cross-tenant read hidden", func(t *testing.T) {
		svc := &JobService{jobRepo: new(MockJobRepository)}

		_, err := svc.Get(ctx, memberPrincipal(uuid.New()), orgID, jobID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestJobService_ReapStale(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-10 * time.Minute)

	t.Run("fails linked run without metering", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		mockRunRepo := new(MockRunRepository)
		svc := &JobService{jobRepo: mockJobRepo, runRepo: mockRunRepo}

		runID := "run_20260829T120000Z_abcdef123456"
		reaped := []domain.Job{{
			ID:     uuid.New(),
			Status: domain.JobStatusFailed,
			RunID:  &runID,
		}}
		mockJobRepo.On("ReapStale", ctx, cutoff).Return(reaped, nil)
		mockRunRepo.On("Complete", ctx, runID, mock.MatchedBy(func(c *domain.RunCompletion) bool {
			return c.Status == domain.RunStatusFailed
		}), (*domain.UsageEvent)(nil)).Return(true, nil)

		count, err := svc.ReapStale(ctx, cutoff)

		assert.NoError(t, err)
		assert.Equal(t, 1, count)
		mockRunRepo.AssertExpectations(t)
	})

	t.Run("nothing stale", func(t *testing.T) {
		mockJobRepo := new(MockJobRepository)
		svc := &JobService{jobRepo: mockJobRepo}

		mockJobRepo.On("ReapStale", ctx, cutoff).Return([]domain.Job{}, nil)

		count, err := svc.ReapStale(ctx, cutoff)

		assert.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestJobService_CompleteRun(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	run := &domain.Run{
		ID:             "run_20260829T120000Z_abcdef123456",
		OrganizationID: orgID,
		Status:         domain.RunStatusRunning,
	}

	t.Run("success emits one usage event", func(t *testing.T) {
		mockRunRepo := new(MockRunRepository)
		svc := &JobService{runRepo: mockRunRepo}

		mockRunRepo.On("Complete", ctx, run.ID, mock.AnythingOfType("*domain.RunCompletion"), mock.MatchedBy(func(u *domain.UsageEvent) bool {
			return u != nil && u.EventType == domain.UsageEventAgentAction && u.Quantity == 1 && u.RunID == run.ID
		})).Return(true, nil)

		err := svc.CompleteRun(ctx, run, &domain.RunCompletion{
			Status:     domain.RunStatusSucceeded,
			Output:     "done",
			TokensUsed: 128,
		})

		assert.NoError(t, err)
		mockRunRepo.AssertExpectations(t)
	})

	t.Run("failure emits no usage event", func(t *testing.T) {
		mockRunRepo := new(MockRunRepository)
		svc := &JobService{runRepo: mockRunRepo}

		mockRunRepo.On("Complete", ctx, run.ID, mock.AnythingOfType("*domain.RunCompletion"), (*domain.UsageEvent)(nil)).Return(true, nil)

		err := svc.CompleteRun(ctx, run, &domain.RunCompletion{
			Status: domain.RunStatusFailed,
			Error:  "provider timeout",
		})

		assert.NoError(t, err)
		mockRunRepo.AssertExpectations(t)
	})
}
