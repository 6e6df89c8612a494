package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/opsmates/agentcore/internal/config"
	"github.com/opsmates/agentcore/internal/domain"
)

func TestBillingService_PlanFor(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("stored plan", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		svc := &BillingService{billingRepo: mockBillingRepo}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID: orgID,
			Name:           "pro",
			Status:         domain.PlanStatusActive,
			MonthlyActions: 10000,
		}, nil)

		plan, err := svc.PlanFor(ctx, orgID)

		assert.NoError(t, err)
		assert.Equal(t, "pro", plan.Name)
	})

	t.Run("falls back to configured defaults", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		svc := &BillingService{
			billingRepo: mockBillingRepo,
			cfg: config.BillingConfig{
				DefaultMonthlyActions: 500,
				DefaultConcurrentJobs: 5,
			},
		}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(nil, domain.ErrNotFound)

		plan, err := svc.PlanFor(ctx, orgID)

		assert.NoError(t, err)
		assert.Equal(t, "default", plan.Name)
		assert.Equal(t, domain.PlanStatusActive, plan.Status)
		assert.Equal(t, 500, plan.MonthlyActions)
		assert.Equal(t, 5, plan.ConcurrentJobs)
	})
}

func TestBillingService_CheckEnqueueAllowed(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	t.Run("disabled billing allows everything", func(t *testing.T) {
		svc := &BillingService{cfg: config.BillingConfig{Enabled: false}}

		assert.NoError(t, svc.CheckEnqueueAllowed(ctx, orgID, userID))
	})

	t.Run("all caps pass", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		mockJobRepo := new(MockJobRepository)
		svc := &BillingService{
			billingRepo: mockBillingRepo,
			jobRepo:     mockJobRepo,
			cfg:         config.BillingConfig{Enabled: true},
		}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID:    orgID,
			Status:            domain.PlanStatusActive,
			MonthlyActions:    1000,
			ConcurrentJobs:    10,
			ActiveJobsPerUser: 3,
		}, nil)
		mockJobRepo.On("CountActive", ctx, orgID).Return(4, nil)
		mockJobRepo.On("CountActiveByUser", ctx, orgID, userID).Return(1, nil)
		mockBillingRepo.On("MonthlyActionCount", ctx, orgID, mock.AnythingOfType("time.Time")).Return(250, nil)

		assert.NoError(t, svc.CheckEnqueueAllowed(ctx, orgID, userID))
	})

	t.Run("per-user cap hit", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		mockJobRepo := new(MockJobRepository)
		svc := &BillingService{
			billingRepo: mockBillingRepo,
			jobRepo:     mockJobRepo,
			cfg:         config.BillingConfig{Enabled: true},
		}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID:    orgID,
			Status:            domain.PlanStatusActive,
			ActiveJobsPerUser: 3,
		}, nil)
		mockJobRepo.On("CountActiveByUser", ctx, orgID, userID).Return(3, nil)

		err := svc.CheckEnqueueAllowed(ctx, orgID, userID)

		assert.ErrorIs(t, err, domain.ErrLimitExceeded)
		var limitErr *domain.LimitError
		assert.ErrorAs(t, err, &limitErr)
		assert.Equal(t, "active_jobs_per_user", limitErr.Resource)
		assert.Equal(t, 3, limitErr.Limit)
	})

	t.Run("monthly cap hit", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		mockJobRepo := new(MockJobRepository)
		svc := &BillingService{
			billingRepo: mockBillingRepo,
			jobRepo:     mockJobRepo,
			cfg:         config.BillingConfig{Enabled: true},
		}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID: orgID,
			Status:         domain.PlanStatusActive,
			MonthlyActions: 500,
		}, nil)
		mockBillingRepo.On("MonthlyActionCount", ctx, orgID, mock.AnythingOfType("time.Time")).Return(500, nil)

		err := svc.CheckEnqueueAllowed(ctx, orgID, userID)

		var limitErr *domain.LimitError
		assert.ErrorAs(t, err, &limitErr)
		assert.Equal(t, "monthly_actions", limitErr.Resource)
	})

	t.Run("zero caps mean unlimited", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		mockJobRepo := new(MockJobRepository)
		svc := &BillingService{
			billingRepo: mockBillingRepo,
			jobRepo:     mockJobRepo,
			cfg:         config.BillingConfig{Enabled: true},
		}

		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID: orgID,
			Status:         domain.PlanStatusActive,
		}, nil)

		assert.NoError(t, svc.CheckEnqueueAllowed(ctx, orgID, userID))
		mockJobRepo.AssertNotCalled(t, "CountActive", mock.Anything, mock.Anything)
	})
}

func TestBillingService_IngestWebhook(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	event := WebhookEvent{
		ExternalEventID: "evt_12345",
		EventType:       "plan.updated",
		OrganizationID:  orgID,
		PlanName:        "pro",
		PlanStatus:      domain.PlanStatusActive,
	}

	t.Run("first delivery applied", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		svc := &BillingService{billingRepo: mockBillingRepo}

		mockBillingRepo.On("RecordEvent", ctx, mock.MatchedBy(func(e *domain.BillingEvent) bool {
			return e.ExternalEventID == "evt_12345"
		})).Return(true, nil)
		mockBillingRepo.On("GetPlan", ctx, orgID).Return(nil, domain.ErrNotFound)
		mockBillingRepo.On("UpsertPlan", ctx, mock.MatchedBy(func(p *domain.Plan) bool {
			return p.Name == "pro" && p.Status == domain.PlanStatusActive
		})).Return(nil)

		applied, err := svc.IngestWebhook(ctx, event)

		assert.NoError(t, err)
		assert.True(t, applied)
		mockBillingRepo.AssertExpectations(t)
	})

	t.Run("duplicate delivery ignored", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		svc := &BillingService{billingRepo: mockBillingRepo}

		mockBillingRepo.On("RecordEvent", ctx, mock.AnythingOfType("*domain.BillingEvent")).Return(false, nil)

		applied, err := svc.IngestWebhook(ctx, event)

		assert.NoError(t, err)
		assert.False(t, applied)
		mockBillingRepo.AssertNotCalled(t, "UpsertPlan", mock.Anything, mock.Anything)
	})

	t.Run("partial update keeps existing caps", func(t *testing.T) {
		mockBillingRepo := new(MockBillingRepository)
		svc := &BillingService{billingRepo: mockBillingRepo}

		actions := 2000
		partial := WebhookEvent{
			ExternalEventID: "evt_67890",
			EventType:       "plan.updated",
			OrganizationID:  orgID,
			MonthlyActions:  &actions,
		}

		mockBillingRepo.On("RecordEvent", ctx, mock.AnythingOfType("*domain.BillingEvent")).Return(true, nil)
		mockBillingRepo.On("GetPlan", ctx, orgID).Return(&domain.Plan{
			OrganizationID: orgID,
			Name:           "pro",
			Status:         domain.PlanStatusActive,
			MonthlyActions: 1000,
			ConcurrentJobs: 10,
		}, nil)
		mockBillingRepo.On("UpsertPlan", ctx, mock.MatchedBy(func(p *domain.Plan) bool {
			return p.MonthlyActions == 2000 && p.ConcurrentJobs == 10 && p.Name == "pro"
		})).Return(nil)

		applied, err := svc.IngestWebhook(ctx, partial)

		assert.NoError(t, err)
		assert.True(t, applied)
		mockBillingRepo.AssertExpectations(t)
	})
}
