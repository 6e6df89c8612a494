package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/opsmates/agentcore/internal/domain"
)

// MockJobRepository mocks the JobRepository interface
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) CreateInternal(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) GetScoped(ctx context.Context, orgID, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, orgID, limit)
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *MockJobRepository) CountActive(ctx context.Context, orgID uuid.UUID) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) CountActiveByUser(ctx context.Context, orgID, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, orgID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) ClaimNext(ctx context.Context) (*domain.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) SetProgress(ctx context.Context, id uuid.UUID, progress int) (bool, error) {
	args := m.Called(ctx, id, progress)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) Heartbeat(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) Finish(ctx context.Context, id uuid.UUID, status domain.JobStatus, result map[string]any, errMsg string) (bool, error) {
	args := m.Called(ctx, id, status, result, errMsg)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) ReapStale(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *MockJobRepository) SetRunID(ctx context.Context, id uuid.UUID, runID string) error {
	args := m.Called(ctx, id, runID)
	return args.Error(0)
}

// MockRunRepository mocks the RunRepository interface
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *domain.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, orgID uuid.UUID, id string) (*domain.Run, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Run), args.Error(1)
}

func (m *MockRunRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.Run, error) {
	args := m.Called(ctx, orgID, limit)
	return args.Get(0).([]domain.Run), args.Error(1)
}

func (m *MockRunRepository) Complete(ctx context.Context, id string, completion *domain.RunCompletion, usage *domain.UsageEvent) (bool, error) {
	args := m.Called(ctx, id, completion, usage)
	return args.Bool(0), args.Error(1)
}

// MockSessionRepository mocks the SessionRepository interface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) ResolveOrCreate(ctx context.Context, candidate *domain.Session) (*domain.Session, bool, error) {
	args := m.Called(ctx, candidate)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Session), args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockSessionRepository) Transcript(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptEntry, error) {
	args := m.Called(ctx, sessionID, limit)
	return args.Get(0).([]domain.TranscriptEntry), args.Error(1)
}

func (m *MockSessionRepository) ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]string), args.Error(1)
}

// MockBillingRepository mocks the BillingRepository interface
type MockBillingRepository struct {
	mock.Mock
}

func (m *MockBillingRepository) GetPlan(ctx context.Context, orgID uuid.UUID) (*domain.Plan, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Plan), args.Error(1)
}

func (m *MockBillingRepository) UpsertPlan(ctx context.Context, plan *domain.Plan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockBillingRepository) MonthlyActionCount(ctx context.Context, orgID uuid.UUID, now time.Time) (int, error) {
	args := m.Called(ctx, orgID, now)
	return args.Int(0), args.Error(1)
}

func (m *MockBillingRepository) RecordEvent(ctx context.Context, event *domain.BillingEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockBillingRepository) ListUsage(ctx context.Context, orgID uuid.UUID, since time.Time) ([]domain.UsageEvent, error) {
	args := m.Called(ctx, orgID, since)
	return args.Get(0).([]domain.UsageEvent), args.Error(1)
}

// MockTaskRepository mocks the TaskRepository interface
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, orgID uuid.UUID, id string) (*domain.Task, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Task, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]domain.Task), args.Error(1)
}

func (m *MockTaskRepository) ListScheduled(ctx context.Context) ([]domain.Task, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Task), args.Error(1)
}

func (m *MockTaskRepository) SetActive(ctx context.Context, orgID uuid.UUID, id string, active bool) error {
	args := m.Called(ctx, orgID, id, active)
	return args.Error(0)
}

// MockAgentRepository mocks the AgentRepository interface
type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *MockAgentRepository) GetByKey(ctx context.Context, orgID uuid.UUID, key string) (*domain.Agent, error) {
	args := m.Called(ctx, orgID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agent), args.Error(1)
}

func (m *MockAgentRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Agent, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]domain.Agent), args.Error(1)
}

func (m *MockAgentRepository) SetActive(ctx context.Context, orgID uuid.UUID, key string, active bool) error {
	args := m.Called(ctx, orgID, key, active)
	return args.Error(0)
}
