package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/opsmates/agentcore/internal/authz"
	"github.com/opsmates/agentcore/internal/domain"
	"github.com/opsmates/agentcore/internal/ids"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// TaskService manages task definitions. A task describes intended work; the
// queue ticket for each execution is a job.
type TaskService struct {
	taskRepo  domain.TaskRepository
	agentRepo domain.AgentRepository
}

// NewTaskService creates a new task service
func NewTaskService(taskRepo domain.TaskRepository, agentRepo domain.AgentRepository) *TaskService {
	return &TaskService{
		taskRepo:  taskRepo,
		agentRepo: agentRepo,
	}
}

// Create registers a task. The referenced agent must exist and the schedule,
// if any, must be a valid cron expression.
func (s *TaskService) Create(ctx context.Context, principal authz.Principal, orgID uuid.UUID, input domain.TaskCreate) (*domain.Task, error) {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return nil, err
	}

	agent, err := s.agentRepo.GetByKey(ctx, orgID, input.AgentKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown agent %q", domain.ErrNotFound, input.AgentKey)
		}
		return nil, err
	}
	if !agent.Active {
		return nil, fmt.Errorf("agent %q is disabled", input.AgentKey)
	}

	if input.Schedule != "" {
		if _, err := cronParser.Parse(input.Schedule); err != nil {
			return nil, fmt.Errorf("invalid schedule: %w", err)
		}
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:             ids.NewAt(ids.KindTask, now),
		OrganizationID: orgID,
		AgentKey:       input.AgentKey,
		Title:          input.Title,
		Schedule:       input.Schedule,
		Payload:        input.Payload,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// Get retrieves a task
func (s *TaskService) Get(ctx context.Context, principal authz.Principal, orgID uuid.UUID, id string) (*domain.Task, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.taskRepo.GetByID(ctx, orgID, id)
}

// List retrieves an organization's tasks
func (s *TaskService) List(ctx context.Context, principal authz.Principal, orgID uuid.UUID) ([]domain.Task, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.taskRepo.ListByOrganization(ctx, orgID)
}

// SetActive enables or disables a task
func (s *TaskService) SetActive(ctx context.Context, principal authz.Principal, orgID uuid.UUID, id string, active bool) error {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return err
	}
	return s.taskRepo.SetActive(ctx, orgID, id, active)
}
