package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/authz"
	"github.com/opsmates/agentcore/internal/domain"
)

// AgentService manages the per-organization agent registry
type AgentService struct {
	agentRepo domain.AgentRepository
}

// NewAgentService creates a new agent service
func NewAgentService(agentRepo domain.AgentRepository) *AgentService {
	return &AgentService{agentRepo: agentRepo}
}

// Create registers a new agent. Key is unique within the organization.
func (s *AgentService) Create(ctx context.Context, principal authz.Principal, orgID uuid.UUID, input domain.AgentCreate) (*domain.Agent, error) {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return nil, err
	}

	config := input.Config
	if config.Version == 0 {
		config.Version = 1
	}

	now := time.Now().UTC()
	agent := &domain.Agent{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Key:            input.Key,
		Name:           input.Name,
		Active:         true,
		Config:         config,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.agentRepo.Create(ctx, agent); err != nil {
		return nil, err
	}

	return agent, nil
}

// Get retrieves an agent by key
func (s *AgentService) Get(ctx context.Context, principal authz.Principal, orgID uuid.UUID, key string) (*domain.Agent, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.agentRepo.GetByKey(ctx, orgID, key)
}

// List retrieves an organization's agents
func (s *AgentService) List(ctx context.Context, principal authz.Principal, orgID uuid.UUID) ([]domain.Agent, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.agentRepo.ListByOrganization(ctx, orgID)
}

// SetActive enables or disables an agent
func (s *AgentService) SetActive(ctx context.Context, principal authz.Principal, orgID uuid.UUID, key string, active bool) error {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return err
	}
	return s.agentRepo.SetActive(ctx, orgID, key, active)
}
