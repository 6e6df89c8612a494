package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/authz"
	"github.com/opsmates/agentcore/internal/domain"
)

// OrganizationService handles organization and membership operations
type OrganizationService struct {
	orgRepo domain.OrganizationRepository
}

// NewOrganizationService creates a new organization service
func NewOrganizationService(orgRepo domain.OrganizationRepository) *OrganizationService {
	return &OrganizationService{orgRepo: orgRepo}
}

// Create creates an organization with the caller as owner
func (s *OrganizationService) Create(ctx context.Context, principal authz.Principal, input domain.OrganizationCreate) (*domain.Organization, error) {
	if principal.UserID == uuid.Nil {
		return nil, domain.ErrDenied
	}

	now := time.Now().UTC()
	org := &domain.Organization{
		ID:        uuid.New(),
		Name:      input.Name,
		Active:    true,
		Settings:  input.Settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}

	member := &domain.Membership{
		OrganizationID: org.ID,
		UserID:         principal.UserID,
		Role:           domain.RoleOwner,
		Active:         true,
		CreatedAt:      now,
	}
	if err := s.orgRepo.AddMember(ctx, member); err != nil {
		return nil, err
	}

	return org, nil
}

// Get retrieves an organization the principal belongs to
func (s *OrganizationService) Get(ctx context.Context, principal authz.Principal, orgID uuid.UUID) (*domain.Organization, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.orgRepo.GetByID(ctx, orgID)
}

// List retrieves the principal's organizations
func (s *OrganizationService) List(ctx context.Context, principal authz.Principal) ([]domain.Organization, error) {
	return s.orgRepo.ListByUserID(ctx, principal.UserID)
}

// Update applies organization changes. Owner or admin only.
func (s *OrganizationService) Update(ctx context.Context, principal authz.Principal, orgID uuid.UUID, update domain.OrganizationUpdate) (*domain.Organization, error) {
	if !principal.CanManageOrganization(orgID) {
		return nil, domain.ErrDenied
	}

	if err := s.orgRepo.Update(ctx, orgID, &update); err != nil {
		return nil, err
	}

	return s.orgRepo.GetByID(ctx, orgID)
}

// Deactivate soft-deactivates an organization. Owner or admin only.
func (s *OrganizationService) Deactivate(ctx context.Context, principal authz.Principal, orgID uuid.UUID) error {
	if !principal.CanManageOrganization(orgID) {
		return domain.ErrDenied
	}
	return s.orgRepo.Deactivate(ctx, orgID)
}

// AddMember adds or updates a membership. Owner or admin only.
func (s *OrganizationService) AddMember(ctx context.Context, principal authz.Principal, orgID, userID uuid.UUID, role string) error {
	if !principal.CanManageOrganization(orgID) {
		return domain.ErrDenied
	}

	member := &domain.Membership{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	return s.orgRepo.AddMember(ctx, member)
}
