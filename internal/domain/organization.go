package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant boundary. Every scoped entity carries its ID.
// Organizations are never hard-deleted while members exist; deactivation is
// the Active flag.
type Organization struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Active    bool           `json:"active"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// OrganizationCreate represents organization creation data
type OrganizationCreate struct {
	Name     string         `json:"name" validate:"required,max=255"`
	Settings map[string]any `json:"settings,omitempty"`
}

// OrganizationUpdate represents organization update data
type OrganizationUpdate struct {
	Name     *string        `json:"name,omitempty" validate:"omitempty,max=255"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Membership is the (organization, user, role) triple controlling write
// privilege to organization-scoped entities. Unique per (organization, user).
type Membership struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Role constants
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// OrganizationRepository defines the interface for organization storage
type OrganizationRepository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	Update(ctx context.Context, id uuid.UUID, update *OrganizationUpdate) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, member *Membership) error
	GetMember(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]Organization, error)
	ActiveMembershipIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	// ActiveMemberships returns the user's active memberships in active
	// organizations, with roles.
	ActiveMemberships(ctx context.Context, userID uuid.UUID) ([]Membership, error)
}
