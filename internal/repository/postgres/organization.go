package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsmates/agentcore/internal/domain"
)

// OrganizationRepository implements domain.OrganizationRepository
type OrganizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create creates a new organization
func (r *OrganizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	settings, err := json.Marshal(org.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO organizations (id, name, active, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		org.ID,
		org.Name,
		org.Active,
		settings,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	query := `
		SELECT id, name, active, settings, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org domain.Organization
	var settingsJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Active,
		&settingsJSON,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &org.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}

	return &org, nil
}

// Update updates an organization
func (r *OrganizationRepository) Update(ctx context.Context, id uuid.UUID, update *domain.OrganizationUpdate) error {
	settings, err := json.Marshal(update.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		UPDATE organizations
		SET name = COALESCE($2, name),
		    settings = COALESCE($3, settings),
		    updated_at = NOW()
		WHERE id = $1
	`

	var settingsArg any
	if update.Settings != nil {
		settingsArg = settings
	}

	_, err = r.db.Pool.Exec(ctx, query, id, update.Name, settingsArg)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	return nil
}

// Deactivate soft-deactivates an organization. Rows are never hard-deleted
// while members exist.
func (r *OrganizationRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE organizations SET active = FALSE, updated_at = NOW() WHERE id = $1`

	_, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate organization: %w", err)
	}

	return nil
}

// AddMember adds a member to an organization
func (r *OrganizationRepository) AddMember(ctx context.Context, member *domain.Membership) error {
	query := `
		INSERT INTO memberships (organization_id, user_id, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = $3, active = $4
	`

	_, err := r.db.Pool.Exec(ctx, query,
		member.OrganizationID,
		member.UserID,
		member.Role,
		member.Active,
		member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

// GetMember retrieves a membership
func (r *OrganizationRepository) GetMember(ctx context.Context, orgID, userID uuid.UUID) (*domain.Membership, error) {
	query := `
		SELECT organization_id, user_id, role, active, created_at
		FROM memberships
		WHERE organization_id = $1 AND user_id = $2
	`

	var member domain.Membership
	err := r.db.Pool.QueryRow(ctx, query, orgID, userID).Scan(
		&member.OrganizationID,
		&member.UserID,
		&member.Role,
		&member.Active,
		&member.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return &member, nil
}

// ListByUserID retrieves all organizations with an active membership for a user
func (r *OrganizationRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Organization, error) {
	query := `
		SELECT o.id, o.name, o.active, o.settings, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN memberships m ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.active
		ORDER BY o.created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []domain.Organization
	for rows.Next() {
		var org domain.Organization
		var settingsJSON []byte

		if err := rows.Scan(
			&org.ID,
			&org.Name,
			&org.Active,
			&settingsJSON,
			&org.CreatedAt,
			&org.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}

		if len(settingsJSON) > 0 {
			json.Unmarshal(settingsJSON, &org.Settings)
		}

		orgs = append(orgs, org)
	}

	return orgs, nil
}

// ActiveMembershipIDs returns the organization IDs the user is an active
// member of. This is the organizationsFor resolution the isolation layer
// builds principals from.
func (r *OrganizationRepository) ActiveMembershipIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT m.organization_id
		FROM memberships m
		INNER JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.active AND o.active
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// ActiveMemberships returns the user's active memberships in active
// organizations, with roles
func (r *OrganizationRepository) ActiveMemberships(ctx context.Context, userID uuid.UUID) ([]domain.Membership, error) {
	query := `
		SELECT m.organization_id, m.user_id, m.role, m.active, m.created_at
		FROM memberships m
		INNER JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.active AND o.active
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var members []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(
			&m.OrganizationID,
			&m.UserID,
			&m.Role,
			&m.Active,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}

	return members, nil
}
