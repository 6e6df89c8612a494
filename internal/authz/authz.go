// Package authz is the tenant isolation layer. Every read or write of shared
// state resolves its organization scope through the decisions here. The
// functions are side-effect-free: given a principal and a requested scope they
// return allow/deny and nothing else, which keeps them trivially testable.
//
// Failure semantics are fail closed: a zero-value principal, an unknown
// organization, or an inactive membership all deny.
package authz

import (
	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/domain"
)

// Op is the requested operation class.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Principal is a verified caller identity. Memberships holds only active
// memberships, resolved at authentication time. Internal marks the privileged
// service principal used by workers and schedulers; it bypasses tenant checks
// and must never be minted from a public network path.
type Principal struct {
	UserID      uuid.UUID
	Email       string
	Memberships map[uuid.UUID]string // organization ID -> role
	Internal    bool
}

// InternalPrincipal returns the service-level principal.
func InternalPrincipal() Principal {
	return Principal{Internal: true}
}

// OrganizationsFor returns the set of organizations the principal may act in.
func (p Principal) OrganizationsFor() []uuid.UUID {
	orgs := make([]uuid.UUID, 0, len(p.Memberships))
	for id := range p.Memberships {
		orgs = append(orgs, id)
	}
	return orgs
}

// Role returns the principal's role in the organization, or "" if none.
func (p Principal) Role(orgID uuid.UUID) string {
	return p.Memberships[orgID]
}

// CanAccessOrganization reports whether the principal may perform op against
// entities scoped to orgID. All entity access rules reduce to membership in
// the owning organization; write additionally requires a writing role.
func (p Principal) CanAccessOrganization(orgID uuid.UUID, op Op) bool {
	if p.Internal {
		return true
	}
	if p.UserID == uuid.Nil || orgID == uuid.Nil {
		return false
	}
	role, ok := p.Memberships[orgID]
	if !ok {
		return false
	}
	if op == OpWrite {
		return role == domain.RoleOwner || role == domain.RoleAdmin || role == domain.RoleMember
	}
	return true
}

// CanAccessUserResource guards strictly user-owned entities (profile,
// personal settings): entity.user_id must equal the caller.
func (p Principal) CanAccessUserResource(ownerID uuid.UUID) bool {
	if p.Internal {
		return true
	}
	return p.UserID != uuid.Nil && p.UserID == ownerID
}

// CanManageOrganization guards organization-level mutations (settings,
// membership changes, deactivation).
func (p Principal) CanManageOrganization(orgID uuid.UUID) bool {
	if p.Internal {
		return true
	}
	role := p.Role(orgID)
	return role == domain.RoleOwner || role == domain.RoleAdmin
}

// Require maps a denied organization access to the error callers surface.
// Read denials report domain.ErrNotFound so existence never leaks across
// tenants; write denials report domain.ErrDenied.
func (p Principal) Require(orgID uuid.UUID, op Op) error {
	if p.CanAccessOrganization(orgID, op) {
		return nil
	}
	if op == OpRead {
		return domain.ErrNotFound
	}
	return domain.ErrDenied
}
