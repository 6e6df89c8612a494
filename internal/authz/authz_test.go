package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/opsmates/agentcore/internal/domain"
)

func TestCanAccessOrganization(t *testing.T) {
	userID := uuid.New()
	orgA := uuid.New()
	orgB := uuid.New()

	p := Principal{
		UserID:      userID,
		Memberships: map[uuid.UUID]string{orgA: domain.RoleMember},
	}

	tests := []struct {
		name  string
		p     Principal
		orgID uuid.UUID
		op    Op
		want  bool
	}{
		{"member can read own org", p, orgA, OpRead, true},
		{"member can write own org", p, orgA, OpWrite, true},
		{"cannot read other org", p, orgB, OpRead, false},
		{"cannot write other org", p, orgB, OpWrite, false},
		{"zero principal denied", Principal{}, orgA, OpRead, false},
		{"nil org denied", p, uuid.Nil, OpRead, false},
		{"internal bypasses checks", InternalPrincipal(), orgB, OpWrite, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.CanAccessOrganization(tt.orgID, tt.op))
		})
	}
}

func TestRequireErrorMapping(t *testing.T) {
	p := Principal{UserID: uuid.New(), Memberships: map[uuid.UUID]string{}}
	foreign := uuid.New()

	// Read denial is indistinguishable from not-found.
	assert.ErrorIs(t, p.Require(foreign, OpRead), domain.ErrNotFound)
	assert.ErrorIs(t, p.Require(foreign, OpWrite), domain.ErrDenied)
}

func TestCanAccessUserResource(t *testing.T) {
	me := uuid.New()
	other := uuid.New()

	p := Principal{UserID: me}
	assert.True(t, p.CanAccessUserResource(me))
	assert.False(t, p.CanAccessUserResource(other))
	assert.False(t, Principal{}.CanAccessUserResource(uuid.Nil))
	assert.True(t, InternalPrincipal().CanAccessUserResource(other))
}

func TestCanManageOrganization(t *testing.T) {
	orgID := uuid.New()

	owner := Principal{UserID: uuid.New(), Memberships: map[uuid.UUID]string{orgID: domain.RoleOwner}}
	admin := Principal{UserID: uuid.New(), Memberships: map[uuid.UUID]string{orgID: domain.RoleAdmin}}
	member := Principal{UserID: uuid.New(), Memberships: map[uuid.UUID]string{orgID: domain.RoleMember}}

	assert.True(t, owner.CanManageOrganization(orgID))
	assert.True(t, admin.CanManageOrganization(orgID))
	assert.False(t, member.CanManageOrganization(orgID))
}

func TestOrganizationsFor(t *testing.T) {
	orgA := uuid.New()
	orgB := uuid.New()
	p := Principal{
		UserID: uuid.New(),
		Memberships: map[uuid.UUID]string{
			orgA: domain.RoleOwner,
			orgB: domain.RoleMember,
		},
	}

	orgs := p.OrganizationsFor()
	assert.Len(t, orgs, 2)
	assert.Contains(t, orgs, orgA)
	assert.Contains(t, orgs, orgB)
}
