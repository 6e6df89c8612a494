package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/api/middleware"
	"github.com/opsmates/agentcore/internal/api/response"
	"github.com/opsmates/agentcore/internal/domain"
	"github.com/opsmates/agentcore/internal/security"
	"github.com/opsmates/agentcore/internal/service"
)

// OrganizationHandler handles organization endpoints
type OrganizationHandler struct {
	orgService *service.OrganizationService
}

// NewOrganizationHandler creates a new organization handler
func NewOrganizationHandler(orgService *service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService}
}

// Create handles organization creation
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var input domain.OrganizationCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	org, err := h.orgService.Create(r.Context(), principal, input)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.Created(w, org)
}

// List handles listing the caller's organizations
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	orgs, err := h.orgService.List(r.Context(), principal)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, orgs)
}

// Get handles retrieving one organization
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	org, err := h.orgService.Get(r.Context(), principal, orgID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, org)
}

// Update handles organization updates
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	var input domain.OrganizationUpdate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	org, err := h.orgService.Update(r.Context(), principal, orgID, input)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, org)
}

// Deactivate handles organization deactivation
func (h *OrganizationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	if err := h.orgService.Deactivate(r.Context(), principal, orgID); err != nil {
		response.DomainError(w, err)
		return
	}

	response.NoContent(w)
}

// AddMember handles membership changes
func (h *OrganizationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	var input struct {
		UserID uuid.UUID `json:"user_id" validate:"required"`
		Role   string    `json:"role" validate:"required,oneof=owner admin member"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	if err := h.orgService.AddMember(r.Context(), principal, orgID, input.UserID, input.Role); err != nil {
		response.DomainError(w, err)
		return
	}

	response.NoContent(w)
}
