package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsmates/agentcore/internal/api/middleware"
	"github.com/opsmates/agentcore/internal/api/response"
	"github.com/opsmates/agentcore/internal/domain"
	"github.com/opsmates/agentcore/internal/security"
	"github.com/opsmates/agentcore/internal/service"
)

// AgentHandler handles agent registry endpoints
type AgentHandler struct {
	agentService *service.AgentService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agentService *service.AgentService) *AgentHandler {
	return &AgentHandler{agentService: agentService}
}

// Create handles agent registration
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	var input domain.AgentCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	agent, err := h.agentService.Create(r.Context(), principal, orgID, input)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.Created(w, agent)
}

// List handles listing an organization's agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	agents, err := h.agentService.List(r.Context(), principal, orgID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, agents)
}

// Get handles retrieving an agent by key
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())
	key := chi.URLParam(r, "agentKey")

	agent, err := h.agentService.Get(r.Context(), principal, orgID, key)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, agent)
}

// SetActive handles enabling or disabling an agent
func (h *AgentHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())
	key := chi.URLParam(r, "agentKey")

	var input struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.agentService.SetActive(r.Context(), principal, orgID, key, input.Active); err != nil {
		response.DomainError(w, err)
		return
	}

	response.NoContent(w)
}
