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

// TaskHandler handles task endpoints
type TaskHandler struct {
	taskService *service.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// Create handles task creation
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	var input domain.TaskCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	task, err := h.taskService.Create(r.Context(), principal, orgID, input)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.Created(w, task)
}

// List handles listing an organization's tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	tasks, err := h.taskService.List(r.Context(), principal, orgID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, tasks)
}

// Get handles retrieving a task
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	task, err := h.taskService.Get(r.Context(), principal, orgID, taskID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, task)
}

// SetActive handles enabling or disabling a task
func (h *TaskHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	var input struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.taskService.SetActive(r.Context(), principal, orgID, taskID, input.Active); err != nil {
		response.DomainError(w, err)
		return
	}

	response.NoContent(w)
}
