package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/api/middleware"
	"github.com/opsmates/agentcore/internal/api/response"
	"github.com/opsmates/agentcore/internal/security"
	"github.com/opsmates/agentcore/internal/service"
)

// ThreadHandler handles conversation thread endpoints
type ThreadHandler struct {
	chatService *service.ChatService
}

// NewThreadHandler creates a new thread handler
func NewThreadHandler(chatService *service.ChatService) *ThreadHandler {
	return &ThreadHandler{chatService: chatService}
}

// Create handles thread creation
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	var input struct {
		Title string `json:"title" validate:"required,max=255"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	thread, err := h.chatService.CreateThread(r.Context(), principal, orgID, input.Title)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.Created(w, thread)
}

// List handles listing the caller's threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	threads, err := h.chatService.ListThreads(r.Context(), principal, orgID, limit)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, threads)
}

// Get handles retrieving a thread
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		response.BadRequest(w, "invalid thread ID")
		return
	}

	thread, err := h.chatService.GetThread(r.Context(), principal, orgID, threadID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, thread)
}

// Delete handles thread deletion
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		response.BadRequest(w, "invalid thread ID")
		return
	}

	if err := h.chatService.DeleteThread(r.Context(), principal, orgID, threadID); err != nil {
		response.DomainError(w, err)
		return
	}

	response.NoContent(w)
}

// ListMessages handles listing a thread's messages
func (h *ThreadHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		response.BadRequest(w, "invalid thread ID")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	messages, err := h.chatService.ListMessages(r.Context(), principal, orgID, threadID, limit)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, messages)
}

// PostMessage handles posting a message and enqueuing the agent reply
func (h *ThreadHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		response.BadRequest(w, "invalid thread ID")
		return
	}

	var input struct {
		AgentKey string `json:"agent_key" validate:"required,max=64"`
		Content  string `json:"content" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	message, job, err := h.chatService.PostMessage(r.Context(), principal, orgID, threadID, input.AgentKey, input.Content)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.Created(w, map[string]any{
		"message": message,
		"job":     job,
	})
}
