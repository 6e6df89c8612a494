package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/api/response"
	"github.com/opsmates/agentcore/internal/domain"
	"github.com/opsmates/agentcore/internal/security"
	"github.com/opsmates/agentcore/internal/service"
)

// InternalJobHandler exposes the worker protocol over HTTP for out-of-process
// workers. Routes are mounted behind the internal token middleware only.
type InternalJobHandler struct {
	jobService *service.JobService
}

// NewInternalJobHandler creates a new internal job handler
func NewInternalJobHandler(jobService *service.JobService) *InternalJobHandler {
	return &InternalJobHandler{jobService: jobService}
}

// ClaimNext claims the oldest pending job. Responds 204 when the queue is empty.
func (h *InternalJobHandler) ClaimNext(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobService.ClaimNext(r.Context())
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if job == nil {
		response.NoContent(w)
		return
	}

	response.OK(w, job)
}

// Claim claims a specific pending job
func (h *InternalJobHandler) Claim(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.BadRequest(w, "invalid job ID")
		return
	}

	job, err := h.jobService.Claim(r.Context(), jobID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, job)
}

// Progress applies a progress report
func (h *InternalJobHandler) Progress(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.BadRequest(w, "invalid job ID")
		return
	}

	var input struct {
		Progress int `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.jobService.ReportProgress(r.Context(), jobID, input.Progress); err != nil {
		response.DomainError(w, err)
		return
	}

	response.NoContent(w)
}

// Heartbeat refreshes the staleness clock
func (h *InternalJobHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.BadRequest(w, "invalid job ID")
		return
	}

	if err := h.jobService.Heartbeat(r.Context(), jobID); err != nil {
		response.DomainError(w, err)
		return
	}

	response.NoContent(w)
}

// Complete moves a job to a terminal status
func (h *InternalJobHandler) Complete(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.BadRequest(w, "invalid job ID")
		return
	}

	var input struct {
		Status domain.JobStatus `json:"status" validate:"required,oneof=succeeded failed cancelled"`
		Result map[string]any   `json:"result,omitempty"`
		Error  string           `json:"error,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	job, err := h.jobService.Complete(r.Context(), jobID, input.Status, input.Result, input.Error)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, job)
}
