package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/opsmates/agentcore/internal/api/middleware"
	"github.com/opsmates/agentcore/internal/api/response"
	"github.com/opsmates/agentcore/internal/security"
	"github.com/opsmates/agentcore/internal/service"
)

// BillingHandler handles plan and metering endpoints
type BillingHandler struct {
	billingService *service.BillingService
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

// GetPlan handles retrieving the effective plan
func (h *BillingHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	plan, err := h.billingService.Plan(r.Context(), principal, orgID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, plan)
}

// Usage handles listing usage events
func (h *BillingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	since := time.Now().UTC().AddDate(0, -1, 0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, "invalid since timestamp")
			return
		}
		since = parsed
	}

	events, err := h.billingService.Usage(r.Context(), principal, orgID, since)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, events)
}

// Webhook ingests subscription provider events. Duplicate deliveries are
// acknowledged with 200 so the provider stops retrying.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var event service.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(event); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	applied, err := h.billingService.IngestWebhook(r.Context(), event)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, map[string]any{
		"applied": applied,
	})
}
