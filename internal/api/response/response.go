package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsmates/agentcore/internal/domain"
)

// Response represents a standard API response
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, message any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error:   message,
	}

	json.NewEncoder(w).Encode(resp)
}

// DomainError maps the core error taxonomy onto HTTP statuses. Cross-tenant
// reads arrive here already as ErrNotFound, so existence never leaks.
func DomainError(w http.ResponseWriter, err error) {
	var limitErr *domain.LimitError
	if errors.As(err, &limitErr) {
		Error(w, http.StatusTooManyRequests, map[string]any{
			"message":  "plan limit exceeded",
			"resource": limitErr.Resource,
			"limit":    limitErr.Limit,
			"current":  limitErr.Current,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrDenied):
		Error(w, http.StatusForbidden, "access denied")
	case errors.Is(err, domain.ErrLimitExceeded):
		Error(w, http.StatusTooManyRequests, "plan limit exceeded")
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyClaimed):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTransient):
		Error(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response with data
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// OK sends a 200 OK response with data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// BadRequest sends a 400 Bad Request response
func BadRequest(w http.ResponseWriter, message any) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(w http.ResponseWriter, message any) {
	Error(w, http.StatusUnauthorized, message)
}

// NotFound sends a 404 Not Found response
func NotFound(w http.ResponseWriter, message any) {
	Error(w, http.StatusNotFound, message)
}

// InternalError sends a 500 Internal Server Error response
func InternalError(w http.ResponseWriter, message any) {
	Error(w, http.StatusInternalServerError, message)
}
