package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
)

// ChatThread groups messages for one conversation. ActiveSessionID points to
// the current session, superseded atomically when a new session is created.
type ChatThread struct {
	ID              uuid.UUID  `json:"id"`
	OrganizationID  uuid.UUID  `json:"organization_id"`
	UserID          uuid.UUID  `json:"user_id"`
	Title           string     `json:"title"`
	ActiveSessionID *string    `json:"active_session_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ChatMessage is one message in a thread. SessionID is optional: messages
// created before session support carry none and are treated as session-less.
type ChatMessage struct {
	ID             uuid.UUID   `json:"id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	ThreadID       uuid.UUID   `json:"thread_id"`
	UserID         *uuid.UUID  `json:"user_id,omitempty"` // nil for agent/system messages
	SessionID      *string     `json:"session_id,omitempty"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ThreadRepository defines the interface for thread storage
type ThreadRepository interface {
	Create(ctx context.Context, thread *ChatThread) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*ChatThread, error)
	ListByUser(ctx context.Context, orgID, userID uuid.UUID, limit int) ([]ChatThread, error)
	// Delete cascades messages and sessions for the thread.
	Delete(ctx context.Context, orgID, id uuid.UUID) error
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	Create(ctx context.Context, message *ChatMessage) error
	ListByThread(ctx context.Context, orgID, threadID uuid.UUID, limit int) ([]ChatMessage, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)
}
