package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionTimeout is the inactivity window after which a session expires.
const SessionTimeout = 30 * time.Minute

// SessionStatus represents the lifecycle state of a session
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusExpired SessionStatus = "expired"
)

// Session is the bounded-lifetime memory scope for one (user, thread, agent)
// conversation. At most one active session exists per triple; expiry must be
// resolved before a replacement is created or memory from two conversations
// could merge.
type Session struct {
	ID             string        `json:"id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	UserID         uuid.UUID     `json:"user_id"`
	ThreadID       uuid.UUID     `json:"thread_id"`
	AgentKey       string        `json:"agent_key"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

// Expired reports whether the session's inactivity window has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.LastActivityAt) >= SessionTimeout
}

// TranscriptEntry is one message snapshot in a session's append-only
// transcript, used to reconstruct agent memory on resume.
type TranscriptEntry struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	// ResolveOrCreate returns the active session for the triple, expiring a
	// stale one and inserting a replacement atomically. Concurrent calls for
	// the same triple converge on a single session via the active-triple
	// uniqueness constraint. The bool reports whether a session was created.
	ResolveOrCreate(ctx context.Context, candidate *Session) (*Session, bool, error)
	GetByID(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, at time.Time) (bool, error)
	AppendTranscript(ctx context.Context, entry *TranscriptEntry) error
	Transcript(ctx context.Context, sessionID string, limit int) ([]TranscriptEntry, error)
	// ExpireStale marks active sessions with no activity since cutoff as
	// expired and returns their IDs.
	ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error)
}
