package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsmates/agentcore/internal/domain"
	"github.com/opsmates/agentcore/internal/ids"
	"github.com/opsmates/agentcore/internal/repository/redis"
)

// SessionService manages bounded-lifetime conversation sessions. The store is
// authoritative; the Redis cache is a hot read path that may be absent.
type SessionService struct {
	sessionRepo domain.SessionRepository
	cache       *redis.SessionCache
}

// NewSessionService creates a new session service
func NewSessionService(sessionRepo domain.SessionRepository, cache *redis.SessionCache) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		cache:       cache,
	}
}

// Resolve returns the active session for the (user, thread, agent) triple,
// creating one when none exists or the previous one expired. Expiry is
// decided against the inactivity window at resolve time, not by a background
// sweep, so the answer is deterministic regardless of sweeper lag.
func (s *SessionService) Resolve(ctx context.Context, orgID, userID, threadID uuid.UUID, agentKey string) (*domain.Session, bool, error) {
	now := time.Now().UTC()

	candidate := &domain.Session{
		ID:             ids.New(ids.KindSession),
		OrganizationID: orgID,
		UserID:         userID,
		ThreadID:       threadID,
		AgentKey:       agentKey,
		Status:         domain.SessionStatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	session, created, err := s.sessionRepo.ResolveOrCreate(ctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve session: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, session); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to cache session")
		}
	}

	if created {
		log.Info().
			Str("session_id", session.ID).
			Stringer("thread_id", threadID).
			Str("agent_key", agentKey).
			Msg("session created")
	}

	return session, created, nil
}

// Get returns a session, preferring the cache. An expired-but-unswept session
// is reported as expired; activity never resumes it.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	now := time.Now().UTC()

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, id); err == nil && cached != nil {
			if cached.Expired(now) {
				cached.Status = domain.SessionStatusExpired
			}
			return cached, nil
		}
	}

	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionStatusActive && session.Expired(now) {
		session.Status = domain.SessionStatusExpired
	}

	return session, nil
}

// Touch resets the inactivity window for an active session. Returns false
// when the session is gone or already expired.
func (s *SessionService) Touch(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()

	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if session.Status != domain.SessionStatusActive || session.Expired(now) {
		return false, nil
	}

	ok, err := s.sessionRepo.Touch(ctx, id, now)
	if err != nil {
		return false, err
	}

	if ok && s.cache != nil {
		session.LastActivityAt = now
		if err := s.cache.Set(ctx, session); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("failed to refresh cached session")
		}
	}

	return ok, nil
}

// Append records one message snapshot into the session transcript and counts
// as activity.
func (s *SessionService) Append(ctx context.Context, sessionID string, role domain.MessageRole, content string) error {
	entry := &domain.TranscriptEntry{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.sessionRepo.AppendTranscript(ctx, entry); err != nil {
		return err
	}

	if _, err := s.Touch(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to touch session after append")
	}

	return nil
}

// Transcript returns the session transcript in insertion order
func (s *SessionService) Transcript(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptEntry, error) {
	return s.sessionRepo.Transcript(ctx, sessionID, limit)
}

// SweepExpired expires idle sessions and evicts them from the cache. The
// sweep is hygiene; correctness never depends on it because reads and
// resolves re-check the window themselves.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-domain.SessionTimeout)

	expired, err := s.sessionRepo.ExpireStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		for _, id := range expired {
			if err := s.cache.Invalidate(ctx, id); err != nil {
				log.Warn().Err(err).Str("session_id", id).Msg("failed to evict expired session")
			}
		}
	}

	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("expired stale sessions")
	}

	return len(expired), nil
}
