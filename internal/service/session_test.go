package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/opsmates/agentcore/internal/domain"
)

func TestSessionService_Resolve(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()
	threadID := uuid.New()

	t.Run("creates session for fresh triple", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		mockSessionRepo.On("ResolveOrCreate", ctx, mock.MatchedBy(func(s *domain.Session) bool {
			return s.UserID == userID &&
				s.ThreadID == threadID &&
				s.AgentKey == "support-bot" &&
				s.Status == domain.SessionStatusActive &&
				strings.HasPrefix(s.ID, "sess_")
		})).Return(&domain.Session{
			ID:             "sess_20260829T100000Z_aabbccddeeff",
			OrganizationID: orgID,
			UserID:         userID,
			ThreadID:       threadID,
			AgentKey:       "support-bot",
			Status:         domain.SessionStatusActive,
		}, true, nil)

		session, created, err := svc.Resolve(ctx, orgID, userID, threadID, "support-bot")

		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, domain.SessionStatusActive, session.Status)
		mockSessionRepo.AssertExpectations(t)
	})

	t.Run("reuses existing active session", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		existing := &domain.Session{
			ID:             "sess_20260829T100000Z_aabbccddeeff",
			OrganizationID: orgID,
			UserID:         userID,
			ThreadID:       threadID,
			AgentKey:       "support-bot",
			Status:         domain.SessionStatusActive,
			LastActivityAt: time.Now().UTC(),
		}
		mockSessionRepo.On("ResolveOrCreate", ctx, mock.AnythingOfType("*domain.Session")).Return(existing, false, nil)

		session, created, err := svc.Resolve(ctx, orgID, userID, threadID, "support-bot")

		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, session.ID)
	})
}

func TestSessionService_Get(t *testing.T) {
	ctx := context.Background()
	sessionID := "sess_20260829T100000Z_aabbccddeeff"

	t.Run("active session", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		mockSessionRepo.On("GetByID", ctx, sessionID).Return(&domain.Session{
			ID:             sessionID,
			Status:         domain.SessionStatusActive,
			LastActivityAt: time.Now().UTC(),
		}, nil)

		session, err := svc.Get(ctx, sessionID)

		assert.NoError(t, err)
		assert.Equal(t, domain.SessionStatusActive, session.Status)
	})

	t.Run("stale unswept session reported expired", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		mockSessionRepo.On("GetByID", ctx, sessionID).Return(&domain.Session{
			ID:             sessionID,
			Status:         domain.SessionStatusActive,
			LastActivityAt: time.Now().UTC().Add(-domain.SessionTimeout - time.Minute),
		}, nil)

		session, err := svc.Get(ctx, sessionID)

		assert.NoError(t, err)
		assert.Equal(t, domain.SessionStatusExpired, session.Status)
	})

	t.Run("not found", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		mockSessionRepo.On("GetByID", ctx, sessionID).Return(nil, domain.ErrNotFound)

		_, err := svc.Get(ctx, sessionID)

		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestSessionService_Touch(t *testing.T) {
	ctx := context.Background()
	sessionID := "sess_20260829T100000Z_aabbccddeeff"

	t.Run("resets window for active session", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		mockSessionRepo.On("GetByID", ctx, sessionID).Return(&domain.Session{
			ID:             sessionID,
			Status:         domain.SessionStatusActive,
			LastActivityAt: time.Now().UTC(),
		}, nil)
		mockSessionRepo.On("Touch", ctx, sessionID, mock.AnythingOfType("time.Time")).Return(true, nil)

		ok, err := svc.Touch(ctx, sessionID)

		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expired session never resumes", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		mockSessionRepo.On("GetByID", ctx, sessionID).Return(&domain.Session{
			ID:             sessionID,
			Status:         domain.SessionStatusActive,
			LastActivityAt: time.Now().UTC().Add(-domain.SessionTimeout - time.Minute),
		}, nil)

		ok, err := svc.Touch(ctx, sessionID)

		assert.NoError(t, err)
		assert.False(t, ok)
		mockSessionRepo.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSessionService_Append(t *testing.T) {
	ctx := context.Background()
	sessionID := "sess_20260829T100000Z_aabbccddeeff"

	t.Run("append counts as activity", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		mockSessionRepo.On("AppendTranscript", ctx, mock.MatchedBy(func(e *domain.TranscriptEntry) bool {
			return e.SessionID == sessionID && e.Role == domain.RoleUser && e.Content == "hello"
		})).Return(nil)
		mockSessionRepo.On("GetByID", ctx, sessionID).Return(&domain.Session{
			ID:             sessionID,
			Status:         domain.SessionStatusActive,
			LastActivityAt: time.Now().UTC(),
		}, nil)
		mockSessionRepo.On("Touch", ctx, sessionID, mock.AnythingOfType("time.Time")).Return(true, nil)

		err := svc.Append(ctx, sessionID, domain.RoleUser, "hello")

		assert.NoError(t, err)
		mockSessionRepo.AssertExpectations(t)
	})
}

func TestSessionService_SweepExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("expires stale sessions", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		expired := []string{
			"sess_20260829T090000Z_aabbccddeeff",
			"sess_20260829T091500Z_112233445566",
		}
		mockSessionRepo.On("ExpireStale", ctx, mock.AnythingOfType("time.Time")).Return(expired, nil)

		count, err := svc.SweepExpired(ctx)

		assert.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("nothing to expire", func(t *testing.T) {
		mockSessionRepo := new(MockSessionRepository)
		svc := &SessionService{sessionRepo: mockSessionRepo}

		mockSessionRepo.On("ExpireStale", ctx, mock.AnythingOfType("time.Time")).Return([]string{}, nil)

		count, err := svc.SweepExpired(ctx)

		assert.NoError(t, err)
		assert.Zero(t, count)
	})
}
