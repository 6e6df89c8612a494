package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/authz"
	"github.com/opsmates/agentcore/internal/domain"
)

// ChatService is the conversation facade: posting a message persists it and
// enqueues the agent's reply as a background job. The reply arrives
// asynchronously; callers poll the job or subscribe to notifications.
type ChatService struct {
	threadRepo  domain.ThreadRepository
	messageRepo domain.MessageRepository
	jobs        *JobService
}

// NewChatService creates a new chat service
func NewChatService(
	threadRepo domain.ThreadRepository,
	messageRepo domain.MessageRepository,
	jobs *JobService,
) *ChatService {
	return &ChatService{
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		jobs:        jobs,
	}
}

// CreateThread opens a new conversation thread
func (s *ChatService) CreateThread(ctx context.Context, principal authz.Principal, orgID uuid.UUID, title string) (*domain.ChatThread, error) {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	thread := &domain.ChatThread{
		ID:             uuid.New(),
		OrganizationID: orgID,
		UserID:         principal.UserID,
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.threadRepo.Create(ctx, thread); err != nil {
		return nil, err
	}

	return thread, nil
}

// GetThread retrieves a thread within the principal's tenant scope
func (s *ChatService) GetThread(ctx context.Context, principal authz.Principal, orgID, threadID uuid.UUID) (*domain.ChatThread, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.threadRepo.GetByID(ctx, orgID, threadID)
}

// ListThreads retrieves the principal's threads in an organization
func (s *ChatService) ListThreads(ctx context.Context, principal authz.Principal, orgID uuid.UUID, limit int) ([]domain.ChatThread, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.threadRepo.ListByUser(ctx, orgID, principal.UserID, limit)
}

// DeleteThread removes a thread. Only the thread owner may delete it.
func (s *ChatService) DeleteThread(ctx context.Context, principal authz.Principal, orgID, threadID uuid.UUID) error {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return err
	}

	thread, err := s.threadRepo.GetByID(ctx, orgID, threadID)
	if err != nil {
		return err
	}
	if !principal.CanAccessUserResource(thread.UserID) {
		return domain.ErrDenied
	}

	return s.threadRepo.Delete(ctx, orgID, threadID)
}

// ListMessages retrieves the latest messages for a thread
func (s *ChatService) ListMessages(ctx context.Context, principal authz.Principal, orgID, threadID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	if err := principal.Require(orgID, authz.OpRead); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByThread(ctx, orgID, threadID, limit)
}

// PostMessage persists the user's message and enqueues the agent reply
func (s *ChatService) PostMessage(ctx context.Context, principal authz.Principal, orgID, threadID uuid.UUID, agentKey, content string) (*domain.ChatMessage, *domain.Job, error) {
	if err := principal.Require(orgID, authz.OpWrite); err != nil {
		return nil, nil, err
	}

	thread, err := s.threadRepo.GetByID(ctx, orgID, threadID)
	if err != nil {
		return nil, nil, err
	}

	message := &domain.ChatMessage{
		ID:             uuid.New(),
		OrganizationID: orgID,
		ThreadID:       thread.ID,
		UserID:         &principal.UserID,
		Role:           domain.RoleUser,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, nil, err
	}

	job, err := s.jobs.Enqueue(ctx, principal, orgID, domain.JobCreate{
		AgentKey: agentKey,
		ThreadID: &thread.ID,
		Payload: map[string]any{
			"message_id": message.ID.String(),
			"content":    content,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	return message, job, nil
}

// RecordAgentReply persists an agent message into a thread. Called by workers
// after a run completes.
func (s *ChatService) RecordAgentReply(ctx context.Context, orgID, threadID uuid.UUID, sessionID, content string) (*domain.ChatMessage, error) {
	message := &domain.ChatMessage{
		ID:             uuid.New(),
		OrganizationID: orgID,
		ThreadID:       threadID,
		Role:           domain.RoleAgent,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if sessionID != "" {
		message.SessionID = &sessionID
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	return message, nil
}
