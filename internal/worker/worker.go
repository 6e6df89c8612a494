package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsmates/agentcore/internal/agentexec"
	"github.com/opsmates/agentcore/internal/config"
	"github.com/opsmates/agentcore/internal/domain"
	"github.com/opsmates/agentcore/internal/repository/mongo"
	"github.com/opsmates/agentcore/internal/service"
)

const transcriptWindow = 50

// Worker drains the job queue: claim, execute the agent step, complete. Any
// number of workers can run against the same queue; claims are serialized by
// the store, not by coordination between workers.
type Worker struct {
	jobs      *service.JobService
	sessions  *service.SessionService
	chat      *service.ChatService
	agentRepo domain.AgentRepository
	router    *agentexec.Router
	runLogs   *mongo.RunLogStore
	cfg       config.WorkerConfig
}

// New creates a new worker
func New(
	jobs *service.JobService,
	sessions *service.SessionService,
	chat *service.ChatService,
	agentRepo domain.AgentRepository,
	router *agentexec.Router,
	runLogs *mongo.RunLogStore,
	cfg config.WorkerConfig,
) *Worker {
	return &Worker{
		jobs:      jobs,
		sessions:  sessions,
		chat:      chat,
		agentRepo: agentRepo,
		router:    router,
		runLogs:   runLogs,
		cfg:       cfg,
	}
}

// Run polls for work until ctx ends. Each concurrency slot runs its own
// claim loop.
func (w *Worker) Run(ctx context.Context) error {
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.pollLoop(ctx, i)
	}

	<-ctx.Done()
	return ctx.Err()
}

// RunReaper force-fails jobs whose worker stopped heartbeating
func (w *Worker) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-w.cfg.StaleThreshold)
			if _, err := w.jobs.ReapStale(ctx, cutoff); err != nil {
				log.Error().Err(err).Msg("failed to reap stale jobs")
			}
		}
	}
}

func (w *Worker) pollLoop(ctx context.Context, slot int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				job, err := w.jobs.ClaimNext(ctx)
				if err != nil {
					log.Error().Err(err).Int("slot", slot).Msg("failed to claim job")
					break
				}
				if job == nil {
					break // queue empty, back to polling
				}
				w.process(ctx, job)
			}
		}
	}
}

// process executes one claimed job end to end
func (w *Worker) process(ctx context.Context, job *domain.Job) {
	logger := log.With().Stringer("job_id", job.ID).Str("agent_key", job.AgentKey).Logger()
	logger.Info().Msg("job claimed")

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(heartbeatCtx, job.ID)

	agent, err := w.agentRepo.GetByKey(ctx, job.OrganizationID, job.AgentKey)
	if err != nil {
		w.fail(ctx, job, nil, fmt.Sprintf("agent lookup failed: %v", err))
		return
	}
	if !agent.Active {
		w.fail(ctx, job, nil, fmt.Sprintf("agent %q is disabled", agent.Key))
		return
	}

	input, _ := job.Payload["content"].(string)

	run, err := w.jobs.StartRun(ctx, job, input)
	if err != nil {
		w.fail(ctx, job, nil, fmt.Sprintf("failed to start run: %v", err))
		return
	}

	if err := w.jobs.ReportProgress(ctx, job.ID, 10); err != nil {
		logger.Warn().Err(err).Msg("failed to report progress")
	}
	w.logRun(ctx, run, "info", "run started")

	session, messages := w.resolveContext(ctx, job, agent, input)

	req := agentexec.Request{
		SystemPrompt: agent.Config.SystemPrompt,
		Messages:     messages,
		MaxTokens:    agent.Config.MaxTokens,
	}

	provider, err := w.router.GetProvider(agent.Config.Provider)
	if err != nil {
		w.failRun(ctx, job, run, fmt.Sprintf("provider unavailable: %v", err))
		return
	}

	resp, err := provider.Execute(ctx, req, agent.Config.Model)
	if err != nil {
		w.logRun(ctx, run, "error", err.Error())
		w.failRun(ctx, job, run, fmt.Sprintf("agent step failed: %v", err))
		return
	}

	if err := w.jobs.ReportProgress(ctx, job.ID, 90); err != nil {
		logger.Warn().Err(err).Msg("failed to report progress")
	}
	w.logRun(ctx, run, "info", "agent step completed")

	w.recordReply(ctx, job, session, resp.Output)

	completion := &domain.RunCompletion{
		Status:     domain.RunStatusSucceeded,
		Output:     resp.Output,
		TokensUsed: resp.TokensUsed,
		DurationMs: resp.LatencyMs,
	}
	if err := w.jobs.CompleteRun(ctx, run, completion); err != nil {
		logger.Error().Err(err).Msg("failed to complete run")
	}

	result := map[string]any{
		"output":      resp.Output,
		"run_id":      run.ID,
		"model":       resp.Model,
		"tokens_used": resp.TokensUsed,
	}
	if _, err := w.jobs.Complete(ctx, job.ID, domain.JobStatusSucceeded, result, ""); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Cancelled out from under us while the step ran.
			logger.Info().Msg("job reached a terminal status during execution, discarding result")
			return
		}
		logger.Error().Err(err).Msg("failed to complete job")
		return
	}

	logger.Info().Int("tokens_used", resp.TokensUsed).Msg("job succeeded")
}

// resolveContext resolves the conversation session for thread jobs and builds
// the message window. Jobs without a thread run stateless.
func (w *Worker) resolveContext(ctx context.Context, job *domain.Job, agent *domain.Agent, input string) (*domain.Session, []agentexec.Message) {
	threadID := threadIDFrom(job.Payload)
	if threadID == uuid.Nil || job.UserID == uuid.Nil {
		return nil, []agentexec.Message{{Role: "user", Content: input}}
	}

	session, _, err := w.sessions.Resolve(ctx, job.OrganizationID, job.UserID, threadID, job.AgentKey)
	if err != nil {
		log.Warn().Err(err).Stringer("job_id", job.ID).Msg("failed to resolve session, running stateless")
		return nil, []agentexec.Message{{Role: "user", Content: input}}
	}

	if err := w.sessions.Append(ctx, session.ID, domain.RoleUser, input); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to append to transcript")
	}

	entries, err := w.sessions.Transcript(ctx, session.ID, transcriptWindow)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to load transcript")
		return session, []agentexec.Message{{Role: "user", Content: input}}
	}

	messages := make([]agentexec.Message, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, agentexec.Message{Role: string(e.Role), Content: e.Content})
	}
	if len(messages) == 0 {
		messages = append(messages, agentexec.Message{Role: "user", Content: input})
	}

	return session, messages
}

// recordReply persists the agent's reply to the transcript and the thread
func (w *Worker) recordReply(ctx context.Context, job *domain.Job, session *domain.Session, output string) {
	var sessionID string
	if session != nil {
		sessionID = session.ID
		if err := w.sessions.Append(ctx, session.ID, domain.RoleAgent, output); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to append reply to transcript")
		}
	}

	threadID := threadIDFrom(job.Payload)
	if threadID == uuid.Nil {
		return
	}
	if _, err := w.chat.RecordAgentReply(ctx, job.OrganizationID, threadID, sessionID, output); err != nil {
		log.Warn().Err(err).Stringer("thread_id", threadID).Msg("failed to record agent reply")
	}
}

func (w *Worker) heartbeat(ctx context.Context, jobID uuid.UUID) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.jobs.Heartbeat(ctx, jobID); err != nil {
				log.Warn().Err(err).Stringer("job_id", jobID).Msg("failed to heartbeat")
			}
		}
	}
}

// fail terminates a job that never opened a run
func (w *Worker) fail(ctx context.Context, job *domain.Job, result map[string]any, errMsg string) {
	if _, err := w.jobs.Complete(ctx, job.ID, domain.JobStatusFailed, result, errMsg); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return
		}
		log.Error().Err(err).Stringer("job_id", job.ID).Msg("failed to fail job")
	}
}

// failRun terminates a job and its open run
func (w *Worker) failRun(ctx context.Context, job *domain.Job, run *domain.Run, errMsg string) {
	completion := &domain.RunCompletion{
		Status: domain.RunStatusFailed,
		Error:  errMsg,
	}
	if err := w.jobs.CompleteRun(ctx, run, completion); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("failed to fail run")
	}
	w.fail(ctx, job, map[string]any{"run_id": run.ID}, errMsg)
}

// logRun archives a run log line, best effort
func (w *Worker) logRun(ctx context.Context, run *domain.Run, level, message string) {
	if w.runLogs == nil {
		return
	}
	if err := w.runLogs.Append(ctx, run.ID, run.OrganizationID, level, message); err != nil {
		log.Debug().Err(err).Str("run_id", run.ID).Msg("failed to archive run log")
	}
}

func threadIDFrom(payload map[string]any) uuid.UUID {
	raw, _ := payload["thread_id"].(string)
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
