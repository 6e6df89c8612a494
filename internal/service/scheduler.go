package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/opsmates/agentcore/internal/domain"
)

// Scheduler enqueues jobs for recurring tasks on their cron schedules. Task
// definitions are reloaded periodically, so new or disabled schedules take
// effect within one refresh interval without a restart.
type Scheduler struct {
	cron     *cron.Cron
	taskRepo domain.TaskRepository
	jobs     *JobService

	mu      sync.Mutex
	entries map[string]cron.EntryID // task ID -> cron entry
	specs   map[string]string       // task ID -> registered schedule
}

// NewScheduler creates a new scheduler
func NewScheduler(taskRepo domain.TaskRepository, jobs *JobService) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		taskRepo: taskRepo,
		jobs:     jobs,
		entries:  make(map[string]cron.EntryID),
		specs:    make(map[string]string),
	}
}

// Run starts the scheduler and refreshes task definitions until ctx ends
func (s *Scheduler) Run(ctx context.Context, refreshInterval time.Duration) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}

	s.cron.Start()
	defer s.cron.Stop()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("failed to refresh schedules")
			}
		}
	}
}

// Refresh reconciles cron entries with the stored task definitions
func (s *Scheduler) Refresh(ctx context.Context) error {
	tasks, err := s.taskRepo.ListScheduled(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		seen[task.ID] = true

		if s.specs[task.ID] == task.Schedule {
			continue
		}
		if id, ok := s.entries[task.ID]; ok {
			s.cron.Remove(id)
		}

		t := task
		entryID, err := s.cron.AddFunc(task.Schedule, func() {
			s.fire(t)
		})
		if err != nil {
			log.Error().Err(err).Str("task_id", task.ID).Msg("invalid schedule, skipping task")
			continue
		}
		s.entries[task.ID] = entryID
		s.specs[task.ID] = task.Schedule
	}

	for taskID, entryID := range s.entries {
		if !seen[taskID] {
			s.cron.Remove(entryID)
			delete(s.entries, taskID)
			delete(s.specs, taskID)
		}
	}

	return nil
}

func (s *Scheduler) fire(task domain.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	payload := make(map[string]any, len(task.Payload)+1)
	for k, v := range task.Payload {
		payload[k] = v
	}
	payload["task_id"] = task.ID

	job, err := s.jobs.EnqueueInternal(ctx, task.OrganizationID, task.AgentKey, payload)
	if err != nil {
		// A full queue is expected under plan caps; anything else is not.
		if errors.Is(err, domain.ErrLimitExceeded) {
			log.Info().Str("task_id", task.ID).Msg("scheduled run skipped, plan limit reached")
			return
		}
		log.Error().Err(err).Str("task_id", task.ID).Msg("failed to enqueue scheduled job")
		return
	}

	log.Info().
		Str("task_id", task.ID).
		Stringer("job_id", job.ID).
		Msg("scheduled job enqueued")
}
