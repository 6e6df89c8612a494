package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsmates/agentcore/internal/domain"
)

// TaskRepository implements domain.TaskRepository
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO tasks (id, organization_id, agent_key, title, schedule, payload, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		task.ID,
		task.OrganizationID,
		task.AgentKey,
		task.Title,
		task.Schedule,
		payload,
		task.Active,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID retrieves a task scoped to an organization
func (r *TaskRepository) GetByID(ctx context.Context, orgID uuid.UUID, id string) (*domain.Task, error) {
	query := `
		SELECT id, organization_id, agent_key, title, schedule, payload, active, created_at, updated_at
		FROM tasks
		WHERE organization_id = $1 AND id = $2
	`

	task, err := scanTask(r.db.Pool.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// ListByOrganization retrieves all tasks for an organization
func (r *TaskRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Task, error) {
	query := `
		SELECT id, organization_id, agent_key, title, schedule, payload, active, created_at, updated_at
		FROM tasks
		WHERE organization_id = $1
		ORDER BY id DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListScheduled retrieves all active recurring tasks across organizations.
// Called only by the scheduler under the internal principal.
func (r *TaskRepository) ListScheduled(ctx context.Context) ([]domain.Task, error) {
	query := `
		SELECT t.id, t.organization_id, t.agent_key, t.title, t.schedule, t.payload, t.active, t.created_at, t.updated_at
		FROM tasks t
		INNER JOIN organizations o ON o.id = t.organization_id
		WHERE t.active AND t.schedule <> '' AND o.active
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// SetActive toggles a task's activation flag
func (r *TaskRepository) SetActive(ctx context.Context, orgID uuid.UUID, id string, active bool) error {
	query := `
		UPDATE tasks SET active = $3, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, orgID, id, active)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var payloadJSON []byte

	if err := row.Scan(
		&task.ID,
		&task.OrganizationID,
		&task.AgentKey,
		&task.Title,
		&task.Schedule,
		&payloadJSON,
		&task.Active,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &task.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}
