package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opsmates/agentcore/internal/domain"
)

// AgentRepository implements domain.AgentRepository
type AgentRepository struct {
	db *DB
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts a new agent. The (organization, key) pair is unique.
func (r *AgentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	configJSON, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		INSERT INTO agents (id, organization_id, key, name, active, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		agent.ID,
		agent.OrganizationID,
		agent.Key,
		agent.Name,
		agent.Active,
		configJSON,
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("agent key %q: %w", agent.Key, domain.ErrConflict)
		}
		return fmt.Errorf("failed to create agent: %w", err)
	}

	return nil
}

// GetByKey retrieves an agent by its per-organization key
func (r *AgentRepository) GetByKey(ctx context.Context, orgID uuid.UUID, key string) (*domain.Agent, error) {
	query := `
		SELECT id, organization_id, key, name, active, config, created_at, updated_at
		FROM agents
		WHERE organization_id = $1 AND key = $2
	`

	agent, err := scanAgent(r.db.Pool.QueryRow(ctx, query, orgID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	return agent, nil
}

// ListByOrganization retrieves all agents for an organization
func (r *AgentRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Agent, error) {
	query := `
		SELECT id, organization_id, key, name, active, config, created_at, updated_at
		FROM agents
		WHERE organization_id = $1
		ORDER BY key
	`

	rows, err := r.db.Pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, *agent)
	}

	return agents, nil
}

// SetActive toggles an agent's activation flag
func (r *AgentRepository) SetActive(ctx context.Context, orgID uuid.UUID, key string, active bool) error {
	query := `
		UPDATE agents SET active = $3, updated_at = NOW()
		WHERE organization_id = $1 AND key = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, orgID, key, active)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var agent domain.Agent
	var configJSON []byte

	if err := row.Scan(
		&agent.ID,
		&agent.OrganizationID,
		&agent.Key,
		&agent.Name,
		&agent.Active,
		&configJSON,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &agent.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return &agent, nil
}
