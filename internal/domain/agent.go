package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Agent is a named capability definition scoped to one organization.
// Key is unique per organization.
type Agent struct {
	ID             uuid.UUID   `json:"id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	Key            string      `json:"key"`
	Name           string      `json:"name"`
	Active         bool        `json:"active"`
	Config         AgentConfig `json:"config"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// AgentConfig is a versioned configuration structure. Recognized keys are
// typed fields; unknown keys are preserved in Extra but never interpreted,
// so older rows survive config schema additions.
type AgentConfig struct {
	Version      int            `json:"version"`
	Provider     string         `json:"provider,omitempty"`
	Model        string         `json:"model,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	Extra        map[string]any `json:"-"`
}

// knownConfigKeys splits the wire format between typed fields and Extra.
// Keep in sync with the AgentConfig json tags.
var knownConfigKeys = map[string]struct{}{
	"version":       {},
	"provider":      {},
	"model":         {},
	"system_prompt": {},
	"max_tokens":    {},
}

// MarshalJSON re-emits Extra keys at the top level, so a config written by a
// newer schema survives a read-modify-write cycle here unchanged. Typed
// fields win on collision.
func (c AgentConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+len(knownConfigKeys))
	for key, value := range c.Extra {
		out[key] = value
	}

	out["version"] = c.Version
	if c.Provider != "" {
		out["provider"] = c.Provider
	}
	if c.Model != "" {
		out["model"] = c.Model
	}
	if c.SystemPrompt != "" {
		out["system_prompt"] = c.SystemPrompt
	}
	if c.MaxTokens != 0 {
		out["max_tokens"] = c.MaxTokens
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes the typed fields and routes every other top-level
// key into Extra.
func (c *AgentConfig) UnmarshalJSON(data []byte) error {
	type typedConfig AgentConfig
	var typed typedConfig
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for key := range knownConfigKeys {
		delete(all, key)
	}
	if len(all) > 0 {
		typed.Extra = all
	}

	*c = AgentConfig(typed)
	return nil
}

// AgentCreate represents agent creation data
type AgentCreate struct {
	Key    string      `json:"key" validate:"required,max=64"`
	Name   string      `json:"name" validate:"required,max=255"`
	Config AgentConfig `json:"config"`
}

// AgentRepository defines the interface for agent storage
type AgentRepository interface {
	Create(ctx context.Context, agent *Agent) error
	GetByKey(ctx context.Context, orgID uuid.UUID, key string) (*Agent, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]Agent, error)
	SetActive(ctx context.Context, orgID uuid.UUID, key string, active bool) error
}
