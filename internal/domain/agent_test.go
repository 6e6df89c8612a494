package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentConfigJSON(t *testing.T) {
	t.Run("unknown keys land in Extra", func(t *testing.T) {
		var cfg AgentConfig
		err := json.Unmarshal([]byte(`{"version":1,"provider":"openai","custom_tool":"search"}`), &cfg)

		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Version)
		assert.Equal(t, "openai", cfg.Provider)
		assert.Equal(t, map[string]any{"custom_tool": "search"}, cfg.Extra)
	})

	t.Run("round trip preserves unknown keys", func(t *testing.T) {
		var cfg AgentConfig
		require.NoError(t, json.Unmarshal([]byte(`{"version":2,"model":"gpt-4o","custom_tool":"search","retries":3}`), &cfg))

		data, err := json.Marshal(cfg)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, float64(2), decoded["version"])
		assert.Equal(t, "gpt-4o", decoded["model"])
		assert.Equal(t, "search", decoded["custom_tool"])
		assert.Equal(t, float64(3), decoded["retries"])
	})

	t.Run("typed fields win collisions", func(t *testing.T) {
		cfg := AgentConfig{
			Version: 3,
			Extra:   map[string]any{"version": 99, "tool": "browse"},
		}

		data, err := json.Marshal(cfg)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, float64(3), decoded["version"])
		assert.Equal(t, "browse", decoded["tool"])
	})

	t.Run("typed-only config leaves Extra empty", func(t *testing.T) {
		var cfg AgentConfig
		require.NoError(t, json.Unmarshal([]byte(`{"version":1,"max_tokens":512}`), &cfg))

		assert.Equal(t, 512, cfg.MaxTokens)
		assert.Nil(t, cfg.Extra)
	})
}
