package agentexec

import "context"

// Message is one turn of conversation context passed to a provider
type Message struct {
	Role    string
	Content string
}

// Request contains agent step parameters
type Request struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
}

// Response contains the provider generation result
type Response struct {
	Output     string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for model providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Execute runs one agent step against the provider
	Execute(ctx context.Context, req Request, model string) (*Response, error)
}
