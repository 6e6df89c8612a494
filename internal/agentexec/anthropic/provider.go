package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/opsmates/agentcore/internal/agentexec"
)

const defaultMaxTokens = 2048

// Provider implements agentexec.Provider for Anthropic
type Provider struct {
	apiKey       string
	defaultModel string
	client       anthropic.Client
}

// NewProvider creates a new Anthropic provider using the official client
func NewProvider(apiKey, defaultModel string) agentexec.Provider {
	if defaultModel == "" {
		defaultModel = string(anthropic.ModelClaude3_5Sonnet20241022)
	}
	return &Provider{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "anthropic"
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// IsConfigured checks if provider has valid credentials
func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// Execute runs one agent step via the Messages API
func (p *Provider) Execute(ctx context.Context, req agentexec.Request, model string) (*agentexec.Response, error) {
	if model == "" {
		model = p.defaultModel
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "agent", "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return nil, fmt.Errorf("anthropic generation error: %w", err)
	}

	var output string
	for _, block := range resp.Content {
		if block.Type == "text" {
			output += block.AsText().Text
		}
	}
	if output == "" {
		return nil, fmt.Errorf("empty response from anthropic")
	}

	return &agentexec.Response{
		Output:     output,
		Model:      model,
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		LatencyMs:  latency,
	}, nil
}
