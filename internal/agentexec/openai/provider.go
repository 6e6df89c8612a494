package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/opsmates/agentcore/internal/agentexec"
)

// Provider implements agentexec.Provider for OpenAI
type Provider struct {
	apiKey       string
	defaultModel string
	client       openai.Client
}

// NewProvider creates a new OpenAI provider using the official client
func NewProvider(apiKey, defaultModel string) agentexec.Provider {
	if defaultModel == "" {
		defaultModel = openai.ChatModelGPT4oMini
	}
	return &Provider{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "openai"
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// IsConfigured checks if provider has valid credentials
func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// Execute runs one agent step via the Chat Completions API
func (p *Provider) Execute(ctx context.Context, req agentexec.Request, model string) (*agentexec.Response, error) {
	if model == "" {
		model = p.defaultModel
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "agent", "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return nil, fmt.Errorf("openai generation error: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty response from openai")
	}

	return &agentexec.Response{
		Output:     completion.Choices[0].Message.Content,
		Model:      model,
		TokensUsed: int(completion.Usage.TotalTokens),
		LatencyMs:  latency,
	}, nil
}
