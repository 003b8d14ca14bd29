package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/timvw/reverse-turing/internal/model"
)

var _ Completer = (*AnthropicCompleter)(nil)

// AnthropicCompleter calls the Anthropic Messages API. The system prompt is
// sent in the request's System field, never as a message.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// AnthropicConfig holds configuration for the Anthropic completer.
type AnthropicConfig struct {
	// BaseURL overrides the API endpoint (e.g. an Azure AI Foundry resource).
	BaseURL string
	// APIKey is the API key.
	APIKey string
	// Model is the model name (e.g. "claude-3-5-sonnet-20240620").
	Model string
	// ExtraHeaders are additional HTTP headers (e.g. "api-key" for Azure).
	ExtraHeaders map[string]string
}

// NewAnthropicCompleter creates a new Anthropic completer.
func NewAnthropicCompleter(cfg AnthropicConfig) *AnthropicCompleter {
	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	for k, v := range cfg.ExtraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &AnthropicCompleter{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Provider returns "anthropic".
func (c *AnthropicCompleter) Provider() string { return "anthropic" }

// Model returns the model name.
func (c *AnthropicCompleter) Model() string { return c.model }

// InlineSystem is false: Anthropic takes the system prompt out-of-band.
func (c *AnthropicCompleter) InlineSystem() bool { return false }

// Complete sends the history to the Messages API.
func (c *AnthropicCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, span := startChatSpan(ctx, c.Provider(), c.model, req)
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: req.MaxTokens,
		Messages:  anthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		recordFailure(span, "api_error", err)
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		err := fmt.Errorf("anthropic API returned empty response")
		recordFailure(span, "empty_response", err)
		return nil, err
	}

	completion := &Completion{
		Text: text.String(),
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		FinishReason: string(resp.StopReason),
	}
	recordCompletion(span, string(resp.Model), completion)
	return completion, nil
}

// anthropicMessages converts the history into Messages API params.
// System entries are skipped; they travel in the System field.
func anthropicMessages(history []model.Message) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Speaker {
		case model.SpeakerUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case model.SpeakerAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return msgs
}
