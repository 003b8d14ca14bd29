package backend

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/timvw/reverse-turing/internal/model"
)

var _ Completer = (*OpenAICompleter)(nil)

// OpenAICompleter calls an OpenAI-compatible Chat Completions API.
// Works with OpenAI, Azure OpenAI and any compatible endpoint.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// OpenAIConfig holds configuration for the OpenAI completer.
type OpenAIConfig struct {
	// BaseURL overrides the API endpoint.
	BaseURL string
	// APIKey is the API key.
	APIKey string
	// Model is the model name (e.g. "gpt-4o-mini").
	Model string
	// ExtraHeaders are additional HTTP headers.
	ExtraHeaders map[string]string
}

// NewOpenAICompleter creates a new OpenAI-compatible completer.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
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

	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Provider returns "openai".
func (c *OpenAICompleter) Provider() string { return "openai" }

// Model returns the model name.
func (c *OpenAICompleter) Model() string { return c.model }

// InlineSystem is true: the system prompt is the first chat message.
func (c *OpenAICompleter) InlineSystem() bool { return true }

// Complete sends the history to the Chat Completions API.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, span := startChatSpan(ctx, c.Provider(), c.model, req)
	defer span.End()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            openAIMessages(req.Messages),
		MaxCompletionTokens: openai.Int(req.MaxTokens),
	})
	if err != nil {
		recordFailure(span, "api_error", err)
		return nil, fmt.Errorf("openai API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("openai API returned empty response")
		recordFailure(span, "empty_response", err)
		return nil, err
	}

	completion := &Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		FinishReason: string(resp.Choices[0].FinishReason),
	}
	recordCompletion(span, resp.Model, completion)
	return completion, nil
}

// openAIMessages converts the history into chat messages, system included.
func openAIMessages(history []model.Message) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Speaker {
		case model.SpeakerSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case model.SpeakerUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case model.SpeakerAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		}
	}
	return msgs
}
