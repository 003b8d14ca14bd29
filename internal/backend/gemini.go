package backend

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/timvw/reverse-turing/internal/model"
)

var _ Completer = (*GeminiCompleter)(nil)

// GeminiCompleter calls the Gemini generateContent API. The system prompt
// goes in SystemInstruction and replies are sent back with role "model".
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds configuration for the Gemini completer.
type GeminiConfig struct {
	// BaseURL overrides the API endpoint.
	BaseURL string
	// APIKey is the Gemini API key.
	APIKey string
	// Model is the model name (e.g. "gemini-1.5-flash").
	Model string
}

// NewGeminiCompleter creates a new Gemini completer.
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: cfg.Model}, nil
}

// Provider returns "gemini".
func (c *GeminiCompleter) Provider() string { return "gemini" }

// Model returns the model name.
func (c *GeminiCompleter) Model() string { return c.model }

// InlineSystem is false: the system prompt is a SystemInstruction.
func (c *GeminiCompleter) InlineSystem() bool { return false }

// Complete sends the history to generateContent.
func (c *GeminiCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, span := startChatSpan(ctx, c.Provider(), c.model, req)
	defer span.End()

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		SafetySettings:  geminiSafetySettings(),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, geminiContents(req.Messages), config)
	if err != nil {
		recordFailure(span, "api_error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		err := fmt.Errorf("gemini API returned empty response")
		recordFailure(span, "empty_response", err)
		return nil, err
	}

	completion := &Completion{Text: text}
	if resp.UsageMetadata != nil {
		completion.Usage = model.TokenUsage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) > 0 {
		completion.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	recordCompletion(span, c.model, completion)
	return completion, nil
}

// geminiContents converts the history into contents. Assistant turns use
// the "model" role; system entries are skipped.
func geminiContents(history []model.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		switch m.Speaker {
		case model.SpeakerUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case model.SpeakerAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		}
	}
	return contents
}

// geminiSafetySettings disables blocking for every harm category.
func geminiSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}
