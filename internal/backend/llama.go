package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/timvw/reverse-turing/internal/model"
)

// Llama 3 chat template tokens.
const (
	llamaBeginOfText = "<|begin_of_text|>"
	llamaStartHeader = "<|start_header_id|>"
	llamaEndHeader   = "<|end_header_id|>"
	llamaEndOfTurn   = "<|eot_id|>"
)

// DefaultLlamaBaseURL is where a local text-generation-inference server
// listens by default.
const DefaultLlamaBaseURL = "http://localhost:8080"

var _ Completer = (*LlamaCompleter)(nil)

// LlamaCompleter calls a text-generation-inference style /generate endpoint
// serving a Llama 3 instruct model. Unlike the chat APIs it takes a single
// prompt string, so the history is rendered with the Llama 3 chat template.
type LlamaCompleter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// LlamaConfig holds configuration for the Llama completer.
type LlamaConfig struct {
	// BaseURL is the inference server. Defaults to DefaultLlamaBaseURL.
	BaseURL string
	// APIKey is an optional bearer token (e.g. a Hugging Face token).
	APIKey string
	// Model is the served model, reported in spans and transcripts.
	Model string
	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client
}

// NewLlamaCompleter creates a new Llama completer.
func NewLlamaCompleter(cfg LlamaConfig) *LlamaCompleter {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultLlamaBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &LlamaCompleter{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

// Provider returns "llama".
func (c *LlamaCompleter) Provider() string { return "llama" }

// Model returns the model name.
func (c *LlamaCompleter) Model() string { return c.model }

// InlineSystem is true: the system prompt is rendered into the template.
func (c *LlamaCompleter) InlineSystem() bool { return true }

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxNewTokens   int64    `json:"max_new_tokens"`
	ReturnFullText bool     `json:"return_full_text"`
	Stop           []string `json:"stop,omitempty"`
	Details        bool     `json:"details"`
}

type generateResponse struct {
	GeneratedText string           `json:"generated_text"`
	Details       *generateDetails `json:"details,omitempty"`
}

type generateDetails struct {
	FinishReason    string `json:"finish_reason"`
	GeneratedTokens int64  `json:"generated_tokens"`
}

// Complete renders the history and posts it to /generate.
func (c *LlamaCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, span := startChatSpan(ctx, c.Provider(), c.model, req)
	defer span.End()

	body, err := json.Marshal(generateRequest{
		Inputs: RenderLlama3(req.Messages),
		Parameters: generateParameters{
			MaxNewTokens: req.MaxTokens,
			Stop:         []string{llamaEndOfTurn},
			Details:      true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llama: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llama: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		recordFailure(span, "api_error", err)
		return nil, fmt.Errorf("llama API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("llama API call failed: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		recordFailure(span, "api_error", err)
		return nil, err
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		recordFailure(span, "malformed_response", err)
		return nil, fmt.Errorf("llama: decoding response: %w", err)
	}

	text := strings.TrimSpace(strings.TrimSuffix(genResp.GeneratedText, llamaEndOfTurn))
	if text == "" {
		err := fmt.Errorf("llama API returned empty response")
		recordFailure(span, "empty_response", err)
		return nil, err
	}

	completion := &Completion{Text: text}
	if genResp.Details != nil {
		completion.FinishReason = genResp.Details.FinishReason
		completion.Usage.OutputTokens = genResp.Details.GeneratedTokens
	}
	recordCompletion(span, c.model, completion)
	return completion, nil
}

// RenderLlama3 renders messages with the Llama 3 instruct chat template and
// leaves an open assistant header for the model to complete.
func RenderLlama3(messages []model.Message) string {
	var b strings.Builder
	b.WriteString(llamaBeginOfText)
	for _, m := range messages {
		writeLlamaHeader(&b, string(m.Speaker))
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString(llamaEndOfTurn)
	}
	writeLlamaHeader(&b, string(model.SpeakerAssistant))
	return b.String()
}

func writeLlamaHeader(b *strings.Builder, role string) {
	b.WriteString(llamaStartHeader)
	b.WriteString(role)
	b.WriteString(llamaEndHeader)
	b.WriteString("\n\n")
}
