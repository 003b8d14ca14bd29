package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"

	"github.com/timvw/reverse-turing/internal/model"
)

var sampleHistory = []model.Message{
	model.SystemMessage("sys"),
	model.UserMessage("q1"),
	model.AssistantMessage("a1"),
	model.UserMessage("q2"),
}

func TestAnthropicMessagesSkipSystem(t *testing.T) {
	msgs := anthropicMessages(sampleHistory)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	want := []anthropic.MessageParamRole{
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
	}
	for i, m := range msgs {
		if m.Role != want[i] {
			t.Errorf("msgs[%d].Role = %q, want %q", i, m.Role, want[i])
		}
	}
}

func TestOpenAIMessagesKeepSystem(t *testing.T) {
	msgs := openAIMessages(sampleHistory)
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[0].OfSystem == nil {
		t.Error("msgs[0] is not a system message")
	}
	if msgs[1].OfUser == nil || msgs[3].OfUser == nil {
		t.Error("user turns not mapped to user messages")
	}
	if msgs[2].OfAssistant == nil {
		t.Error("assistant turn not mapped to assistant message")
	}
}

func TestGeminiContentsUseModelRole(t *testing.T) {
	contents := geminiContents(sampleHistory)
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}
	want := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	for i, c := range contents {
		if c.Role != want[i] {
			t.Errorf("contents[%d].Role = %q, want %q", i, c.Role, want[i])
		}
	}
	if contents[1].Parts[0].Text != "a1" {
		t.Errorf("contents[1] text = %q, want a1", contents[1].Parts[0].Text)
	}
}

func TestGeminiSafetySettingsBlockNothing(t *testing.T) {
	for _, s := range geminiSafetySettings() {
		if s.Threshold != genai.HarmBlockThresholdBlockNone {
			t.Errorf("%s threshold = %s, want BLOCK_NONE", s.Category, s.Threshold)
		}
	}
}

func TestAnthropicComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Where do you live?"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 6}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicCompleter(AnthropicConfig{BaseURL: srv.URL, APIKey: "test", Model: "claude-test"})
	completion, err := c.Complete(context.Background(), Request{
		System:    "sys",
		Messages:  []model.Message{model.UserMessage("start")},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if completion.Text != "Where do you live?" {
		t.Errorf("Text = %q", completion.Text)
	}
	if completion.Usage != (model.TokenUsage{InputTokens: 12, OutputTokens: 6}) {
		t.Errorf("Usage = %+v", completion.Usage)
	}
	if _, ok := body["system"]; !ok {
		t.Error("request has no system field")
	}
	if msgs, _ := body["messages"].([]any); len(msgs) != 1 {
		t.Errorf("request messages = %v, want 1", body["messages"])
	}
}

func TestOpenAIComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "not much, you?"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 4, "total_tokens": 24}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL, APIKey: "test", Model: "gpt-test"})
	completion, err := c.Complete(context.Background(), Request{
		Messages:  []model.Message{model.SystemMessage("sys"), model.UserMessage("sup")},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if completion.Text != "not much, you?" || completion.FinishReason != "stop" {
		t.Errorf("completion = %+v", completion)
	}
	if completion.Usage != (model.TokenUsage{InputTokens: 20, OutputTokens: 4}) {
		t.Errorf("Usage = %+v", completion.Usage)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("request messages = %v, want 2", body["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
}

func TestGeminiComplete(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantText  string
		wantUsage model.TokenUsage
		wantErr   string
	}{
		{
			name: "reply",
			response: `{
				"candidates": [{
					"content": {"role": "model", "parts": [{"text": "Honestly? Pizza."}]},
					"finishReason": "STOP"
				}],
				"usageMetadata": {"promptTokenCount": 30, "candidatesTokenCount": 4, "totalTokenCount": 34}
			}`,
			wantText:  "Honestly? Pizza.",
			wantUsage: model.TokenUsage{InputTokens: 30, OutputTokens: 4},
		},
		{
			name:     "empty",
			response: `{"candidates": []}`,
			wantErr:  "empty response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "gemini-test:generateContent") {
					http.NotFound(w, r)
					return
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode request: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			c, err := NewGeminiCompleter(context.Background(), GeminiConfig{BaseURL: srv.URL, APIKey: "test", Model: "gemini-test"})
			if err != nil {
				t.Fatalf("NewGeminiCompleter: %v", err)
			}
			completion, err := c.Complete(context.Background(), Request{
				System:    "sys",
				Messages:  []model.Message{model.UserMessage("q1"), model.AssistantMessage("a1"), model.UserMessage("q2")},
				MaxTokens: 100,
			})

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if completion.Text != tt.wantText || completion.FinishReason != "STOP" {
				t.Errorf("completion = %+v", completion)
			}
			if completion.Usage != tt.wantUsage {
				t.Errorf("Usage = %+v, want %+v", completion.Usage, tt.wantUsage)
			}

			if _, ok := body["systemInstruction"]; !ok {
				t.Errorf("request has no systemInstruction: %v", body)
			}
			contents, _ := body["contents"].([]any)
			if len(contents) != 3 {
				t.Fatalf("request contents = %v, want 3", body["contents"])
			}
			roles := make([]any, len(contents))
			for i, c := range contents {
				roles[i] = c.(map[string]any)["role"]
			}
			if roles[0] != "user" || roles[1] != "model" || roles[2] != "user" {
				t.Errorf("content roles = %v, want [user model user]", roles)
			}
		})
	}
}
