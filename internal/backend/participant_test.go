package backend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/timvw/reverse-turing/internal/model"
	"github.com/timvw/reverse-turing/internal/prompt"
)

// fakeCompleter replies from a script and records every request.
type fakeCompleter struct {
	inline   bool
	replies  []string
	errs     []error
	requests []Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := "reply"
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &Completion{Text: reply, Usage: model.TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (f *fakeCompleter) Provider() string   { return "fake" }
func (f *fakeCompleter) Model() string      { return "fake-1" }
func (f *fakeCompleter) InlineSystem() bool { return f.inline }

func newTestParticipant(c Completer, role model.Role, policy ErrorPolicy) *Participant {
	return NewParticipant(c, ParticipantConfig{
		Role:    role,
		Catalog: prompt.New(3, false),
		Policy:  policy,
	})
}

func speakers(h []model.Message) []model.Speaker {
	out := make([]model.Speaker, len(h))
	for i, m := range h {
		out[i] = m.Speaker
	}
	return out
}

func TestParticipantSystemPlacement(t *testing.T) {
	tests := []struct {
		name        string
		inline      bool
		wantHistory int
	}{
		{"inline", true, 1},
		{"out of band", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{inline: tt.inline}
			p := newTestParticipant(fc, model.RoleInterrogator, PolicyDegrade)

			if got := len(p.History()); got != tt.wantHistory {
				t.Fatalf("history length = %d, want %d", got, tt.wantHistory)
			}
			if _, err := p.Interrogate(context.Background(), "", model.StateStart); err != nil {
				t.Fatalf("Interrogate: %v", err)
			}

			req := fc.requests[0]
			if tt.inline {
				if req.System != "" {
					t.Errorf("System = %q, want empty for inline completer", req.System)
				}
				if req.Messages[0].Speaker != model.SpeakerSystem {
					t.Errorf("first message speaker = %q, want system", req.Messages[0].Speaker)
				}
			} else {
				if !strings.Contains(req.System, "up to 3 questions") {
					t.Errorf("System = %q, want interrogator system prompt", req.System)
				}
				for _, m := range req.Messages {
					if m.Speaker == model.SpeakerSystem {
						t.Error("out-of-band completer received a system message")
					}
				}
			}
			if req.MaxTokens != DefaultMaxTokens {
				t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, DefaultMaxTokens)
			}
		})
	}
}

func TestParticipantAlternation(t *testing.T) {
	fc := &fakeCompleter{inline: true, replies: []string{"Q1", "Q2", "verdict"}}
	p := newTestParticipant(fc, model.RoleInterrogator, PolicyDegrade)
	ctx := context.Background()

	steps := []struct {
		last  string
		state model.State
		want  string
	}{
		{"", model.StateStart, "Q1"},
		{"A1", model.StateMiddle, "Q2"},
		{"A2", model.StateEnd, "verdict"},
	}
	for _, s := range steps {
		got, err := p.Interrogate(ctx, s.last, s.state)
		if err != nil {
			t.Fatalf("Interrogate(%s): %v", s.state, err)
		}
		if got != s.want {
			t.Errorf("Interrogate(%s) = %q, want %q", s.state, got, s.want)
		}
	}

	want := []model.Speaker{
		model.SpeakerSystem,
		model.SpeakerUser, model.SpeakerAssistant,
		model.SpeakerUser, model.SpeakerAssistant,
		model.SpeakerUser, model.SpeakerAssistant,
	}
	got := speakers(p.History())
	if len(got) != len(want) {
		t.Fatalf("history speakers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	h := p.History()
	if !strings.Contains(h[3].Content, "'A1'") {
		t.Errorf("middle prompt = %q, want it to quote the last answer", h[3].Content)
	}
}

func TestParticipantAnswerWrapsQuestion(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"Near the sea."}}
	p := newTestParticipant(fc, model.RoleInterrogated, PolicyDegrade)

	got, err := p.Answer(context.Background(), "Where did you grow up?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "Near the sea." {
		t.Errorf("Answer = %q, want %q", got, "Near the sea.")
	}

	h := p.History()
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	wantPrompt := "The interrogator has asked you:\n 'Where did you grow up?'\n How would you like to respond?"
	if h[0].Content != wantPrompt {
		t.Errorf("user message = %q, want %q", h[0].Content, wantPrompt)
	}
	if h[1] != model.AssistantMessage("Near the sea.") {
		t.Errorf("assistant message = %+v", h[1])
	}
}

func TestParticipantRoleMismatch(t *testing.T) {
	ctx := context.Background()

	interrogator := newTestParticipant(&fakeCompleter{}, model.RoleInterrogator, PolicyDegrade)
	if _, err := interrogator.Answer(ctx, "hi"); !errors.Is(err, ErrRoleMismatch) {
		t.Errorf("Answer on interrogator: err = %v, want ErrRoleMismatch", err)
	}

	interrogated := newTestParticipant(&fakeCompleter{}, model.RoleInterrogated, PolicyDegrade)
	if _, err := interrogated.Interrogate(ctx, "", model.StateStart); !errors.Is(err, ErrRoleMismatch) {
		t.Errorf("Interrogate on interrogated: err = %v, want ErrRoleMismatch", err)
	}
	if len(interrogated.History()) != 0 {
		t.Error("history changed after a rejected call")
	}
}

func TestParticipantUnknownState(t *testing.T) {
	p := newTestParticipant(&fakeCompleter{}, model.RoleInterrogator, PolicyDegrade)
	if _, err := p.Interrogate(context.Background(), "", model.State("bogus")); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestParticipantDegrade(t *testing.T) {
	fc := &fakeCompleter{errs: []error{errors.New("rate limited")}}
	p := newTestParticipant(fc, model.RoleInterrogated, PolicyDegrade)

	got, err := p.Answer(context.Background(), "Hello?")
	if err != nil {
		t.Fatalf("Answer: unexpected error %v", err)
	}
	if got != "[Error: rate limited]" {
		t.Errorf("Answer = %q, want sentinel", got)
	}
	if !IsSentinel(got) {
		t.Error("IsSentinel = false for degraded reply")
	}

	h := p.History()
	if len(h) != 2 || h[1].Content != got {
		t.Errorf("history = %+v, want sentinel appended as assistant turn", h)
	}
}

func TestParticipantFailFast(t *testing.T) {
	cause := errors.New("connection refused")
	fc := &fakeCompleter{errs: []error{nil, cause}}
	p := newTestParticipant(fc, model.RoleInterrogated, PolicyFailFast)
	ctx := context.Background()

	if _, err := p.Answer(ctx, "first"); err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	_, err := p.Answer(ctx, "second")
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped %v", err, cause)
	}
	if len(p.History()) != 2 {
		t.Errorf("history length = %d, want 2 (unanswered prompt removed)", len(p.History()))
	}
}

// blockingCompleter waits for the context to end.
type blockingCompleter struct{ fakeCompleter }

func (b *blockingCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestParticipantTimeout(t *testing.T) {
	p := NewParticipant(&blockingCompleter{}, ParticipantConfig{
		Role:    model.RoleInterrogated,
		Catalog: prompt.New(3, false),
		Timeout: 10 * time.Millisecond,
		Policy:  PolicyFailFast,
	})

	_, err := p.Answer(context.Background(), "anyone there?")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestParticipantTimeoutDegrades(t *testing.T) {
	p := NewParticipant(&blockingCompleter{}, ParticipantConfig{
		Role:    model.RoleInterrogated,
		Catalog: prompt.New(3, false),
		Timeout: 10 * time.Millisecond,
	})

	got, err := p.Answer(context.Background(), "anyone there?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !IsSentinel(got) {
		t.Errorf("Answer = %q, want sentinel for a per-call timeout", got)
	}
}

func TestParticipantCancelledIsNotDegraded(t *testing.T) {
	tests := []struct {
		name   string
		policy ErrorPolicy
	}{
		{"degrade", PolicyDegrade},
		{"fail-fast", PolicyFailFast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			p := newTestParticipant(&blockingCompleter{}, model.RoleInterrogated, tt.policy)

			go cancel()
			got, err := p.Answer(ctx, "still there?")
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Answer = (%q, %v), want context.Canceled", got, err)
			}
			if len(p.History()) != 0 {
				t.Errorf("history = %+v, want unanswered prompt removed", p.History())
			}
		})
	}
}

func TestParticipantHistoryIsCopy(t *testing.T) {
	p := newTestParticipant(&fakeCompleter{inline: true}, model.RoleInterrogator, PolicyDegrade)
	h := p.History()
	h[0].Content = "tampered"
	if p.History()[0].Content == "tampered" {
		t.Error("History returned the internal slice")
	}
}

func TestParseErrorPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ErrorPolicy
		wantErr bool
	}{
		{"", PolicyDegrade, false},
		{"degrade", PolicyDegrade, false},
		{"Fail-Fast", PolicyFailFast, false},
		{"retry", "", true},
	}
	for _, tt := range tests {
		got, err := ParseErrorPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseErrorPolicy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseErrorPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
