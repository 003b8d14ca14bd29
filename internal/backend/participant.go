package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/timvw/reverse-turing/internal/model"
	ppotel "github.com/timvw/reverse-turing/internal/otel"
	"github.com/timvw/reverse-turing/internal/prompt"
)

// DefaultMaxTokens caps each model reply when no limit is configured.
const DefaultMaxTokens = 512

var _ Backend = (*Participant)(nil)

// ParticipantConfig configures a model-backed participant.
type ParticipantConfig struct {
	Role    model.Role
	Catalog *prompt.Catalog
	// MaxTokens caps each reply. Defaults to DefaultMaxTokens.
	MaxTokens int64
	// Timeout bounds a single model call. Zero means no limit.
	Timeout time.Duration
	// Policy decides how a failed call is handled. Defaults to PolicyDegrade.
	Policy  ErrorPolicy
	Metrics *ppotel.Metrics // nil-safe
}

// Participant is a model-backed conversation participant. It owns the
// history and delegates the model call to a Completer.
type Participant struct {
	role      model.Role
	catalog   *prompt.Catalog
	completer Completer
	maxTokens int64
	timeout   time.Duration
	policy    ErrorPolicy
	metrics   *ppotel.Metrics

	system  string
	history []model.Message
}

// NewParticipant builds a participant around c. The system prompt for the
// role is placed in the history or kept aside depending on c.InlineSystem.
func NewParticipant(c Completer, cfg ParticipantConfig) *Participant {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyDegrade
	}

	p := &Participant{
		role:      cfg.Role,
		catalog:   cfg.Catalog,
		completer: c,
		maxTokens: maxTokens,
		timeout:   cfg.Timeout,
		policy:    policy,
		metrics:   cfg.Metrics,
		system:    cfg.Catalog.System(cfg.Role),
	}
	if c.InlineSystem() {
		p.history = []model.Message{model.SystemMessage(p.system)}
	}
	return p
}

// Role returns the participant's role.
func (p *Participant) Role() model.Role { return p.role }

// Provider returns the completer's provider name.
func (p *Participant) Provider() string { return p.completer.Provider() }

// Model returns the completer's model name.
func (p *Participant) Model() string { return p.completer.Model() }

// History returns a copy of the history.
func (p *Participant) History() []model.Message { return cloneHistory(p.history) }

// Interrogate asks the model for the next interrogator message.
func (p *Participant) Interrogate(ctx context.Context, lastAnswer string, state model.State) (string, error) {
	if p.role != model.RoleInterrogator {
		return "", fmt.Errorf("%s: interrogate as %s: %w", p.Provider(), p.role, ErrRoleMismatch)
	}
	userPrompt, err := p.catalog.Interrogator(state, lastAnswer)
	if err != nil {
		return "", err
	}
	return p.turn(ctx, userPrompt)
}

// Answer asks the model to reply to question.
func (p *Participant) Answer(ctx context.Context, question string) (string, error) {
	if p.role != model.RoleInterrogated {
		return "", fmt.Errorf("%s: answer as %s: %w", p.Provider(), p.role, ErrRoleMismatch)
	}
	return p.turn(ctx, p.catalog.Interrogated(question))
}

// turn appends userPrompt, calls the model and appends the reply.
func (p *Participant) turn(ctx context.Context, userPrompt string) (string, error) {
	p.history = append(p.history, model.UserMessage(userPrompt))

	req := Request{
		Messages:  cloneHistory(p.history),
		MaxTokens: p.maxTokens,
	}
	if !p.completer.InlineSystem() {
		req.System = p.system
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	completion, err := p.completer.Complete(callCtx, req)
	if err != nil {
		return p.fail(ctx, err)
	}

	p.metrics.RecordTokens(ctx, p.Provider(), p.Model(), completion.Usage.InputTokens, completion.Usage.OutputTokens)
	p.metrics.RecordTurn(ctx, p.Provider(), string(p.role), ppotel.OutcomeOK)

	p.history = append(p.history, model.AssistantMessage(completion.Text))
	return completion.Text, nil
}

func (p *Participant) fail(ctx context.Context, err error) (string, error) {
	if p.policy == PolicyFailFast || cancelled(ctx, err) {
		// Drop the unanswered prompt so the history keeps alternating.
		p.history = p.history[:len(p.history)-1]
		p.metrics.RecordTurn(ctx, p.Provider(), string(p.role), ppotel.OutcomeFailed)
		return "", fmt.Errorf("%s %s turn: %w", p.Provider(), p.role, err)
	}

	reply := Sentinel(err)
	slog.Warn("model call failed, continuing with error text",
		"provider", p.Provider(), "model", p.Model(), "role", p.role, "error", err)
	p.metrics.RecordTurn(ctx, p.Provider(), string(p.role), ppotel.OutcomeDegraded)

	p.history = append(p.history, model.AssistantMessage(reply))
	return reply, nil
}
