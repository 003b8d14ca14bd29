package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/timvw/reverse-turing/internal/model"
	ppotel "github.com/timvw/reverse-turing/internal/otel"
	"github.com/timvw/reverse-turing/internal/prompt"
)

// Asker asks the operator for one line of text.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, question string) (string, error)

// Ask calls f.
func (f AskerFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

var _ Backend = (*Human)(nil)

// Human is an interrogated participant whose replies come from an operator.
type Human struct {
	catalog *prompt.Catalog
	asker   Asker
	policy  ErrorPolicy
	metrics *ppotel.Metrics

	history []model.Message
}

// HumanConfig configures the human participant.
type HumanConfig struct {
	Catalog *prompt.Catalog
	Asker   Asker
	Policy  ErrorPolicy
	Metrics *ppotel.Metrics
}

// NewHuman creates a human participant.
func NewHuman(cfg HumanConfig) *Human {
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyDegrade
	}
	return &Human{
		catalog: cfg.Catalog,
		asker:   cfg.Asker,
		policy:  policy,
		metrics: cfg.Metrics,
	}
}

// Role is always interrogated.
func (h *Human) Role() model.Role { return model.RoleInterrogated }

// Provider returns "human".
func (h *Human) Provider() string { return "human" }

// Model returns the empty string.
func (h *Human) Model() string { return "" }

// History returns a copy of the history.
func (h *Human) History() []model.Message { return cloneHistory(h.history) }

// Interrogate is not supported for humans.
func (h *Human) Interrogate(context.Context, string, model.State) (string, error) {
	return "", ErrHumanInterrogator
}

// Answer asks the operator to reply to question and returns the line
// exactly as typed. The history records the templated question.
func (h *Human) Answer(ctx context.Context, question string) (string, error) {
	h.history = append(h.history, model.UserMessage(h.catalog.Interrogated(question)))

	line, err := h.asker.Ask(ctx, question)
	if err != nil {
		if h.policy == PolicyFailFast || cancelled(ctx, err) {
			h.history = h.history[:len(h.history)-1]
			h.metrics.RecordTurn(ctx, h.Provider(), string(model.RoleInterrogated), ppotel.OutcomeFailed)
			return "", fmt.Errorf("human turn: %w", err)
		}
		slog.Warn("operator input failed, continuing with error text", "error", err)
		h.metrics.RecordTurn(ctx, h.Provider(), string(model.RoleInterrogated), ppotel.OutcomeDegraded)
		line = Sentinel(err)
	} else {
		h.metrics.RecordTurn(ctx, h.Provider(), string(model.RoleInterrogated), ppotel.OutcomeOK)
	}

	h.history = append(h.history, model.AssistantMessage(line))
	return line, nil
}
