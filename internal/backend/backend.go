// Package backend implements the conversation participants.
//
// A Backend is one side of the conversation. Model-backed participants share
// a single implementation (Participant) that owns the role, the private
// history and the per-turn error policy; the provider-specific part is a
// Completer that serializes the history into the provider's wire format and
// returns the reply text. The human participant reads its replies from an
// injected Asker.
//
// Neither side ever sees the other's prompt scaffolding: each history holds
// only its own templated user messages and its own replies.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timvw/reverse-turing/internal/model"
)

// Backend is one participant of a conversation.
type Backend interface {
	// Interrogate produces the interrogator's next message for the given
	// state: a question for start and middle, the verdict for end.
	// lastAnswer is ignored in the start state.
	Interrogate(ctx context.Context, lastAnswer string, state model.State) (string, error)

	// Answer produces the interrogated party's reply to question.
	Answer(ctx context.Context, question string) (string, error)

	// Role returns the role fixed at construction.
	Role() model.Role

	// Provider returns the provider name (e.g. "anthropic", "human").
	Provider() string

	// Model returns the model name, empty for humans.
	Model() string

	// History returns a copy of the participant's private history.
	History() []model.Message
}

var (
	// ErrRoleMismatch is returned when a participant is asked to act in
	// the role it was not built for.
	ErrRoleMismatch = errors.New("operation does not match participant role")

	// ErrHumanInterrogator is returned by the human participant's
	// Interrogate: humans only ever answer.
	ErrHumanInterrogator = errors.New("a human cannot act as interrogator")

	// ErrCancelled is returned by an Asker when the operator aborts the
	// input.
	ErrCancelled = errors.New("input cancelled by operator")
)

// cancelled reports whether err comes from the run being stopped rather
// than from the provider or the operator's input. Such errors are never
// degraded into a reply.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)
}

// ErrorPolicy decides what happens when a model or operator call fails.
type ErrorPolicy string

const (
	// PolicyDegrade turns the failure into an "[Error: ...]" reply and lets
	// the conversation continue with it as if the participant had said it.
	PolicyDegrade ErrorPolicy = "degrade"
	// PolicyFailFast returns the failure and aborts the conversation.
	// Cancellation always aborts, whatever the policy.
	PolicyFailFast ErrorPolicy = "fail-fast"
)

// ParseErrorPolicy converts a config string into an ErrorPolicy.
// The empty string selects PolicyDegrade.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyDegrade:
		return PolicyDegrade, nil
	case PolicyFailFast:
		return PolicyFailFast, nil
	default:
		return "", fmt.Errorf("unknown error policy %q (supported: %s, %s)", s, PolicyDegrade, PolicyFailFast)
	}
}

const (
	sentinelPrefix = "[Error: "
	sentinelSuffix = "]"
)

// Sentinel returns the reply text that replaces a failed turn.
func Sentinel(err error) string {
	return sentinelPrefix + err.Error() + sentinelSuffix
}

// IsSentinel reports whether text is a degraded-turn reply.
func IsSentinel(text string) bool {
	return strings.HasPrefix(text, sentinelPrefix) && strings.HasSuffix(text, sentinelSuffix)
}

// Request is one model call.
type Request struct {
	// System is set only for completers that take the system prompt
	// out-of-band (InlineSystem() == false).
	System string
	// Messages is the participant's history. It starts with the system
	// message when the completer takes it inline.
	Messages []model.Message
	// MaxTokens caps the reply length.
	MaxTokens int64
}

// Completion is a model reply.
type Completion struct {
	Text         string
	Usage        model.TokenUsage
	FinishReason string
}

// Completer is the provider-specific half of a model-backed participant.
type Completer interface {
	// Complete sends the request and returns the reply.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Provider returns the provider name.
	Provider() string

	// Model returns the model name.
	Model() string

	// InlineSystem reports whether the system prompt is sent as the first
	// history message (true) or in a separate request field (false).
	InlineSystem() bool
}

func cloneHistory(h []model.Message) []model.Message {
	out := make([]model.Message, len(h))
	copy(out, h)
	return out
}
