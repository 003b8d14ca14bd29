// Package conversation drives a reverse Turing test between two participants.
package conversation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/reverse-turing/internal/backend"
	"github.com/timvw/reverse-turing/internal/model"
	ppotel "github.com/timvw/reverse-turing/internal/otel"
)

// DefaultRounds is the number of question/answer rounds when none is set.
const DefaultRounds = 5

var tracer = otel.Tracer("reverse-turing/conversation")

// Config configures one conversation.
type Config struct {
	// Rounds is the number of question/answer rounds. Must be at least 1.
	Rounds int
	// ID tags the conversation span. Optional.
	ID      string
	Metrics *ppotel.Metrics
}

// Orchestrator runs one conversation. It is single-use.
type Orchestrator struct {
	interrogator backend.Backend
	interrogated backend.Backend
	rounds       int
	id           string
	metrics      *ppotel.Metrics

	// OnQuestion is called with every interrogator question before it is
	// put to the interrogated party.
	OnQuestion func(round int, question string)
	// OnRound is called after each completed round.
	OnRound func(model.Round)
	// OnVerdict is called with the interrogator's final message.
	OnVerdict func(verdict string)
}

// New validates the participants and returns an orchestrator.
func New(interrogator, interrogated backend.Backend, cfg Config) (*Orchestrator, error) {
	if interrogator == nil || interrogated == nil {
		return nil, fmt.Errorf("conversation: both participants are required")
	}
	if interrogator.Role() != model.RoleInterrogator {
		return nil, fmt.Errorf("conversation: interrogator %s has role %s: %w",
			interrogator.Provider(), interrogator.Role(), backend.ErrRoleMismatch)
	}
	if interrogated.Role() != model.RoleInterrogated {
		return nil, fmt.Errorf("conversation: interrogated %s has role %s: %w",
			interrogated.Provider(), interrogated.Role(), backend.ErrRoleMismatch)
	}
	if cfg.Rounds < 1 {
		return nil, fmt.Errorf("conversation: rounds must be at least 1, got %d", cfg.Rounds)
	}
	return &Orchestrator{
		interrogator: interrogator,
		interrogated: interrogated,
		rounds:       cfg.Rounds,
		id:           cfg.ID,
		metrics:      cfg.Metrics,
	}, nil
}

// Run plays the conversation: an opening question, Rounds answers each
// followed by the next interrogator message, the last of which is the
// verdict. A participant error aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*model.Transcript, error) {
	ctx, span := tracer.Start(ctx, "conversation",
		trace.WithAttributes(
			attribute.String("conversation.id", o.id),
			attribute.String("conversation.interrogator", o.interrogator.Provider()),
			attribute.String("conversation.interrogated", o.interrogated.Provider()),
			attribute.Int("conversation.rounds", o.rounds),
		),
	)
	defer span.End()

	transcript, err := o.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.RecordConversation(ctx, ppotel.OutcomeFailed)
		return nil, err
	}

	outcome := ppotel.OutcomeOK
	if degraded(transcript) {
		outcome = ppotel.OutcomeDegraded
	}
	span.SetAttributes(attribute.String("conversation.outcome", outcome))
	o.metrics.RecordConversation(ctx, outcome)
	return transcript, nil
}

func (o *Orchestrator) run(ctx context.Context) (*model.Transcript, error) {
	question, err := o.interrogator.Interrogate(ctx, "", model.StateStart)
	if err != nil {
		return nil, fmt.Errorf("conversation: opening question: %w", err)
	}

	t := &model.Transcript{Rounds: make([]model.Round, 0, o.rounds)}
	for i := 0; i < o.rounds; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("conversation: %w", err)
		}
		round, next, err := o.playRound(ctx, i+1, question)
		if err != nil {
			return nil, err
		}
		t.Rounds = append(t.Rounds, round)
		question = next
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conversation: verdict: %w", err)
	}

	t.FinalVerdict = question
	if o.OnVerdict != nil {
		o.OnVerdict(t.FinalVerdict)
	}
	return t, nil
}

// playRound puts question to the interrogated party and asks the
// interrogator for its next message, which is the verdict after the last
// round.
func (o *Orchestrator) playRound(ctx context.Context, number int, question string) (model.Round, string, error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("round %d", number),
		trace.WithAttributes(attribute.Int("conversation.round", number)))
	defer span.End()

	if o.OnQuestion != nil {
		o.OnQuestion(number, question)
	}

	answer, err := o.interrogated.Answer(ctx, question)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.Round{}, "", fmt.Errorf("conversation: round %d answer: %w", number, err)
	}

	round := model.Round{Number: number, Question: question, Answer: answer}
	o.metrics.RecordRound(ctx)
	if o.OnRound != nil {
		o.OnRound(round)
	}

	state := model.StateMiddle
	if number == o.rounds {
		state = model.StateEnd
	}
	next, err := o.interrogator.Interrogate(ctx, answer, state)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.Round{}, "", fmt.Errorf("conversation: round %d %s message: %w", number, state, err)
	}
	return round, next, nil
}

func degraded(t *model.Transcript) bool {
	if backend.IsSentinel(t.FinalVerdict) {
		return true
	}
	for _, r := range t.Rounds {
		if backend.IsSentinel(r.Question) || backend.IsSentinel(r.Answer) {
			return true
		}
	}
	return false
}
