package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "reverse-turing"

// Turn outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Metrics holds the metric instruments. All counters are cumulative and
// every Record method is safe on a nil receiver.
type Metrics struct {
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// Turns is partitioned by provider, role and outcome.
	Turns metric.Int64Counter

	Rounds        metric.Int64Counter
	Conversations metric.Int64Counter
}

// NewMetrics creates all instruments on the global MeterProvider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.InputTokens, err = meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("Total LLM input tokens consumed"),
		metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if m.OutputTokens, err = meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("Total LLM output tokens consumed"),
		metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if m.Turns, err = meter.Int64Counter("turns.total",
		metric.WithDescription("Participant turns partitioned by provider, role and outcome (ok, degraded, failed)")); err != nil {
		return nil, err
	}
	if m.Rounds, err = meter.Int64Counter("rounds.total",
		metric.WithDescription("Completed question/answer rounds")); err != nil {
		return nil, err
	}
	if m.Conversations, err = meter.Int64Counter("conversations.total",
		metric.WithDescription("Conversations partitioned by outcome")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTokens adds one model call's token usage.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, input, output int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	m.InputTokens.Add(ctx, input, attrs)
	m.OutputTokens.Add(ctx, output, attrs)
}

// RecordTurn counts one participant turn.
func (m *Metrics) RecordTurn(ctx context.Context, provider, role, outcome string) {
	if m == nil {
		return
	}
	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("conversation.role", role),
		attribute.String("turn.outcome", outcome),
	))
}

// RecordRound counts one completed round.
func (m *Metrics) RecordRound(ctx context.Context) {
	if m == nil {
		return
	}
	m.Rounds.Add(ctx, 1)
}

// RecordConversation counts one finished conversation.
func (m *Metrics) RecordConversation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Conversations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("conversation.outcome", outcome),
	))
}
