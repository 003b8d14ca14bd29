package backend

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/reverse-turing/internal/model"
)

var tracer = otel.Tracer("reverse-turing/backend")

// startChatSpan opens a GenAI client span named "chat {model}" and records
// the request messages.
func startChatSpan(ctx context.Context, provider, modelName string, req Request) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "chat "+modelName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", provider),
			attribute.String("gen_ai.request.model", modelName),
			attribute.Int64("gen_ai.request.max_tokens", req.MaxTokens),

			// Langfuse: show as a generation.
			attribute.String("langfuse.observation.type", "generation"),
		),
	)

	input := req.Messages
	if req.System != "" {
		input = append([]model.Message{model.SystemMessage(req.System)}, req.Messages...)
	}
	if data, err := json.Marshal(input); err == nil {
		span.SetAttributes(attribute.String("gen_ai.input.messages", string(data)))
	}
	return ctx, span
}

// recordCompletion adds the response attributes to span.
func recordCompletion(span trace.Span, responseModel string, c *Completion) {
	span.SetAttributes(
		attribute.String("gen_ai.response.model", responseModel),
		attribute.Int64("gen_ai.usage.input_tokens", c.Usage.InputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", c.Usage.OutputTokens),
	)
	if c.FinishReason != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{c.FinishReason}))
	}
	output := []model.Message{model.AssistantMessage(c.Text)}
	if data, err := json.Marshal(output); err == nil {
		span.SetAttributes(attribute.String("gen_ai.output.messages", string(data)))
	}
}

// recordFailure marks span as failed with the given error.type.
func recordFailure(span trace.Span, errType string, err error) {
	span.SetAttributes(attribute.String("error.type", errType))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
