package conversation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
)

var llmTracer = otel.Tracer("wellness-crm.conversation.llm")

// InstrumentedLLMClient traces every completion and records its latency.
type InstrumentedLLMClient struct {
	inner    LLMClient
	provider string
	timeout  time.Duration
	metrics  *metrics.CRMMetrics
}

// NewInstrumentedLLMClient wraps inner. A positive timeout bounds each call;
// hitting it is reported like any other upstream failure.
func NewInstrumentedLLMClient(inner LLMClient, provider string, timeout time.Duration, m *metrics.CRMMetrics) *InstrumentedLLMClient {
	return &InstrumentedLLMClient{inner: inner, provider: provider, timeout: timeout, metrics: m}
}

func (c *InstrumentedLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	ctx, span := llmTracer.Start(ctx, "conversation.llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	status := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case errors.Is(err, ErrEmptyCompletion):
		status = "empty"
	case err != nil:
		status = "error"
	}
	c.metrics.ObserveLLMLatency(c.provider, status, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, err
	}
	span.SetAttributes(
		attribute.Int("llm.tokens.input", int(resp.Usage.InputTokens)),
		attribute.Int("llm.tokens.output", int(resp.Usage.OutputTokens)),
	)
	return resp, nil
}
