package orchestrator

import (
	"context"
	"errors"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/aescanero/costume-orders/pkg/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PublishStep emits the OrderCreated event for a persisted order.
type PublishStep struct {
	publisher ports.EventPublisher
	topic     string
	source    string
	policy    RetryPolicy
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewPublishStep creates a publish step. Every error except context expiry
// is retried up to policy.MaxAttempts; the default deployment uses a single
// attempt.
func NewPublishStep(publisher ports.EventPublisher, topic, source string, policy RetryPolicy, logger *zap.Logger) *PublishStep {
	if policy.Retryable == nil {
		policy.Retryable = retryUnlessCancelled
	}
	return &PublishStep{
		publisher: publisher,
		topic:     topic,
		source:    source,
		policy:    policy,
		tracer:    tracer(),
		logger:    logger,
	}
}

// Execute publishes the event. The same envelope, with the same event id,
// is sent on every attempt.
func (s *PublishStep) Execute(ctx context.Context, order *domain.Order) StepOutcome {
	event := domain.NewOrderCreatedEvent(s.source, order)

	ctx, span := s.tracer.Start(ctx, "orders.publish", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("event.id", event.ID),
		attribute.String("event.topic", s.topic)))
	defer span.End()

	attempts, err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, s.topic, event)
	})
	if err == nil {
		s.logger.Debug("order created event published",
			zap.String("order_id", order.ID),
			zap.String("event_id", event.ID))
		return succeeded(attempts)
	}

	kind := domain.KindPublishDelivery
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = domain.KindDeadlineExceeded
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))

	s.logger.Warn("publish step failed",
		zap.String("order_id", order.ID),
		zap.String("event_id", event.ID),
		zap.Int("attempts", attempts),
		zap.String("kind", string(kind)),
		zap.Error(err))

	return failed(kind, attempts, err)
}
