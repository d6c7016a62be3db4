package orchestrator

import (
	"context"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/aescanero/costume-orders/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/aescanero/costume-orders/internal/application/orchestrator"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// PublishPolicy decides whether a failed publish fails the workflow.
type PublishPolicy int

const (
	// PublishBestEffort records a failed publish and still returns the
	// persisted order.
	PublishBestEffort PublishPolicy = iota
	// PublishRequired turns a failed publish into Failed(publish).
	PublishRequired
)

func (p PublishPolicy) String() string {
	if p == PublishRequired {
		return "required"
	}
	return "best-effort"
}

// Manager runs order creation workflows
type Manager struct {
	persist       *PersistStep
	publish       *PublishStep
	metrics       ports.MetricsCollector
	tracer        trace.Tracer
	logger        *zap.Logger
	deadline      time.Duration
	publishPolicy PublishPolicy
}

// NewManager creates a new orchestrator manager
func NewManager(
	persist *PersistStep,
	publish *PublishStep,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	deadline time.Duration,
	publishPolicy PublishPolicy,
) *Manager {
	return &Manager{
		persist:       persist,
		publish:       publish,
		metrics:       metrics,
		tracer:        tracer(),
		logger:        logger,
		deadline:      deadline,
		publishPolicy: publishPolicy,
	}
}

// CreateOrder runs one workflow execution: persist the order, then publish
// OrderCreated, all before the workflow deadline. It always returns exactly
// one result.
func (m *Manager) CreateOrder(ctx context.Context, in domain.WorkflowInput) *domain.WorkflowResult {
	started := time.Now()
	executionID := uuid.New().String()
	log := m.logger.With(zap.String("execution_id", executionID))

	ctx, span := m.tracer.Start(ctx, "orders.create",
		trace.WithAttributes(attribute.String("execution.id", executionID)))
	defer span.End()

	if m.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.deadline)
		defer cancel()
	}

	state := newStateTracker()
	state.advance(StatePersisting)

	persisted, order := m.persist.Execute(ctx, in)
	if persisted.Attempts > 0 {
		m.metrics.RecordPersistAttempts(outcomeLabel(persisted.Succeeded), persisted.Attempts)
	}
	if !persisted.Succeeded {
		state.fail()
		return m.finish(log, span, started, state, nil, persisted.LastError, persistMessage(persisted))
	}

	log = log.With(zap.String("order_id", order.ID))
	state.advance(StatePublishing)

	if ctx.Err() != nil {
		state.fail()
		return m.finish(log, span, started, state, nil, domain.KindDeadlineExceeded, "workflow deadline exceeded before publish")
	}

	published := m.publish.Execute(ctx, order)
	m.metrics.RecordPublish(outcomeLabel(published.Succeeded))

	switch {
	case published.Succeeded:
		state.advance(StateSucceeded)
		return m.finish(log, span, started, state, domain.Success(order, true), "", "")

	case published.LastError == domain.KindDeadlineExceeded:
		state.fail()
		return m.finish(log, span, started, state, nil, domain.KindDeadlineExceeded, "workflow deadline exceeded during publish")

	case m.publishPolicy == PublishRequired:
		state.fail()
		return m.finish(log, span, started, state, nil, domain.KindPublishDelivery, "order created event could not be delivered")

	default:
		log.Warn("order persisted but not notified",
			zap.String("policy", m.publishPolicy.String()),
			zap.Error(published.Err))
		state.advance(StateSucceeded)
		return m.finish(log, span, started, state, domain.Success(order, false), "", "")
	}
}

// finish builds the caller-facing result and records the execution. When
// result is nil a failure is built from kind and message for the stage the
// state tracker failed in.
func (m *Manager) finish(
	log *zap.Logger,
	span trace.Span,
	started time.Time,
	state *stateTracker,
	result *domain.WorkflowResult,
	kind domain.ErrorKind,
	message string,
) *domain.WorkflowResult {
	duration := time.Since(started)

	if state.State() == StateFailed {
		result = domain.Failed(state.failedStage, kind, message)
		span.SetStatus(codes.Error, string(kind))
		span.SetAttributes(
			attribute.String("workflow.stage", string(state.failedStage)),
			attribute.String("workflow.kind", string(kind)))

		m.metrics.RecordWorkflow("failed", state.failedStage, kind, duration)
		log.Error("order workflow failed",
			zap.String("stage", string(state.failedStage)),
			zap.String("kind", string(kind)),
			zap.Duration("duration", duration))
		return result
	}

	span.SetAttributes(
		attribute.String("order.id", result.Order.ID),
		attribute.Bool("workflow.notified", result.Notified))

	m.metrics.RecordWorkflow("success", "", "", duration)
	log.Info("order workflow succeeded",
		zap.Int("items", len(result.Order.Items)),
		zap.Bool("notified", result.Notified),
		zap.Duration("duration", duration))
	return result
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

// persistMessage describes a persist failure without retry counts or timings.
func persistMessage(o StepOutcome) string {
	switch o.LastError {
	case domain.KindMalformedInput:
		return o.Err.Error()
	case domain.KindTransientStore:
		return "order store unavailable"
	case domain.KindPermanentStore:
		return "order store rejected the order"
	case domain.KindDeadlineExceeded:
		return "workflow deadline exceeded during persist"
	default:
		return "order could not be persisted"
	}
}
