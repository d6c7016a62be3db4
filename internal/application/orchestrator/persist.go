package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/aescanero/costume-orders/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// StepOutcome is the internal result of a workflow step.
type StepOutcome struct {
	Succeeded bool
	Attempts  int
	LastError domain.ErrorKind

	// Err is the last underlying error, for logs only.
	Err error
}

func succeeded(attempts int) StepOutcome {
	return StepOutcome{Succeeded: true, Attempts: attempts}
}

func failed(kind domain.ErrorKind, attempts int, err error) StepOutcome {
	return StepOutcome{Attempts: attempts, LastError: kind, Err: err}
}

// PersistStep assigns an order id and writes the order to the store.
type PersistStep struct {
	store   ports.OrderWriter
	policy  RetryPolicy
	timeout time.Duration
	tracer  trace.Tracer
	logger  *zap.Logger
	newID   func() string
}

// NewPersistStep creates a persist step. A zero timeout leaves the step
// bounded only by the workflow deadline.
func NewPersistStep(store ports.OrderWriter, policy RetryPolicy, timeout time.Duration, logger *zap.Logger) *PersistStep {
	return &PersistStep{
		store:   store,
		policy:  policy,
		timeout: timeout,
		tracer:  tracer(),
		logger:  logger,
		newID:   func() string { return uuid.New().String() },
	}
}

// Execute validates the input, builds the order and writes it. The returned
// order is nil when the outcome is not successful.
func (s *PersistStep) Execute(ctx context.Context, in domain.WorkflowInput) (StepOutcome, *domain.Order) {
	if err := in.Validate(); err != nil {
		return failed(domain.KindMalformedInput, 0, err), nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	order := domain.NewOrder(s.newID(), in)

	ctx, span := s.tracer.Start(ctx, "orders.persist",
		trace.WithAttributes(attribute.String("order.id", order.ID)))
	defer span.End()

	attempts, err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.store.Put(ctx, order)
	})
	span.SetAttributes(attribute.Int("persist.attempts", attempts))

	if err == nil {
		return succeeded(attempts), order
	}

	kind := classifyStoreError(ctx, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))

	s.logger.Warn("persist step failed",
		zap.String("order_id", order.ID),
		zap.Int("attempts", attempts),
		zap.String("kind", string(kind)),
		zap.Error(err))

	return failed(kind, attempts, err), nil
}

// classifyStoreError maps the last store error to an error kind. Context
// expiry wins over whatever the store reported.
func classifyStoreError(ctx context.Context, err error) domain.ErrorKind {
	switch {
	case ctx.Err() != nil,
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.KindDeadlineExceeded
	case domain.IsTransient(err):
		return domain.KindTransientStore
	default:
		return domain.KindPermanentStore
	}
}
