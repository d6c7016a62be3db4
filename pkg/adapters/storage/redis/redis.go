package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// transientPrefixes are server replies that clear up on their own
// (restarts, failovers, scripts holding the server).
var transientPrefixes = []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "READONLY"}

// OrderStore implements OrderStore using Redis
type OrderStore struct {
	client redis.Cmdable
	logger *zap.Logger
	ttl    time.Duration
}

// NewOrderStore creates a new Redis order store. A zero ttl keeps orders forever.
// The caller owns the client lifecycle.
func NewOrderStore(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *OrderStore {
	return &OrderStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Put writes the order under its ID. Writing the same order twice is a
// plain overwrite, so a retried write after an ambiguous failure is safe.
func (s *OrderStore) Put(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrPermanentStore)
	}

	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal order: %w", domain.ErrPermanentStore, err)
	}

	if err := s.client.Set(ctx, getOrderKey(order.ID), data, s.ttl).Err(); err != nil {
		return classify("failed to save order", err)
	}

	s.logger.Debug("order saved",
		zap.String("order_id", order.ID),
		zap.Int("items", len(order.Items)))

	return nil
}

// Get retrieves an order by ID
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	data, err := s.client.Get(ctx, getOrderKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, classify("failed to get order", err)
	}

	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal order %s: %w", domain.ErrPermanentStore, id, err)
	}

	return &order, nil
}

// Ping verifies the Redis connection is alive
func (s *OrderStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// classify maps a go-redis error onto the store error taxonomy.
// Context errors are returned as-is so the caller sees its own deadline.
func classify(msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, err)
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		for _, prefix := range transientPrefixes {
			if strings.HasPrefix(redisErr.Error(), prefix) {
				return fmt.Errorf("%w: %s: %w", domain.ErrTransientStore, msg, err)
			}
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrPermanentStore, msg, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransientStore, msg, err)
	}

	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %s: %w", domain.ErrPermanentStore, msg, err)
	}

	// Pool timeouts and unknown client errors are treated as retryable.
	return fmt.Errorf("%w: %s: %w", domain.ErrTransientStore, msg, err)
}

// getOrderKey returns the Redis key for an order
func getOrderKey(id string) string {
	return fmt.Sprintf("orders:order:%s", id)
}
