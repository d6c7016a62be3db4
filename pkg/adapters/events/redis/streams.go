package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/costume-orders/pkg/adapters/events/codec"
	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/aescanero/costume-orders/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	fieldData        = "data"
	fieldContentType = "content_type"
)

// StreamsEventBus implements EventBus using Redis Streams
type StreamsEventBus struct {
	client        redis.Cmdable
	codec         codec.Codec
	logger        *zap.Logger
	consumerGroup string
	consumerName  string
	block         time.Duration

	// Pending entries idle longer than claimIdle are claimed and handed to
	// the handler again, checked every claimInterval.
	claimIdle     time.Duration
	claimInterval time.Duration

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamsEventBus creates a new Redis Streams event bus
func NewStreamsEventBus(client redis.Cmdable, c codec.Codec, consumerGroup, consumerName string, logger *zap.Logger) *StreamsEventBus {
	return &StreamsEventBus{
		client:        client,
		codec:         c,
		logger:        logger,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		block:         time.Second,
		claimIdle:     30 * time.Second,
		claimInterval: 5 * time.Second,
	}
}

// Publish appends the encoded event to the topic stream
func (e *StreamsEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	streamKey := getStreamKey(topic)

	data, err := e.codec.Marshal(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			fieldData:        string(data),
			fieldContentType: e.codec.ContentType(),
		},
	}

	if _, err := e.client.XAdd(ctx, args).Result(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: add to stream %s: %w", domain.ErrDelivery, streamKey, err)
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("order_id", event.Detail.ID),
		zap.String("stream", streamKey))

	return nil
}

// Subscribe joins the consumer group on the topic stream and delivers new
// entries to handler until ctx is cancelled or the bus is closed. Entries
// whose handler failed are redelivered once they have been pending for
// claimIdle.
func (e *StreamsEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	streamKey := getStreamKey(topic)

	err := e.client.XGroupCreateMkStream(ctx, streamKey, e.consumerGroup, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	e.logger.Info("subscribed to event stream",
		zap.String("stream", streamKey),
		zap.String("topic", topic),
		zap.String("consumer_group", e.consumerGroup),
		zap.String("consumer", e.consumerName))

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels = append(e.cancels, cancel)
	e.mu.Unlock()

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.readStream(ctx, streamKey, handler)
	}()
	go func() {
		defer e.wg.Done()
		e.reclaimPending(ctx, streamKey, handler)
	}()

	return nil
}

func (e *StreamsEventBus) readStream(ctx context.Context, streamKey string, handler ports.EventHandler) {
	for ctx.Err() == nil {
		streams, err := e.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    e.consumerGroup,
			Consumer: e.consumerName,
			Streams:  []string{streamKey, ">"},
			Count:    10,
			Block:    e.block,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("failed to read from stream",
				zap.String("stream", streamKey),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				e.processMessage(ctx, streamKey, message, handler)
			}
		}
	}
}

// reclaimPending takes over entries left pending by a failed handler, here
// or in a consumer that died, and runs them through the handler again.
func (e *StreamsEventBus) reclaimPending(ctx context.Context, streamKey string, handler ports.EventHandler) {
	ticker := time.NewTicker(e.claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := "0-0"
		for {
			messages, next, err := e.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   streamKey,
				Group:    e.consumerGroup,
				Consumer: e.consumerName,
				MinIdle:  e.claimIdle,
				Start:    start,
				Count:    10,
			}).Result()
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Error("failed to claim pending entries",
						zap.String("stream", streamKey),
						zap.Error(err))
				}
				break
			}

			for _, message := range messages {
				e.logger.Info("redelivering pending entry",
					zap.String("stream", streamKey),
					zap.String("message_id", message.ID))
				e.processMessage(ctx, streamKey, message, handler)
			}

			if len(messages) == 0 || next == "0-0" || next == "" {
				break
			}
			start = next
		}
	}
}

// processMessage acks undecodable entries so they are not redelivered, and
// leaves entries whose handler failed pending in the group for
// reclaimPending.
func (e *StreamsEventBus) processMessage(ctx context.Context, streamKey string, message redis.XMessage, handler ports.EventHandler) {
	log := e.logger.With(
		zap.String("stream", streamKey),
		zap.String("message_id", message.ID))

	event, err := e.decode(message)
	if err != nil {
		log.Error("dropping undecodable event", zap.Error(err))
		e.ack(ctx, streamKey, message.ID, log)
		return
	}

	if err := handler(ctx, event); err != nil {
		log.Error("handler error",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}

	e.ack(ctx, streamKey, message.ID, log)
}

func (e *StreamsEventBus) decode(message redis.XMessage) (domain.Event, error) {
	data, ok := message.Values[fieldData].(string)
	if !ok {
		return domain.Event{}, fmt.Errorf("message has no %q field", fieldData)
	}
	contentType, _ := message.Values[fieldContentType].(string)

	c, err := codec.ForContentType(contentType)
	if err != nil {
		return domain.Event{}, err
	}
	return c.Unmarshal([]byte(data))
}

func (e *StreamsEventBus) ack(ctx context.Context, streamKey, id string, log *zap.Logger) {
	if err := e.client.XAck(ctx, streamKey, e.consumerGroup, id).Err(); err != nil {
		log.Error("failed to acknowledge message", zap.Error(err))
	}
}

// Close stops all readers. The Redis client is closed by the caller.
func (e *StreamsEventBus) Close() error {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.cancels = nil
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

func getStreamKey(topic string) string {
	return fmt.Sprintf("orders:events:%s", topic)
}
