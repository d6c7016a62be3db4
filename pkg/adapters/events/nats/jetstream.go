// Package nats implements the event bus on NATS JetStream.
//
// Every topic maps to the subject "<topic>.<detailType>" inside a single
// stream. Subscribers use one durable consumer per topic and consumer group,
// so replicas of the service share the work.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aescanero/costume-orders/pkg/adapters/events/codec"
	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/aescanero/costume-orders/pkg/ports"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const headerContentType = "Content-Type"

// JetStreamEventBus implements EventBus using NATS JetStream
type JetStreamEventBus struct {
	js            jetstream.JetStream
	stream        string
	codec         codec.Codec
	consumerGroup string
	logger        *zap.Logger

	mu       sync.Mutex
	consumes []jetstream.ConsumeContext
}

// NewJetStreamEventBus creates the stream for topics if needed and returns
// a bus bound to it. The connection is owned by the caller.
func NewJetStreamEventBus(ctx context.Context, nc *nats.Conn, stream string, topics []string, c codec.Codec, consumerGroup string, logger *zap.Logger) (*JetStreamEventBus, error) {
	if nc == nil {
		return nil, errors.New("nats connection cannot be nil")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	subjects := make([]string, 0, len(topics))
	for _, topic := range topics {
		subjects = append(subjects, topic+".>")
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  subjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	}); err != nil {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", stream, err)
	}

	logger.Info("jetstream stream ready",
		zap.String("stream", stream),
		zap.Strings("subjects", subjects))

	return &JetStreamEventBus{
		js:            js,
		stream:        stream,
		codec:         c,
		consumerGroup: consumerGroup,
		logger:        logger,
	}, nil
}

// Publish sends the event and waits for the stream acknowledgement.
// The event id doubles as the JetStream message id, so a retried publish
// is deduplicated by the server.
func (b *JetStreamEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	data, err := b.codec.Marshal(event)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(subjectFor(topic, event.Type))
	msg.Data = data
	msg.Header.Set(headerContentType, b.codec.ContentType())

	ack, err := b.js.PublishMsg(ctx, msg, jetstream.WithMsgID(event.ID))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: publish %s: %w", domain.ErrDelivery, msg.Subject, err)
	}

	b.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("order_id", event.Detail.ID),
		zap.String("subject", msg.Subject),
		zap.Uint64("sequence", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate))

	return nil
}

// Subscribe attaches handler to the durable consumer of topic. Delivery
// stops when ctx is cancelled or the bus is closed.
func (b *JetStreamEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.stream, jetstream.ConsumerConfig{
		Durable:       durableName(b.consumerGroup, topic),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: topic + ".>",
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer for %s: %w", topic, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		b.handle(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", topic, err)
	}

	b.mu.Lock()
	b.consumes = append(b.consumes, cc)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()

	b.logger.Info("subscribed to jetstream consumer",
		zap.String("stream", b.stream),
		zap.String("topic", topic),
		zap.String("consumer_group", b.consumerGroup))

	return nil
}

func (b *JetStreamEventBus) handle(ctx context.Context, msg jetstream.Msg, handler ports.EventHandler) {
	log := b.logger.With(zap.String("subject", msg.Subject()))

	c, err := codec.ForContentType(msg.Headers().Get(headerContentType))
	if err != nil {
		log.Error("terminating event with unknown content type", zap.Error(err))
		_ = msg.Term()
		return
	}

	event, err := c.Unmarshal(msg.Data())
	if err != nil {
		log.Error("terminating undecodable event", zap.Error(err))
		_ = msg.Term()
		return
	}

	if err := handler(ctx, event); err != nil {
		log.Error("handler error, redelivering",
			zap.String("event_id", event.ID),
			zap.Error(err))
		_ = msg.Nak()
		return
	}

	if err := msg.Ack(); err != nil {
		log.Error("failed to acknowledge message", zap.Error(err))
	}
}

// Close stops all consumers
func (b *JetStreamEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cc := range b.consumes {
		cc.Stop()
	}
	b.consumes = nil
	return nil
}

func subjectFor(topic string, eventType domain.EventType) string {
	return topic + "." + string(eventType)
}

// durableName builds a consumer name; JetStream forbids dots in it.
func durableName(group, topic string) string {
	return strings.NewReplacer(".", "_", ">", "_", "*", "_").Replace(group + "_" + topic)
}
