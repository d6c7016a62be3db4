package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aescanero/costume-orders/internal/config"
	"github.com/aescanero/costume-orders/pkg/adapters/events/codec"
	eventsmemory "github.com/aescanero/costume-orders/pkg/adapters/events/memory"
	eventsnats "github.com/aescanero/costume-orders/pkg/adapters/events/nats"
	eventsredis "github.com/aescanero/costume-orders/pkg/adapters/events/redis"
	storagememory "github.com/aescanero/costume-orders/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/costume-orders/pkg/adapters/storage/redis"
	storagesqlite "github.com/aescanero/costume-orders/pkg/adapters/storage/sqlite"
	"github.com/aescanero/costume-orders/pkg/ports"

	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backend bundles an adapter with its health check and cleanup
type backend[T any] struct {
	value T
	check func(ctx context.Context) error
	close func() error
}

func noCheck(context.Context) error { return nil }
func noClose() error                { return nil }

func newRedisClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

func openStore(cfg *config.Config, redisClient *goredis.Client, logger *zap.Logger) (backend[ports.OrderStore], error) {
	switch cfg.Store.Backend {
	case "redis":
		store := storageredis.NewOrderStore(redisClient, cfg.Redis.OrderTTL, logger)
		return backend[ports.OrderStore]{value: store, check: store.Ping, close: noClose}, nil

	case "sqlite":
		store, err := storagesqlite.Open(cfg.Store.SQLitePath, logger)
		if err != nil {
			return backend[ports.OrderStore]{}, err
		}
		return backend[ports.OrderStore]{value: store, check: noCheck, close: store.Close}, nil

	case "memory":
		logger.Warn("using in-memory order store, orders are lost on restart")
		return backend[ports.OrderStore]{value: storagememory.NewInMemoryOrderStore(), check: noCheck, close: noClose}, nil

	default:
		return backend[ports.OrderStore]{}, fmt.Errorf("unsupported order store: %s", cfg.Store.Backend)
	}
}

func openBus(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, logger *zap.Logger) (backend[ports.EventBus], error) {
	c, err := codec.New(cfg.Events.Codec)
	if err != nil {
		return backend[ports.EventBus]{}, err
	}

	switch cfg.Events.Backend {
	case "redis":
		host, _ := os.Hostname()
		consumer := fmt.Sprintf("%s-%d", host, os.Getpid())
		bus := eventsredis.NewStreamsEventBus(redisClient, c, cfg.Events.ConsumerGroup, consumer, logger)
		return backend[ports.EventBus]{
			value: bus,
			check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			close: bus.Close,
		}, nil

	case "nats":
		nc, err := nats.Connect(cfg.Events.NATSURL, nats.Name(cfg.Tracing.ServiceName))
		if err != nil {
			return backend[ports.EventBus]{}, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Events.NATSURL, err)
		}
		bus, err := eventsnats.NewJetStreamEventBus(ctx, nc, cfg.Events.NATSStream,
			[]string{cfg.Events.Topic}, c, cfg.Events.ConsumerGroup, logger)
		if err != nil {
			nc.Close()
			return backend[ports.EventBus]{}, err
		}
		return backend[ports.EventBus]{
			value: bus,
			check: func(context.Context) error {
				if !nc.IsConnected() {
					return fmt.Errorf("nats connection is %s", nc.Status())
				}
				return nil
			},
			close: func() error {
				err := bus.Close()
				nc.Close()
				return err
			},
		}, nil

	case "memory":
		bus := eventsmemory.NewInMemoryEventBus()
		return backend[ports.EventBus]{value: bus, check: noCheck, close: bus.Close}, nil

	default:
		return backend[ports.EventBus]{}, fmt.Errorf("unsupported event bus: %s", cfg.Events.Backend)
	}
}
