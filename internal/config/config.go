package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the orders service
type Config struct {
	HTTPPort int    `env:"ORDERS_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"ORDERS_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Store    StoreConfig
	Redis    RedisConfig
	Events   EventsConfig
	Workflow WorkflowConfig
	Workers  WorkerConfig
	Tracing  TracingConfig

	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// StoreConfig selects the order store backend
type StoreConfig struct {
	Backend    string `env:"ORDER_STORE" envDefault:"redis"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./data/orders.db"`
}

// RedisConfig holds Redis connection configuration. It is used by the
// redis order store and the redis streams bus.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	// -1 disables client retries; the persist step owns the retry policy
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"-1"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// OrderTTL expires stored orders; zero keeps them forever
	OrderTTL time.Duration `env:"REDIS_ORDER_TTL" envDefault:"0s"`
}

// EventsConfig selects the event bus and its wire format
type EventsConfig struct {
	Backend       string `env:"EVENT_BUS" envDefault:"redis"`
	Topic         string `env:"EVENT_TOPIC" envDefault:"order.events"`
	Source        string `env:"EVENT_SOURCE" envDefault:"com.leespiratecostume.orders"`
	Codec         string `env:"EVENT_CODEC" envDefault:"json"`
	ConsumerGroup string `env:"EVENT_CONSUMER_GROUP" envDefault:"orders-consumers"`

	NATSURL    string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSStream string `env:"NATS_STREAM" envDefault:"ORDERS"`
}

// WorkflowConfig holds the order workflow deadlines and retry policy
type WorkflowConfig struct {
	Deadline           time.Duration `env:"WORKFLOW_DEADLINE" envDefault:"30s"`
	PersistStepTimeout time.Duration `env:"PERSIST_STEP_TIMEOUT" envDefault:"20s"`

	PersistMaxAttempts    int           `env:"PERSIST_MAX_ATTEMPTS" envDefault:"3"`
	PersistInitialBackoff time.Duration `env:"PERSIST_INITIAL_BACKOFF" envDefault:"100ms"`
	PersistMaxBackoff     time.Duration `env:"PERSIST_MAX_BACKOFF" envDefault:"2s"`

	PublishMaxAttempts int  `env:"PUBLISH_MAX_ATTEMPTS" envDefault:"1"`
	RequirePublish     bool `env:"WORKFLOW_REQUIRE_PUBLISH" envDefault:"false"`
}

// WorkerConfig holds the event consumer pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"2"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TracingConfig holds the OpenTelemetry exporter settings
type TracingConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"costume-orders"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	switch c.Store.Backend {
	case "redis", "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite order store")
		}
	default:
		return fmt.Errorf("unsupported order store: %s (must be redis, sqlite or memory)", c.Store.Backend)
	}

	switch c.Events.Backend {
	case "redis", "memory":
	case "nats":
		if c.Events.NATSURL == "" || c.Events.NATSStream == "" {
			return fmt.Errorf("nats url and stream are required for the nats event bus")
		}
	default:
		return fmt.Errorf("unsupported event bus: %s (must be redis, nats or memory)", c.Events.Backend)
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Events.Topic == "" {
		return fmt.Errorf("event topic is required")
	}
	if c.Events.Codec != "json" && c.Events.Codec != "msgpack" {
		return fmt.Errorf("unsupported event codec: %s (must be json or msgpack)", c.Events.Codec)
	}

	if c.Workflow.Deadline <= 0 {
		return fmt.Errorf("workflow deadline must be positive")
	}
	if c.Workflow.PersistStepTimeout < 0 {
		return fmt.Errorf("persist step timeout must not be negative")
	}
	if c.Workflow.PersistMaxAttempts < 1 {
		return fmt.Errorf("persist max attempts must be at least 1")
	}
	if c.Workflow.PublishMaxAttempts < 1 {
		return fmt.Errorf("publish max attempts must be at least 1")
	}
	if c.Workflow.PersistMaxBackoff < c.Workflow.PersistInitialBackoff {
		return fmt.Errorf("persist max backoff %s is below initial backoff %s",
			c.Workflow.PersistMaxBackoff, c.Workflow.PersistInitialBackoff)
	}

	if c.Workers.PoolSize < 0 {
		return fmt.Errorf("worker pool size must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend needs the Redis client
func (c *Config) UsesRedis() bool {
	return c.Store.Backend == "redis" || c.Events.Backend == "redis"
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
