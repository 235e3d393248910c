package idempotency

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/inventory-ledger/pkg/logging"
	"github.com/wms-platform/inventory-ledger/pkg/metrics"
)

const (
	DefaultMaxKeyLength = 255

	// DefaultLockTimeout is how long a running request holds its key before the lock is considered stale
	DefaultLockTimeout = 30 * time.Second

	DefaultRetentionPeriod = 24 * time.Hour

	// DefaultMaxResponseSize caps cached response bodies (1MB)
	DefaultMaxResponseSize = 1 * 1024 * 1024
)

// Config holds configuration for the idempotency middleware
type Config struct {
	ServiceName string
	Repository  KeyRepository

	// RequireKey rejects mutating requests without an Idempotency-Key
	RequireKey bool

	// ScopeExtractor optionally scopes keys per caller, e.g. by actor id
	ScopeExtractor func(*gin.Context) string

	MaxKeyLength    int
	LockTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxResponseSize int

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns a default configuration for the given service
func DefaultConfig(serviceName string, repository KeyRepository, logger *logging.Logger, m *metrics.Metrics) *Config {
	return &Config{
		ServiceName:     serviceName,
		Repository:      repository,
		MaxKeyLength:    DefaultMaxKeyLength,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
		Logger:          logger,
		Metrics:         m,
	}
}

// ConsumerConfig holds configuration for consumer-side message deduplication
type ConsumerConfig struct {
	ServiceName     string
	Topic           string
	ConsumerGroup   string
	Repository      MessageRepository
	RetentionPeriod time.Duration
	Logger          *logging.Logger
	Metrics         *metrics.Metrics
}

// DefaultConsumerConfig returns a default consumer configuration
func DefaultConsumerConfig(serviceName, topic, consumerGroup string, repository MessageRepository, logger *logging.Logger) *ConsumerConfig {
	return &ConsumerConfig{
		ServiceName:     serviceName,
		Topic:           topic,
		ConsumerGroup:   consumerGroup,
		Repository:      repository,
		RetentionPeriod: 7 * 24 * time.Hour,
		Logger:          logger,
	}
}
