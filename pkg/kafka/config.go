package kafka

import (
	"strings"
	"time"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// Producer settings
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: none, 1: leader, -1: all in-sync replicas

	// Consumer settings
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	CommitInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "inventory-ledger",
		ClientID:      "inventory-ledger",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,

		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // synchronous commits
	}
}

// ParseBrokers splits a comma separated broker list
func ParseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Topics names the topics the ledger produces to and consumes from
var Topics = struct {
	LedgerMovements  string
	OrdersEvents     string
	PurchasingEvents string
}{
	LedgerMovements:  "inventory.ledger.movements",
	OrdersEvents:     "orders.events",
	PurchasingEvents: "purchasing.events",
}
