package queue

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook"
)

// Config holds the retry policy and processing limits
type Config struct {
	// BaseBackoff is the wait before the first retry, doubled on every further retry
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Jitter adds up to this fraction of the delay, uniformly distributed
	Jitter            float64
	DefaultMaxRetries int
	Concurrency       int
	BatchSize         int
	ClaimLease        time.Duration
	BreakerKey        KeyFunc
	Now               func() time.Time
	Rand              func() float64
}

// DefaultConfig returns the default retry policy
func DefaultConfig() Config {
	return Config{
		BaseBackoff:       time.Minute,
		MaxBackoff:        time.Hour,
		Jitter:            0.2,
		DefaultMaxRetries: 3,
		Concurrency:       4,
		BatchSize:         50,
		ClaimLease:        2 * time.Minute,
		BreakerKey:        KeyByWebhook,
		Now:               time.Now,
		Rand:              rand.Float64,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = max(def.MaxBackoff, c.BaseBackoff)
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = def.DefaultMaxRetries
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = def.ClaimLease
	}
	if c.BreakerKey == nil {
		c.BreakerKey = def.BreakerKey
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	if c.Rand == nil {
		c.Rand = def.Rand
	}
	return c
}

// KeyFunc picks the circuit breaker key for an attempt
type KeyFunc func(wh webhook.Webhook, item webhook.QueueItem) string

// KeyByWebhook gives every registration its own circuit
func KeyByWebhook(_ webhook.Webhook, item webhook.QueueItem) string {
	return item.WebhookID
}

// KeyByHost shares one circuit between registrations pointing at the same host
func KeyByHost(wh webhook.Webhook, item webhook.QueueItem) string {
	u, err := url.Parse(wh.URL)
	if err != nil || u.Host == "" {
		return item.WebhookID
	}
	return u.Host
}

// NewKeyFunc resolves a configured key mode: "webhook" or "host"
func NewKeyFunc(mode string) (KeyFunc, error) {
	switch mode {
	case "", "webhook":
		return KeyByWebhook, nil
	case "host":
		return KeyByHost, nil
	default:
		return nil, fmt.Errorf("unknown breaker key mode: %s", mode)
	}
}
