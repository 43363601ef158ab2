package metrics

import (
	"context"
	"time"
)

// Metrics represents the current state of the delivery pipeline.
type Metrics struct {
	// QueueLengths maps queue name ("pending", "dead_letter") to its size
	QueueLengths map[string]int64 `json:"queue_lengths"`

	// StatusCounts maps delivery status to the number of recorded deliveries
	StatusCounts map[string]int64 `json:"status_counts"`

	// Throughput counts successful deliveries per time window
	Throughput ThroughputMetrics `json:"throughput"`

	// BreakerStates maps circuit state to the number of destinations in it
	BreakerStates map[string]int64 `json:"breaker_states"`

	Workers []WorkerInfo `json:"workers"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// ThroughputMetrics represents deliveries completed over different time windows.
type ThroughputMetrics struct {
	LastMinute         int64 `json:"last_minute"`
	LastFiveMinutes    int64 `json:"last_five_minutes"`
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// WorkerInfo represents a queue runner with a live heartbeat.
type WorkerInfo struct {
	WorkerID string `json:"worker_id"`

	// Status is "idle" or "processing"
	Status string `json:"status"`

	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Collector defines the interface for collecting metrics from the pipeline.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	GetQueueLengths(ctx context.Context) (map[string]int64, error)
	GetStatusCounts(ctx context.Context) (map[string]int64, error)
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)
	GetBreakerStates(ctx context.Context) (map[string]int64, error)
	GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error)
}
