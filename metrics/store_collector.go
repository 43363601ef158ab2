package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/breaker"
)

// StoreCollector implements Collector over any webhook.Store
type StoreCollector struct {
	store   webhook.Store
	breaker *breaker.Breaker
	Now     func() time.Time
}

// NewStoreCollector creates a collector, br may be nil
func NewStoreCollector(store webhook.Store, br *breaker.Breaker) *StoreCollector {
	return &StoreCollector{
		store:   store,
		breaker: br,
		Now:     time.Now,
	}
}

// Collect gathers all metrics
func (c *StoreCollector) Collect(ctx context.Context) (Metrics, error) {
	queueLengths, err := c.GetQueueLengths(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting queue lengths: %w", err)
	}

	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting throughput: %w", err)
	}

	breakers, err := c.GetBreakerStates(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting breaker states: %w", err)
	}

	workers, err := c.GetActiveWorkers(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting active workers: %w", err)
	}

	return Metrics{
		QueueLengths:  queueLengths,
		StatusCounts:  statusCounts,
		Throughput:    throughput,
		BreakerStates: breakers,
		Workers:       workers,
		Timestamp:     c.Now(),
	}, nil
}

// GetQueueLengths returns the live and dead-letter queue sizes
func (c *StoreCollector) GetQueueLengths(ctx context.Context) (map[string]int64, error) {
	items, err := c.store.GetQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting queue: %w", err)
	}
	dead, err := c.store.GetDeadLetterQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting dead-letter queue: %w", err)
	}
	return map[string]int64{
		"pending":     int64(len(items)),
		"dead_letter": int64(len(dead)),
	}, nil
}

// GetStatusCounts returns recorded deliveries grouped by status
func (c *StoreCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts := map[string]int64{
		webhook.Pending.String(): 0,
		webhook.Success.String(): 0,
		webhook.Failed.String():  0,
	}

	deliveries, err := c.store.GetAllDeliveries(ctx, webhook.DeliveryFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	for _, d := range deliveries {
		if _, ok := counts[d.Status.String()]; ok {
			counts[d.Status.String()]++
		}
	}
	return counts, nil
}

// GetThroughput counts successful deliveries over 1, 5 and 15 minute windows
func (c *StoreCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	now := c.Now()
	oneMinuteAgo := now.Add(-1 * time.Minute)
	fiveMinutesAgo := now.Add(-5 * time.Minute)
	fifteenMinutesAgo := now.Add(-15 * time.Minute)

	deliveries, err := c.store.GetAllDeliveries(ctx, webhook.DeliveryFilter{Status: webhook.Success})
	if err != nil {
		return ThroughputMetrics{}, fmt.Errorf("listing deliveries: %w", err)
	}

	var tp ThroughputMetrics
	for _, d := range deliveries {
		if d.CreatedAt.Before(fifteenMinutesAgo) {
			continue
		}
		tp.LastFifteenMinutes++
		if !d.CreatedAt.Before(fiveMinutesAgo) {
			tp.LastFiveMinutes++
			if !d.CreatedAt.Before(oneMinuteAgo) {
				tp.LastMinute++
			}
		}
	}
	return tp, nil
}

// GetBreakerStates counts destinations per circuit state
func (c *StoreCollector) GetBreakerStates(ctx context.Context) (map[string]int64, error) {
	states := map[string]int64{
		breaker.Closed.String():   0,
		breaker.Open.String():     0,
		breaker.HalfOpen.String(): 0,
	}
	if c.breaker == nil {
		return states, nil
	}
	for _, s := range c.breaker.AllStats() {
		states[s.State.String()]++
	}
	return states, nil
}

// GetActiveWorkers returns runners with a live heartbeat, empty when the store keeps none
func (c *StoreCollector) GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error) {
	hb, ok := c.store.(webhook.HeartbeatStore)
	if !ok {
		return []WorkerInfo{}, nil
	}

	heartbeats, err := hb.GetActiveWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting heartbeats: %w", err)
	}
	workers := make([]WorkerInfo, 0, len(heartbeats))
	for _, h := range heartbeats {
		workers = append(workers, WorkerInfo{
			WorkerID:      h.WorkerID,
			Status:        h.Status,
			LastHeartbeat: h.LastHeartbeat,
		})
	}
	return workers, nil
}
