package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/redis/go-redis/v9"
)

const (
	heartbeatPrefix = "worker:heartbeat"
	heartbeatTTL    = 60 * time.Second
)

type heartbeatRecord struct {
	WorkerID      string    `json:"worker_id"`
	Status        string    `json:"status"` // "idle", "processing"
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// SetWorkerHeartbeat stores or refreshes a runner's heartbeat
// The key expires after 60 seconds, a runner that stops beating drops out on its own
func (s *Store) SetWorkerHeartbeat(ctx context.Context, workerID, status string) error {
	data, err := json.Marshal(heartbeatRecord{
		WorkerID:      workerID,
		Status:        status,
		LastHeartbeat: s.now(),
	})
	if err != nil {
		return fmt.Errorf("marshaling heartbeat: %w", err)
	}

	key := fmt.Sprintf("%s:%s", heartbeatPrefix, workerID)
	if err := s.client.Set(ctx, key, data, heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("setting heartbeat: %w", err)
	}
	return nil
}

// GetActiveWorkers returns every runner with a live heartbeat
func (s *Store) GetActiveWorkers(ctx context.Context) ([]webhook.WorkerHeartbeat, error) {
	pattern := heartbeatPrefix + ":*"
	var workers []webhook.WorkerHeartbeat

	var cursor uint64
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning worker keys: %w", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				// Expired between scan and get
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("getting worker heartbeat: %w", err)
			}

			var rec heartbeatRecord
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				continue
			}
			workers = append(workers, webhook.WorkerHeartbeat(rec))
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	sort.Slice(workers, func(i, j int) bool { return workers[i].WorkerID < workers[j].WorkerID })
	return workers, nil
}
