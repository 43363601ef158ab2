package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Store
 * Webhooks live in hashes, everything else is JSON under a string key
 * Sorted sets index each collection by time, queue claims are redislock leases
 */

const (
	webhookPrefix      = "webhook"            // Hash: webhook:{id}
	webhookIndex       = "webhooks"           // ZSet of webhook ids by created_at
	deliveryPrefix     = "delivery"           // String: delivery:{id}
	deliveryIndex      = "deliveries"         // ZSet of delivery ids by created_at
	deliveryByWebhook  = "deliveries:webhook" // ZSet: deliveries:webhook:{webhook_id}
	deliveryByItem     = "deliveries:item"    // ZSet: deliveries:item:{queue_item_id}
	deliveryByIdemKey  = "delivery:idem"      // String: delivery:idem:{key} -> latest delivery id
	idempotencyPrefix  = "idempotency"        // String with TTL: idempotency:{key}
	queueItemPrefix    = "queue:item"         // String: queue:item:{id}
	queueSchedule      = "queue:scheduled"    // ZSet of item ids by scheduled_for
	queueClaimPrefix   = "queue:claim"        // redislock key: queue:claim:{id}
	deadLetterPrefix   = "deadletter"         // String: deadletter:{id}
	deadLetterIndex    = "deadletters"        // ZSet of dead letter ids by created_at
	deliveryIndexLimit = 10000
)

// claimScanFactor bounds how many due ids one ClaimReady pass looks at per claimed slot
const claimScanFactor = 4

var (
	// incrementCounters only touches a webhook hash that still exists
	incrementCounters = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
if tonumber(ARGV[1]) ~= 0 then
	redis.call("HINCRBY", KEYS[1], "delivery_count", ARGV[1])
end
if tonumber(ARGV[2]) ~= 0 then
	redis.call("HINCRBY", KEYS[1], "failure_count", ARGV[2])
end
redis.call("HSET", KEYS[1], "updated_at", ARGV[3])
return 1
`)

	// unlinkIfMatches deletes KEYS[1] only while it still points at ARGV[1]
	unlinkIfMatches = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

type Store struct {
	client *redis.Client
	locker *redislock.Client

	mu     sync.Mutex
	claims map[string]*redislock.Lock

	Now func() time.Time
}

// NewStore connects to Redis and verifies the connection
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return NewStoreWithClient(client), nil
}

// NewStoreWithClient wraps an existing client
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{
		client: client,
		locker: redislock.New(client),
		claims: make(map[string]*redislock.Lock),
		Now:    time.Now,
	}
}

// Client returns the underlying Redis client
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close releases held claims and closes the connection
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	for id, lock := range s.claims {
		_ = lock.Release(ctx)
		delete(s.claims, id)
	}
	s.mu.Unlock()
	return s.client.Close()
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Webhooks

func webhookKey(id string) string {
	return fmt.Sprintf("%s:%s", webhookPrefix, id)
}

func webhookFields(wh webhook.Webhook) (map[string]interface{}, error) {
	events, err := json.Marshal(wh.Events)
	if err != nil {
		return nil, fmt.Errorf("marshaling events: %w", err)
	}
	return map[string]interface{}{
		"id":             wh.ID,
		"url":            wh.URL,
		"events":         string(events),
		"active":         strconv.FormatBool(wh.Active),
		"secret":         wh.Secret,
		"filter":         wh.Filter,
		"delivery_count": wh.DeliveryCount,
		"failure_count":  wh.FailureCount,
		"created_at":     wh.CreatedAt.UnixMilli(),
		"updated_at":     wh.UpdatedAt.UnixMilli(),
	}, nil
}

func parseWebhook(data map[string]string) (webhook.Webhook, error) {
	var events []string
	if raw := data["events"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			return webhook.Webhook{}, fmt.Errorf("unmarshaling events: %w", err)
		}
	}
	active, _ := strconv.ParseBool(data["active"])
	return webhook.Webhook{
		ID:            data["id"],
		URL:           data["url"],
		Events:        events,
		Active:        active,
		Secret:        data["secret"],
		Filter:        data["filter"],
		DeliveryCount: int(parseInt64(data["delivery_count"])),
		FailureCount:  int(parseInt64(data["failure_count"])),
		CreatedAt:     time.UnixMilli(parseInt64(data["created_at"])).UTC(),
		UpdatedAt:     time.UnixMilli(parseInt64(data["updated_at"])).UTC(),
	}, nil
}

// CreateWebhook stores a new registration
func (s *Store) CreateWebhook(ctx context.Context, wh webhook.Webhook) (webhook.Webhook, error) {
	if err := wh.Validate(); err != nil {
		return webhook.Webhook{}, fmt.Errorf("validating webhook: %w", err)
	}
	if wh.ID == "" {
		wh.ID = uuid.New().String()
	}
	now := s.now()
	if wh.CreatedAt.IsZero() {
		wh.CreatedAt = now
	}
	if wh.UpdatedAt.IsZero() {
		wh.UpdatedAt = wh.CreatedAt
	}
	wh.CreatedAt = wh.CreatedAt.Truncate(time.Millisecond)
	wh.UpdatedAt = wh.UpdatedAt.Truncate(time.Millisecond)

	added, err := s.client.ZAddNX(ctx, webhookIndex, redis.Z{Score: score(wh.CreatedAt), Member: wh.ID}).Result()
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("indexing webhook: %w", err)
	}
	if added == 0 {
		return webhook.Webhook{}, fmt.Errorf("webhook %s already exists", wh.ID)
	}

	fields, err := webhookFields(wh)
	if err != nil {
		return webhook.Webhook{}, err
	}
	if err := s.client.HSet(ctx, webhookKey(wh.ID), fields).Err(); err != nil {
		return webhook.Webhook{}, fmt.Errorf("storing webhook: %w", err)
	}
	return wh, nil
}

// GetWebhookByID returns a registration by id
func (s *Store) GetWebhookByID(ctx context.Context, id string) (webhook.Webhook, bool, error) {
	data, err := s.client.HGetAll(ctx, webhookKey(id)).Result()
	if err != nil {
		return webhook.Webhook{}, false, fmt.Errorf("getting webhook: %w", err)
	}
	if len(data) == 0 {
		return webhook.Webhook{}, false, nil
	}
	wh, err := parseWebhook(data)
	if err != nil {
		return webhook.Webhook{}, false, err
	}
	return wh, true, nil
}

// GetAllWebhooks returns the registrations matching filter, oldest first
func (s *Store) GetAllWebhooks(ctx context.Context, filter webhook.WebhookFilter) ([]webhook.Webhook, error) {
	ids, err := s.client.ZRange(ctx, webhookIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing webhook ids: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, webhookKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading webhooks: %w", err)
	}

	result := make([]webhook.Webhook, 0, len(ids))
	for _, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			continue
		}
		wh, err := parseWebhook(data)
		if err != nil {
			return nil, err
		}
		if filter.Matches(wh) {
			result = append(result, wh)
		}
	}
	return result, nil
}

// GetWebhooksByEvent returns the active registrations subscribed to event
func (s *Store) GetWebhooksByEvent(ctx context.Context, event string) ([]webhook.Webhook, error) {
	active := true
	return s.GetAllWebhooks(ctx, webhook.WebhookFilter{Active: &active, Event: event})
}

// UpdateWebhook applies patch and re-validates the result
// Counters are left alone, they are only changed through HINCRBY
func (s *Store) UpdateWebhook(ctx context.Context, id string, patch webhook.WebhookPatch) (webhook.Webhook, bool, error) {
	wh, found, err := s.GetWebhookByID(ctx, id)
	if err != nil || !found {
		return webhook.Webhook{}, found, err
	}

	updated := patch.Apply(wh)
	if err := updated.Validate(); err != nil {
		return webhook.Webhook{}, true, fmt.Errorf("validating webhook: %w", err)
	}
	updated.UpdatedAt = s.now().Truncate(time.Millisecond)

	fields, err := webhookFields(updated)
	if err != nil {
		return webhook.Webhook{}, true, err
	}
	delete(fields, "delivery_count")
	delete(fields, "failure_count")

	if err := s.client.HSet(ctx, webhookKey(id), fields).Err(); err != nil {
		return webhook.Webhook{}, true, fmt.Errorf("updating webhook: %w", err)
	}
	return updated, true, nil
}

// IncrementWebhookCounters adds to the running counters, a missing webhook is ignored
// The existence check and the increments run as one script, a concurrent delete cannot resurrect the hash
func (s *Store) IncrementWebhookCounters(ctx context.Context, id string, deliveries, failures int) error {
	err := incrementCounters.Run(ctx, s.client, []string{webhookKey(id)}, deliveries, failures, s.now().UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("incrementing counters: %w", err)
	}
	return nil
}

// DeleteWebhook removes a registration
func (s *Store) DeleteWebhook(ctx context.Context, id string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, webhookIndex, id)
		pipe.Del(ctx, webhookKey(id))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting webhook: %w", err)
	}
	return removed.Val() > 0, nil
}

// Deliveries

func deliveryKey(id string) string {
	return fmt.Sprintf("%s:%s", deliveryPrefix, id)
}

// RecordDelivery appends to the audit trail
func (s *Store) RecordDelivery(ctx context.Context, d webhook.Delivery) (webhook.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}

	data, err := json.Marshal(toDeliveryRecord(d))
	if err != nil {
		return webhook.Delivery{}, fmt.Errorf("marshaling delivery: %w", err)
	}

	z := redis.Z{Score: score(d.CreatedAt), Member: d.ID}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, deliveryKey(d.ID), data, 0)
		pipe.ZAdd(ctx, deliveryIndex, z)
		pipe.ZAdd(ctx, fmt.Sprintf("%s:%s", deliveryByWebhook, d.WebhookID), z)
		if d.QueueItemID != "" {
			pipe.ZAdd(ctx, fmt.Sprintf("%s:%s", deliveryByItem, d.QueueItemID), z)
		}
		if d.IdempotencyKey != "" {
			pipe.Set(ctx, fmt.Sprintf("%s:%s", deliveryByIdemKey, d.IdempotencyKey), d.ID, 0)
		}
		return nil
	})
	if err != nil {
		return webhook.Delivery{}, fmt.Errorf("storing delivery: %w", err)
	}
	return d, nil
}

// UpdateDelivery overwrites a recorded delivery, indexes are keyed by CreatedAt and stay put
func (s *Store) UpdateDelivery(ctx context.Context, d webhook.Delivery) (bool, error) {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = s.now()
	}
	data, err := json.Marshal(toDeliveryRecord(d))
	if err != nil {
		return false, fmt.Errorf("marshaling delivery: %w", err)
	}

	ok, err := s.client.SetXX(ctx, deliveryKey(d.ID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("updating delivery: %w", err)
	}
	return ok, nil
}

// DeleteDelivery removes a delivery and its index entries
func (s *Store) DeleteDelivery(ctx context.Context, id string) (bool, error) {
	records, err := s.loadDeliveries(ctx, []string{id})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	d := records[0]

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, deliveryKey(id))
		pipe.ZRem(ctx, deliveryIndex, id)
		pipe.ZRem(ctx, fmt.Sprintf("%s:%s", deliveryByWebhook, d.WebhookID), id)
		if d.QueueItemID != "" {
			pipe.ZRem(ctx, fmt.Sprintf("%s:%s", deliveryByItem, d.QueueItemID), id)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting delivery: %w", err)
	}

	if d.IdempotencyKey != "" {
		key := fmt.Sprintf("%s:%s", deliveryByIdemKey, d.IdempotencyKey)
		if err := unlinkIfMatches.Run(ctx, s.client, []string{key}, id).Err(); err != nil {
			return true, fmt.Errorf("unlinking idempotency index: %w", err)
		}
	}
	return true, nil
}

// GetAllDeliveries returns the deliveries matching filter, newest first
func (s *Store) GetAllDeliveries(ctx context.Context, filter webhook.DeliveryFilter) ([]webhook.Delivery, error) {
	index := deliveryIndex
	switch {
	case filter.QueueItemID != "":
		index = fmt.Sprintf("%s:%s", deliveryByItem, filter.QueueItemID)
	case filter.WebhookID != "":
		index = fmt.Sprintf("%s:%s", deliveryByWebhook, filter.WebhookID)
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, deliveryIndexLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing delivery ids: %w", err)
	}

	records, err := s.loadDeliveries(ctx, ids)
	if err != nil {
		return nil, err
	}

	var result []webhook.Delivery
	for _, d := range records {
		if !filter.Matches(d) {
			continue
		}
		result = append(result, d)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) loadDeliveries(ctx context.Context, ids []string) ([]webhook.Delivery, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = deliveryKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading deliveries: %w", err)
	}

	deliveries := make([]webhook.Delivery, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec deliveryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshaling delivery: %w", err)
		}
		deliveries = append(deliveries, rec.delivery())
	}
	return deliveries, nil
}

// GetDeliveryByIdempotencyKey returns the most recent delivery for key
func (s *Store) GetDeliveryByIdempotencyKey(ctx context.Context, key string) (webhook.Delivery, bool, error) {
	id, err := s.client.Get(ctx, fmt.Sprintf("%s:%s", deliveryByIdemKey, key)).Result()
	if errors.Is(err, redis.Nil) {
		return webhook.Delivery{}, false, nil
	}
	if err != nil {
		return webhook.Delivery{}, false, fmt.Errorf("getting idempotency index: %w", err)
	}

	deliveries, err := s.loadDeliveries(ctx, []string{id})
	if err != nil {
		return webhook.Delivery{}, false, err
	}
	if len(deliveries) == 0 {
		return webhook.Delivery{}, false, nil
	}
	return deliveries[0], true, nil
}

// ClaimIdempotencyKey reserves key until ttl elapses, SET NX makes it atomic across processes
func (s *Store) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, fmt.Sprintf("%s:%s", idempotencyPrefix, key), scoreString(s.now()), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming idempotency key: %w", err)
	}
	return ok, nil
}

// ReleaseIdempotencyKey frees key before its ttl elapses
func (s *Store) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, fmt.Sprintf("%s:%s", idempotencyPrefix, key)).Err(); err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}

// Queue

func queueItemKey(id string) string {
	return fmt.Sprintf("%s:%s", queueItemPrefix, id)
}

func (s *Store) putQueueItem(ctx context.Context, pipe redis.Pipeliner, item webhook.QueueItem) error {
	data, err := json.Marshal(toQueueItemRecord(item))
	if err != nil {
		return fmt.Errorf("marshaling queue item: %w", err)
	}
	pipe.Set(ctx, queueItemKey(item.ID), data, 0)
	pipe.ZAdd(ctx, queueSchedule, redis.Z{Score: score(item.ScheduledFor), Member: item.ID})
	return nil
}

func (s *Store) loadQueueItems(ctx context.Context, ids []string) ([]webhook.QueueItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = queueItemKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading queue items: %w", err)
	}

	items := make([]webhook.QueueItem, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec queueItemRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshaling queue item: %w", err)
		}
		items = append(items, rec.item())
	}
	sortQueue(items)
	return items, nil
}

// GetQueue returns every live item in processing order
func (s *Store) GetQueue(ctx context.Context) ([]webhook.QueueItem, error) {
	ids, err := s.client.ZRange(ctx, queueSchedule, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	return s.loadQueueItems(ctx, ids)
}

// Enqueue adds an item to the live queue
func (s *Store) Enqueue(ctx context.Context, item webhook.QueueItem) (webhook.QueueItem, error) {
	now := s.now()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = now
	}

	exists, err := s.client.Exists(ctx, queueItemKey(item.ID)).Result()
	if err != nil {
		return webhook.QueueItem{}, fmt.Errorf("checking queue item: %w", err)
	}
	if exists > 0 {
		return webhook.QueueItem{}, fmt.Errorf("queue item %s already exists", item.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.putQueueItem(ctx, pipe, item)
	})
	if err != nil {
		return webhook.QueueItem{}, fmt.Errorf("enqueueing: %w", err)
	}
	return item, nil
}

// dueIDs returns due ids by ScheduledFor, count <= 0 means all of them
func (s *Store) dueIDs(ctx context.Context, now time.Time, count int64) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, queueSchedule, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   scoreString(now),
		Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing due items: %w", err)
	}
	return ids, nil
}

// DequeueReady returns the items due at now without claiming them
func (s *Store) DequeueReady(ctx context.Context, now time.Time) ([]webhook.QueueItem, error) {
	ids, err := s.dueIDs(ctx, now, 0)
	if err != nil {
		return nil, err
	}
	return s.loadQueueItems(ctx, ids)
}

/* ClaimReady claims up to limit due items that no other process holds
 * Only the limit*claimScanFactor earliest due items are considered, priority orders within them
 * Each item is re-read once its claim is held: one that another process settled in the
 * meantime is released and skipped
 */
func (s *Store) ClaimReady(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]webhook.QueueItem, error) {
	var count int64
	if limit > 0 {
		count = int64(limit * claimScanFactor)
	}
	ids, err := s.dueIDs(ctx, now, count)
	if err != nil {
		return nil, err
	}
	candidates, err := s.loadQueueItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	var claimed []webhook.QueueItem
	for _, candidate := range candidates {
		if limit > 0 && len(claimed) == limit {
			break
		}
		ok, err := s.obtain(ctx, candidate.ID, lease)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}

		current, err := s.loadQueueItems(ctx, []string{candidate.ID})
		if err != nil {
			s.release(ctx, candidate.ID)
			return claimed, err
		}
		if len(current) == 0 || current[0].ScheduledFor.After(now) {
			s.release(ctx, candidate.ID)
			continue
		}
		claimed = append(claimed, current[0])
	}
	return claimed, nil
}

// ClaimQueueItem claims a single item by id
func (s *Store) ClaimQueueItem(ctx context.Context, id string, lease time.Duration) (bool, error) {
	exists, err := s.client.Exists(ctx, queueItemKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("checking queue item: %w", err)
	}
	if exists == 0 {
		return false, nil
	}
	return s.obtain(ctx, id, lease)
}

func (s *Store) obtain(ctx context.Context, id string, lease time.Duration) (bool, error) {
	lock, err := s.locker.Obtain(ctx, fmt.Sprintf("%s:%s", queueClaimPrefix, id), lease, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtaining claim: %w", err)
	}

	s.mu.Lock()
	s.claims[id] = lock
	s.mu.Unlock()
	return true, nil
}

func (s *Store) release(ctx context.Context, id string) {
	s.mu.Lock()
	lock, ok := s.claims[id]
	delete(s.claims, id)
	s.mu.Unlock()

	if ok {
		// An expired lease is already gone
		_ = lock.Release(ctx)
	}
}

// RescheduleQueueItem stores the updated item and releases its claim
func (s *Store) RescheduleQueueItem(ctx context.Context, item webhook.QueueItem) error {
	exists, err := s.client.Exists(ctx, queueItemKey(item.ID)).Result()
	if err != nil {
		return fmt.Errorf("checking queue item: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("queue item %s not found", item.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.putQueueItem(ctx, pipe, item)
	})
	if err != nil {
		return fmt.Errorf("rescheduling: %w", err)
	}
	s.release(ctx, item.ID)
	return nil
}

// RemoveFromQueue deletes a live item
func (s *Store) RemoveFromQueue(ctx context.Context, id string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, queueSchedule, id)
		pipe.Del(ctx, queueItemKey(id))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("removing queue item: %w", err)
	}
	s.release(ctx, id)
	return removed.Val() > 0, nil
}

// Dead letters

func deadLetterKey(id string) string {
	return fmt.Sprintf("%s:%s", deadLetterPrefix, id)
}

func (s *Store) loadDeadLetters(ctx context.Context, ids []string) ([]webhook.DeadLetter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = deadLetterKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading dead letters: %w", err)
	}

	result := make([]webhook.DeadLetter, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec deadLetterRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshaling dead letter: %w", err)
		}
		result = append(result, rec.deadLetter())
	}
	return result, nil
}

// GetDeadLetterQueue returns dead letters, oldest first
func (s *Store) GetDeadLetterQueue(ctx context.Context) ([]webhook.DeadLetter, error) {
	ids, err := s.client.ZRange(ctx, deadLetterIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	return s.loadDeadLetters(ctx, ids)
}

// GetDeadLetter returns one dead letter by id
func (s *Store) GetDeadLetter(ctx context.Context, id string) (webhook.DeadLetter, bool, error) {
	dead, err := s.loadDeadLetters(ctx, []string{id})
	if err != nil {
		return webhook.DeadLetter{}, false, err
	}
	if len(dead) == 0 {
		return webhook.DeadLetter{}, false, nil
	}
	return dead[0], true, nil
}

// MoveToDeadLetter removes item from the live queue and records it as dead in one MULTI
func (s *Store) MoveToDeadLetter(ctx context.Context, item webhook.QueueItem, reason string, attempts []webhook.Delivery) (webhook.DeadLetter, error) {
	now := s.now()
	dl := webhook.DeadLetter{
		ID:               uuid.New().String(),
		QueueItemID:      item.ID,
		WebhookID:        item.WebhookID,
		Event:            item.Event,
		Payload:          item.Payload,
		Priority:         item.Priority,
		MaxRetries:       item.MaxRetries,
		FailureReason:    reason,
		LastAttemptAt:    item.UpdatedAt,
		DeliveryAttempts: attempts,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	data, err := json.Marshal(toDeadLetterRecord(dl))
	if err != nil {
		return webhook.DeadLetter{}, fmt.Errorf("marshaling dead letter: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, queueSchedule, item.ID)
		pipe.Del(ctx, queueItemKey(item.ID))
		pipe.Set(ctx, deadLetterKey(dl.ID), data, 0)
		pipe.ZAdd(ctx, deadLetterIndex, redis.Z{Score: score(now), Member: dl.ID})
		return nil
	})
	if err != nil {
		return webhook.DeadLetter{}, fmt.Errorf("moving to dead letter: %w", err)
	}
	s.release(ctx, item.ID)
	return dl, nil
}

// RemoveFromDeadLetter deletes a dead letter
func (s *Store) RemoveFromDeadLetter(ctx context.Context, id string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, deadLetterIndex, id)
		pipe.Del(ctx, deadLetterKey(id))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("removing dead letter: %w", err)
	}
	return removed.Val() > 0, nil
}

func sortQueue(items []webhook.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.ScheduledFor.Equal(b.ScheduledFor) {
			return a.ScheduledFor.Before(b.ScheduledFor)
		}
		return a.ID < b.ID
	})
}
