package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marcelsud/webhook-dispatch/apikey"
	"github.com/redis/go-redis/v9"
)

const (
	apiKeyPrefix     = "apikey"      // String: apikey:{id}
	apiKeyHashPrefix = "apikey:hash" // String: apikey:hash:{sha256} -> id
	apiKeyIndex      = "apikeys"     // ZSet of key ids by created_at
)

func apiKeyKey(id string) string {
	return fmt.Sprintf("%s:%s", apiKeyPrefix, id)
}

func apiKeyHashKey(hash string) string {
	return fmt.Sprintf("%s:%s", apiKeyHashPrefix, hash)
}

// CreateAPIKey stores a new key and its hash index
func (s *Store) CreateAPIKey(ctx context.Context, key apikey.APIKey) (apikey.APIKey, error) {
	data, err := json.Marshal(toAPIKeyRecord(key))
	if err != nil {
		return apikey.APIKey{}, fmt.Errorf("marshaling api key: %w", err)
	}

	ok, err := s.client.SetNX(ctx, apiKeyHashKey(key.KeyHash), key.ID, 0).Result()
	if err != nil {
		return apikey.APIKey{}, fmt.Errorf("indexing api key: %w", err)
	}
	if !ok {
		return apikey.APIKey{}, fmt.Errorf("api key %s already exists", key.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, apiKeyKey(key.ID), data, 0)
		pipe.ZAdd(ctx, apiKeyIndex, redis.Z{Score: score(key.CreatedAt), Member: key.ID})
		return nil
	})
	if err != nil {
		return apikey.APIKey{}, fmt.Errorf("storing api key: %w", err)
	}
	return key, nil
}

// GetAPIKeyByID returns a key by id
func (s *Store) GetAPIKeyByID(ctx context.Context, id string) (apikey.APIKey, bool, error) {
	raw, err := s.client.Get(ctx, apiKeyKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return apikey.APIKey{}, false, nil
	}
	if err != nil {
		return apikey.APIKey{}, false, fmt.Errorf("getting api key: %w", err)
	}

	var rec apiKeyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return apikey.APIKey{}, false, fmt.Errorf("unmarshaling api key: %w", err)
	}
	return rec.apiKey(), true, nil
}

// GetAPIKeyByHash resolves the hash index
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (apikey.APIKey, bool, error) {
	id, err := s.client.Get(ctx, apiKeyHashKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return apikey.APIKey{}, false, nil
	}
	if err != nil {
		return apikey.APIKey{}, false, fmt.Errorf("getting api key index: %w", err)
	}
	return s.GetAPIKeyByID(ctx, id)
}

// GetAllAPIKeys returns every key, oldest first
func (s *Store) GetAllAPIKeys(ctx context.Context) ([]apikey.APIKey, error) {
	ids, err := s.client.ZRange(ctx, apiKeyIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}

	keys := make([]apikey.APIKey, 0, len(ids))
	for _, id := range ids {
		key, found, err := s.GetAPIKeyByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// UpdateAPIKey replaces a stored key, the hash never changes
func (s *Store) UpdateAPIKey(ctx context.Context, key apikey.APIKey) (bool, error) {
	data, err := json.Marshal(toAPIKeyRecord(key))
	if err != nil {
		return false, fmt.Errorf("marshaling api key: %w", err)
	}
	ok, err := s.client.SetXX(ctx, apiKeyKey(key.ID), data, redis.KeepTTL).Result()
	if err != nil {
		return false, fmt.Errorf("updating api key: %w", err)
	}
	return ok, nil
}

// DeleteAPIKey removes a key and its hash index
func (s *Store) DeleteAPIKey(ctx context.Context, id string) (bool, error) {
	key, found, err := s.GetAPIKeyByID(ctx, id)
	if err != nil || !found {
		return false, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, apiKeyKey(id), apiKeyHashKey(key.KeyHash))
		pipe.ZRem(ctx, apiKeyIndex, id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting api key: %w", err)
	}
	return true, nil
}
