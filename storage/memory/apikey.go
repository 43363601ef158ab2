package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/marcelsud/webhook-dispatch/apikey"
)

// CreateAPIKey stores a new key
func (s *Store) CreateAPIKey(ctx context.Context, key apikey.APIKey) (apikey.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apiKeys[key.ID]; exists {
		return apikey.APIKey{}, fmt.Errorf("api key %s already exists", key.ID)
	}
	key.Permissions = slices.Clone(key.Permissions)
	s.apiKeys[key.ID] = key
	return key, nil
}

// GetAPIKeyByID returns a key by id
func (s *Store) GetAPIKeyByID(ctx context.Context, id string) (apikey.APIKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.apiKeys[id]
	return key, ok, nil
}

// GetAPIKeyByHash returns the key whose value hashes to hash
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (apikey.APIKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.apiKeys {
		if key.KeyHash == hash {
			return key, true, nil
		}
	}
	return apikey.APIKey{}, false, nil
}

// GetAllAPIKeys returns every key, oldest first
func (s *Store) GetAllAPIKeys(ctx context.Context) ([]apikey.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]apikey.APIKey, 0, len(s.apiKeys))
	for _, key := range s.apiKeys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.Before(keys[j].CreatedAt)
		}
		return keys[i].ID < keys[j].ID
	})
	return keys, nil
}

// UpdateAPIKey replaces a stored key
func (s *Store) UpdateAPIKey(ctx context.Context, key apikey.APIKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apiKeys[key.ID]; !ok {
		return false, nil
	}
	s.apiKeys[key.ID] = key
	return true, nil
}

// DeleteAPIKey removes a key
func (s *Store) DeleteAPIKey(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apiKeys[id]; !ok {
		return false, nil
	}
	delete(s.apiKeys, id)
	return true, nil
}
