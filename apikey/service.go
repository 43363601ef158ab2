package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UseCase defines the api key operations
type UseCase interface {
	Create(ctx context.Context, input CreateInput) (APIKey, string, error)
	Get(ctx context.Context, id string) (APIKey, error)
	List(ctx context.Context) ([]APIKey, error)
	Delete(ctx context.Context, id string) error
	Authenticate(ctx context.Context, value string) (APIKey, error)
}

// CreateInput is the caller-controlled part of a new key
type CreateInput struct {
	Name        string
	Permissions []string
	ExpiresAt   *time.Time
}

type Service struct {
	Repo Repository
	Now  func() time.Time
}

// NewService creates a new api key service
func NewService(repo Repository) *Service {
	return &Service{
		Repo: repo,
		Now:  time.Now,
	}
}

// Create generates a key and returns it with its plain value
// The value cannot be recovered afterwards
func (s *Service) Create(ctx context.Context, input CreateInput) (APIKey, string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return APIKey{}, "", fmt.Errorf("name is required: %w", ErrInvalid)
	}
	now := s.Now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return APIKey{}, "", fmt.Errorf("expiresAt must be in the future: %w", ErrInvalid)
	}

	permissions := input.Permissions
	if len(permissions) == 0 {
		permissions = []string{PermissionWebhooks}
	}
	for _, p := range permissions {
		if p != PermissionWebhooks && p != PermissionAdmin {
			return APIKey{}, "", fmt.Errorf("unknown permission %q: %w", p, ErrInvalid)
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return APIKey{}, "", fmt.Errorf("generating key: %w", err)
	}
	value := KeyPrefix + base64.RawURLEncoding.EncodeToString(raw)

	key, err := s.Repo.CreateAPIKey(ctx, APIKey{
		ID:          uuid.New().String(),
		Name:        name,
		KeyHash:     Hash(value),
		KeyPrefix:   value[:11] + "...",
		Permissions: permissions,
		Active:      true,
		ExpiresAt:   input.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return APIKey{}, "", fmt.Errorf("creating api key: %w", err)
	}
	return key, value, nil
}

// Get returns a key by id
func (s *Service) Get(ctx context.Context, id string) (APIKey, error) {
	key, found, err := s.Repo.GetAPIKeyByID(ctx, id)
	if err != nil {
		return APIKey{}, fmt.Errorf("getting api key: %w", err)
	}
	if !found {
		return APIKey{}, fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	return key, nil
}

// List returns every key
func (s *Service) List(ctx context.Context) ([]APIKey, error) {
	keys, err := s.Repo.GetAllAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return keys, nil
}

// Delete removes a key
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.Repo.DeleteAPIKey(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if !deleted {
		return fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	return nil
}

// Authenticate resolves a plain key value and stamps LastUsedAt
func (s *Service) Authenticate(ctx context.Context, value string) (APIKey, error) {
	if value == "" {
		return APIKey{}, ErrUnauthorized
	}

	key, found, err := s.Repo.GetAPIKeyByHash(ctx, Hash(value))
	if err != nil {
		return APIKey{}, fmt.Errorf("looking up api key: %w", err)
	}
	now := s.Now()
	if !found || !key.Usable(now) {
		return APIKey{}, ErrUnauthorized
	}

	key.LastUsedAt = &now
	key.UpdatedAt = now
	if _, err := s.Repo.UpdateAPIKey(ctx, key); err != nil {
		return APIKey{}, fmt.Errorf("updating api key: %w", err)
	}
	return key, nil
}

// Hash returns the hex SHA-256 of a key value
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
