package apikey

import "context"

// Reader provides read operations for api keys
type Reader interface {
	GetAPIKeyByID(ctx context.Context, id string) (APIKey, bool, error)
	// GetAPIKeyByHash looks a key up by the SHA-256 hash of its value
	GetAPIKeyByHash(ctx context.Context, hash string) (APIKey, bool, error)
	GetAllAPIKeys(ctx context.Context) ([]APIKey, error)
}

// Writer provides write operations for api keys
type Writer interface {
	CreateAPIKey(ctx context.Context, key APIKey) (APIKey, error)
	UpdateAPIKey(ctx context.Context, key APIKey) (bool, error)
	DeleteAPIKey(ctx context.Context, id string) (bool, error)
}

type Repository interface {
	Reader
	Writer
}
