package storage

import (
	"context"
	"fmt"

	"github.com/marcelsud/webhook-dispatch/apikey"
	"github.com/marcelsud/webhook-dispatch/config"
	"github.com/marcelsud/webhook-dispatch/storage/memory"
	"github.com/marcelsud/webhook-dispatch/storage/redis"
	"github.com/marcelsud/webhook-dispatch/webhook"
)

// Backend is everything the binaries need from one store
type Backend interface {
	webhook.Store
	apikey.Repository
}

// Open returns the store selected by STORE_DRIVER
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StoreDriver {
	case "memory":
		return memory.NewStore(), nil
	case "redis":
		store, err := redis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("opening redis store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
