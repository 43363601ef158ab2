package apikey

import (
	"errors"
	"slices"
	"time"
)

const (
	// KeyPrefix starts every generated key value
	KeyPrefix = "wd_"

	PermissionWebhooks = "webhooks"
	PermissionAdmin    = "admin"
)

var (
	ErrNotFound     = errors.New("api key not found")
	ErrUnauthorized = errors.New("invalid api key")
	ErrInvalid      = errors.New("invalid api key request")
)

/* APIKey is a scoped credential for the admin API
 * Only KeyHash is persisted, the plain value leaves the service once, at creation
 */
type APIKey struct {
	ID          string
	Name        string
	KeyHash     string
	KeyPrefix   string
	Permissions []string
	Active      bool
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Usable reports whether the key may authenticate at now
func (k APIKey) Usable(now time.Time) bool {
	if !k.Active {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// Allows reports whether the key grants permission, admin grants everything
func (k APIKey) Allows(permission string) bool {
	return slices.Contains(k.Permissions, PermissionAdmin) || slices.Contains(k.Permissions, permission)
}
