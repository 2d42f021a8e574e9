package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsmoney/backend/pkg/cache"
	"whatsmoney/backend/pkg/logger"
	"whatsmoney/backend/shared/redis"
	"whatsmoney/backend/user/models"
	"whatsmoney/backend/user/repository"
)

// ErrNotFound mirrors the repository sentinel for callers that don't want
// to import the repository package
var ErrNotFound = repository.ErrNotFound

// Directory resolves user identities for the messaging core. Lookups are
// served from an in-memory TTL cache with an optional Redis look-aside for
// the hot active-status check on the send path.
type Directory struct {
	repo     repository.UserRepository
	cache    *cache.Cache
	redis    *redis.Client
	redisTTL time.Duration
	log      *logger.Logger
}

// DirectoryOption customizes a Directory
type DirectoryOption func(*Directory)

// WithCache attaches an in-memory lookup cache
func WithCache(c *cache.Cache) DirectoryOption {
	return func(d *Directory) { d.cache = c }
}

// WithRedis attaches a Redis look-aside for active-status checks
func WithRedis(client *redis.Client, ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		d.redis = client
		d.redisTTL = ttl
	}
}

// NewDirectory creates a user directory service
func NewDirectory(repo repository.UserRepository, log *logger.Logger, opts ...DirectoryOption) *Directory {
	d := &Directory{
		repo:     repo,
		log:      log.WithComponent("user.directory"),
		redisTTL: time.Minute,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Get returns the directory entry for a user id
func (d *Directory) Get(ctx context.Context, id uint) (*models.User, error) {
	key := cacheKey(id)
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			if user, ok := v.(*models.User); ok {
				return user, nil
			}
		}
	}

	user, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		d.cache.Set(key, user)
	}
	return user, nil
}

// IsActive reports whether the user exists and may exchange messages.
// A Redis hit avoids the database round trip on the send path; Redis
// failures degrade to a direct lookup.
func (d *Directory) IsActive(ctx context.Context, id uint) (bool, error) {
	key := statusKey(id)
	if d.redis != nil {
		status, err := d.redis.Get(ctx, key)
		if err == nil {
			return status == models.StatusActive, nil
		}
		if !redis.IsNotFound(err) {
			d.log.Warn("redis lookup failed, falling back to database", "error", err.Error())
		}
	}

	user, err := d.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if d.redis != nil {
		if err := d.redis.Set(ctx, key, user.Status, d.redisTTL); err != nil {
			d.log.Warn("failed to populate redis status cache", "error", err.Error())
		}
	}

	return user.Active(), nil
}

func cacheKey(id uint) string {
	return fmt.Sprintf("user:%d", id)
}

func statusKey(id uint) string {
	return fmt.Sprintf("user:status:%d", id)
}
