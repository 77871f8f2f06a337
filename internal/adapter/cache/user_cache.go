package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "user-crud-service/internal/domain/user"
)

// UserCache defines the interface for user caching operations.
//
// Every write to a user stamps a new generation token. A reader takes the
// token before loading from the database and fills the cache only if the
// token is unchanged, so a load that raced a write never lands in the cache.
type UserCache interface {
	// Get retrieves a user from cache by ID.
	// Returns nil if user is not found in cache.
	Get(ctx context.Context, id int64) (*domain.User, error)

	// Generation returns the current generation token of a user, or "" if none is recorded.
	Generation(ctx context.Context, id int64) (string, error)

	// SetIfGeneration stores a user with the configured TTL if its generation is still gen.
	// It reports whether the user was stored.
	SetIfGeneration(ctx context.Context, user *domain.User, gen string) (bool, error)

	// Delete removes a user from cache by ID and stamps a new generation.
	Delete(ctx context.Context, id int64) error
}

// generationTTL bounds how long generation keys outlive the last write
const generationTTL = 24 * time.Hour

// setIfGenerationScript: KEYS[1] user key, KEYS[2] generation key,
// ARGV[1] expected generation, ARGV[2] payload, ARGV[3] TTL in milliseconds.
var setIfGenerationScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[2]) or ''
	if current ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
`)

// invalidateScript: KEYS[1] user key, KEYS[2] generation key,
// ARGV[1] new generation, ARGV[2] generation TTL in milliseconds.
var invalidateScript = redis.NewScript(`
	redis.call('DEL', KEYS[1])
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
	return 1
`)

// cachedUser is the JSON shape stored in Redis. The password hash is not cached.
type cachedUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RedisUserCache implements UserCache using Redis as the backing store.
type RedisUserCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisUserCache creates a new Redis-backed user cache.
func NewRedisUserCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisUserCache {
	return &RedisUserCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// Key returns the Redis key for a user ID.
func Key(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

// GenerationKey returns the Redis key holding the generation token of a user ID.
func GenerationKey(id int64) string {
	return fmt.Sprintf("user:%d:gen", id)
}

// Get retrieves a user from Redis cache.
func (c *RedisUserCache) Get(ctx context.Context, id int64) (*domain.User, error) {
	data, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("cache miss", zap.Int64("user_id", id))
		return nil, nil
	}
	if err != nil {
		c.log.Error("failed to get from cache", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		c.log.Error("failed to unmarshal cached user", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}

	c.log.Debug("cache hit", zap.Int64("user_id", id))
	return &domain.User{ID: cu.ID, Name: cu.Name, Email: cu.Email}, nil
}

// Generation returns the generation token of a user.
func (c *RedisUserCache) Generation(ctx context.Context, id int64) (string, error) {
	gen, err := c.client.Get(ctx, GenerationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		c.log.Error("failed to get cache generation", zap.Int64("user_id", id), zap.Error(err))
		return "", err
	}
	return gen, nil
}

// SetIfGeneration stores a user in Redis cache with TTL unless it was written since gen was read.
func (c *RedisUserCache) SetIfGeneration(ctx context.Context, user *domain.User, gen string) (bool, error) {
	if user == nil {
		return false, errors.New("cannot cache nil user")
	}

	data, err := json.Marshal(cachedUser{ID: user.ID, Name: user.Name, Email: user.Email})
	if err != nil {
		c.log.Error("failed to marshal user for cache", zap.Int64("user_id", user.ID), zap.Error(err))
		return false, err
	}

	stored, err := setIfGenerationScript.Run(ctx, c.client,
		[]string{Key(user.ID), GenerationKey(user.ID)},
		gen, data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.log.Error("failed to set cache", zap.Int64("user_id", user.ID), zap.Error(err))
		return false, err
	}

	if stored == 0 {
		c.log.Debug("user written during load, not cached", zap.Int64("user_id", user.ID))
		return false, nil
	}

	c.log.Debug("cached user", zap.Int64("user_id", user.ID), zap.Duration("ttl", c.ttl))
	return true, nil
}

// Delete removes a user from Redis cache and stamps a new generation.
func (c *RedisUserCache) Delete(ctx context.Context, id int64) error {
	err := invalidateScript.Run(ctx, c.client,
		[]string{Key(id), GenerationKey(id)},
		uuid.NewString(), generationTTL.Milliseconds(),
	).Err()
	if err != nil {
		c.log.Error("failed to delete from cache", zap.Int64("user_id", id), zap.Error(err))
		return err
	}

	c.log.Debug("deleted from cache", zap.Int64("user_id", id))
	return nil
}
