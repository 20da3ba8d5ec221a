package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/models"
)

const (
	syncLockKey     = "catalog:sync:lock"
	locationKey     = "catalog:session:location"
	passStatusKey   = "catalog:sync:status"
	sessionCacheTTL = time.Hour
)

// RedisClient guards the single-active-pass invariant with a lock and caches
// session values (primary location) and the last pass status between runs.
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	cfg    *config.RedisConfig
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		cfg:    cfg,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// AcquireSyncLock takes the pass lock. The engine is single active pass at a
// time; overlapping passes would corrupt rate-budget accounting, so the
// scheduler refuses to start while the lock is held.
func (rc *RedisClient) AcquireSyncLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := rc.client.SetNX(ctx, syncLockKey, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	return ok, nil
}

// ReleaseSyncLock releases the pass lock.
func (rc *RedisClient) ReleaseSyncLock(ctx context.Context) error {
	if err := rc.client.Del(ctx, syncLockKey).Err(); err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

// CachedLocationGID returns the cached primary location gid, "" on miss.
func (rc *RedisClient) CachedLocationGID(ctx context.Context) (string, error) {
	gid, err := rc.client.Get(ctx, locationKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cached location: %w", err)
	}
	return gid, nil
}

// SetCachedLocationGID caches the primary location gid for the session TTL.
func (rc *RedisClient) SetCachedLocationGID(ctx context.Context, gid string) error {
	if err := rc.client.Set(ctx, locationKey, gid, sessionCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache location: %w", err)
	}
	return nil
}

// SetPassStatus stores the last pass status for the status API.
func (rc *RedisClient) SetPassStatus(ctx context.Context, status *models.PassStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode pass status: %w", err)
	}
	if err := rc.client.Set(ctx, passStatusKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store pass status: %w", err)
	}
	return nil
}

// GetPassStatus reads the last stored pass status, nil on miss.
func (rc *RedisClient) GetPassStatus(ctx context.Context) (*models.PassStatus, error) {
	data, err := rc.client.Get(ctx, passStatusKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pass status: %w", err)
	}

	var status models.PassStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode pass status: %w", err)
	}
	return &status, nil
}
