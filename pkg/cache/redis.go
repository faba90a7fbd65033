package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/logflow/ptalign/pkg/align"
	"github.com/logflow/ptalign/pkg/config"
	"github.com/logflow/ptalign/pkg/errors"
)

// RedisConfig configures the Redis alignment store.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all keys (e.g., "ptalign:")
	Prefix string

	// TTL is the time-to-live for stored alignments (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "ptalign:",
		TTL:      7 * 24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisConfigFrom maps the cache section of the configuration file.
func RedisConfigFrom(c config.CacheConfig) RedisConfig {
	cfg := DefaultRedisConfig(c.Redis)
	cfg.Password = c.Password
	cfg.Database = c.DB
	if c.Prefix != "" {
		cfg.Prefix = c.Prefix
	}
	cfg.TTL = c.TTL
	return cfg
}

// RedisStore stores alignment records in Redis as JSON.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.CodeCacheFailed, "failed to connect to Redis").
			WithContext("address", cfg.Address)
	}

	return &RedisStore{cfg: cfg, client: client}, nil
}

func (s *RedisStore) key(k string) string {
	return s.cfg.Prefix + "alignment:" + k
}

// Get loads the record stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*align.Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, errors.CodeCacheFailed, "failed to load alignment from Redis")
	}

	var rec align.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, errors.Wrap(err, errors.CodeCacheFailed, "failed to unmarshal alignment")
	}
	return &rec, true, nil
}

// Put stores rec under key with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, key string, rec *align.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.CodeCacheFailed, "failed to marshal alignment")
	}
	if err := s.client.Set(ctx, s.key(key), data, s.cfg.TTL).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCacheFailed, "failed to save alignment to Redis")
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
