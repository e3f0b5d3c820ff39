package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "kidz:record:"

// RedisStore keeps records as JSON values. Expiry is delegated to Redis TTLs,
// so Sweep is a no-op.
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL of each record; zero keeps records until evicted by Redis policy.
	TTL time.Duration
}

// NewRedisStore dials Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreWithClient(rdb, opts.Prefix, opts.TTL), nil
}

func NewRedisStoreWithClient(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", jobID, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode record %s: %w", jobID, err)
	}
	return &rec, true, nil
}

func (s *RedisStore) Set(ctx context.Context, jobID string, record *Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.prefix+jobID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", jobID, err)
	}
	return nil
}

func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
