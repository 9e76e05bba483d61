package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/internal/config"
	"github.com/seenimoa/futurenews/pkg/models"
)

// DefaultRedisKey is the key holding the snapshot document.
const DefaultRedisKey = "futurenews:snapshot"

// NewRedisClient connects to the Redis server described by cfg and checks
// the connection. RedisAddr may also be a redis:// URL.
func NewRedisClient(ctx context.Context, cfg config.StorageConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		opt = &redis.Options{Addr: cfg.RedisAddr}
	}
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opt.DB = cfg.RedisDB
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: connect to redis %s: %w", opt.Addr, err)
	}
	return client, nil
}

// RedisStore keeps the snapshot as one JSON string value.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	opts   options
}

// NewRedisStore creates a store that reads and writes key on client.
func NewRedisStore(client redis.UniversalClient, key string, opts ...Option) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, opts: buildOptions(opts)}
}

// Name returns the store description.
func (s *RedisStore) Name() string { return "redis:" + s.key }

// Load reads the snapshot. A missing key is an empty cache with no cause.
func (s *RedisStore) Load(ctx context.Context) LoadResult {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.opts.log.Info("no snapshot in redis yet", zap.String("key", s.key))
		return LoadResult{}
	}
	if err != nil {
		s.opts.log.Error("reading snapshot failed", zap.String("key", s.key), zap.Error(err))
		return LoadResult{Cause: err}
	}

	articles, err := decodeSnapshot(data, s.opts)
	if err != nil {
		s.opts.log.Error("snapshot is corrupt, starting empty", zap.String("key", s.key), zap.Error(err))
		return LoadResult{Cause: err}
	}
	s.opts.log.Info("loaded snapshot", zap.String("key", s.key), zap.Int("articles", len(articles)))
	return LoadResult{Articles: articles}
}

// Save replaces the stored snapshot.
func (s *RedisStore) Save(ctx context.Context, articles []models.Article) error {
	data, err := encodeSnapshot(articles)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }
