package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the session keys when no prefix is configured.
const DefaultRedisPrefix = "resume-cli:session"

// RedisOptions configures RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps credentials in one redis hash per profile, so several
// processes or hosts can share a session.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to redis and returns a store for profile.
func NewRedisStore(opts RedisOptions, profile string) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreFromClient(rdb, opts.Prefix, profile), nil
}

// NewRedisStoreFromClient wraps an existing client. An empty prefix uses the
// default key prefix.
func NewRedisStoreFromClient(rdb *redis.Client, prefix, profile string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, key: prefix + ":" + profile}
}

func (r *RedisStore) Get(ctx context.Context, kind Kind) (string, bool, error) {
	if err := validKind(kind); err != nil {
		return "", false, err
	}

	token, err := r.rdb.HGet(ctx, r.key, string(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", kind, err)
	}
	return token, token != "", nil
}

func (r *RedisStore) Set(ctx context.Context, kind Kind, token string) error {
	if err := validKind(kind); err != nil {
		return err
	}

	var err error
	if token == "" {
		err = r.rdb.HDel(ctx, r.key, string(kind)).Err()
	} else {
		err = r.rdb.HSet(ctx, r.key, string(kind), token).Err()
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", kind, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
