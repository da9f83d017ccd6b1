package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDB stores each entry under a namespaced string key.
type RedisDB struct {
	Client    *redis.Client
	namespace string
}

var _ KV = (*RedisDB)(nil)

func NewRedisDB(addr, password string, db int) (*RedisDB, error) {
	log.Printf("[Store] Connecting to Redis: %s", addr)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisDB{Client: rdb, namespace: "veo:"}, nil
}

func (r *RedisDB) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.Client.Get(ctx, r.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *RedisDB) Set(ctx context.Context, key, value string) error {
	return r.Client.Set(ctx, r.namespace+key, value, 0).Err()
}

func (r *RedisDB) Delete(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.namespace+key).Err()
}

func (r *RedisDB) Close() error {
	return r.Client.Close()
}
