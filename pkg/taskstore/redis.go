package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harrisonrobin/jarvis/pkg/model"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "jarvis:tasks"

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisBackend keeps the tasks.json document under a single key.
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(cfg RedisConfig) *RedisBackend {
	if cfg.Key == "" {
		cfg.Key = DefaultRedisKey
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &RedisBackend{client: rdb, key: cfg.Key}
}

func (r *RedisBackend) Load(ctx context.Context) ([]model.Task, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}

	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: redis key %s: %v", ErrCorrupt, r.key, err)
	}
	return tasks, nil
}

func (r *RedisBackend) Save(ctx context.Context, tasks []model.Task) error {
	data, err := encodeDocument(tasks)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
