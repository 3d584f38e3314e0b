package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"planora/internal/config"
	"planora/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisCartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisCartRepository(client *redis.Client, ttl time.Duration) *RedisCartRepository {
	return &RedisCartRepository{
		client: client,
		ttl:    ttl,
	}
}

var errNilClient = errors.New("redis client is nil")

func cartKey(userID string) string {
	return "cart:" + userID
}

func (r *RedisCartRepository) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	fields, err := r.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart from redis: %w", err)
	}

	items := make([]models.CartItem, 0, len(fields))
	for serviceID, raw := range fields {
		var item models.CartItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cart item %s: %w", serviceID, err)
		}
		items = append(items, item)
	}
	sortCart(items)
	return items, nil
}

// AddItem merges the item into the cart hash atomically with WATCH.
func (r *RedisCartRepository) AddItem(ctx context.Context, userID string, item models.CartItem) error {
	if r.client == nil {
		return errNilClient
	}
	key := cartKey(userID)

	txf := func(tx *redis.Tx) error {
		var existing models.CartItem
		raw, err := tx.HGet(ctx, key, item.ServiceID).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal([]byte(raw), &existing); err != nil {
				return err
			}
		}

		data, err := json.Marshal(mergeCartItem(existing, item))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, item.ServiceID, data)
			if r.ttl > 0 {
				pipe.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < models.MaxTransitionAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to add cart item in redis: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to add cart item in redis: %w", redis.TxFailedErr)
}

func (r *RedisCartRepository) RemoveItem(ctx context.Context, userID, serviceID string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.HDel(ctx, cartKey(userID), serviceID).Err(); err != nil {
		return fmt.Errorf("failed to remove cart item from redis: %w", err)
	}
	return nil
}

func (r *RedisCartRepository) ClearCart(ctx context.Context, userID string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cart from redis: %w", err)
	}
	return nil
}

func (r *RedisCartRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	redisKey := "rate_limit:" + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
