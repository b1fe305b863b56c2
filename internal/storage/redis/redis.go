package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account_service/internal/storage"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// SetResetKey stores the digest of a freshly issued reset key. A plain SET
// replaces whatever key was there before, so the last issuance wins and at
// most one key per account is ever valid. The TTL is the key's expiry.
func (r *RedisRepo) SetResetKey(ctx context.Context, accountID string, keyDigest string, ttl time.Duration) error {
	const op = "storage.redis.SetResetKey"

	key := fmt.Sprintf("reset:key:%s", accountID)

	if err := r.client.Set(ctx, key, keyDigest, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// GetResetKey returns the stored digest for the account's current reset key.
// An expired key disappears on its own through the TTL.
func (r *RedisRepo) GetResetKey(ctx context.Context, accountID string) (string, error) {
	const op = "storage.redis.GetResetKey"

	key := fmt.Sprintf("reset:key:%s", accountID)

	digest, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrResetKeyNotFound
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return digest, nil
}

// DeleteResetKey consumes the account's reset key.
func (r *RedisRepo) DeleteResetKey(ctx context.Context, accountID string) error {
	const op = "storage.redis.DeleteResetKey"

	key := fmt.Sprintf("reset:key:%s", accountID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}
