package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrOTPMismatch is returned when a reset code is absent, expired or
// simply wrong; callers cannot tell which, on purpose.
var ErrOTPMismatch = errors.New("invalid or expired code")

// OTPStore keeps time-boxed one-time codes keyed by account identifier.
type OTPStore interface {
	Put(ctx context.Context, key, code string, ttl time.Duration) error
	// Consume verifies the code and removes it; a code is valid at most
	// once.
	Consume(ctx context.Context, key, code string) error
}

// RedisOTPStore implements OTPStore on Redis with per-entry TTL, so codes
// expire server-side instead of living in a process-global map.
type RedisOTPStore struct {
	client *redis.Client
	prefix string
}

func NewRedisOTPStore(client *redis.Client, prefix string) *RedisOTPStore {
	return &RedisOTPStore{client: client, prefix: prefix}
}

func (s *RedisOTPStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisOTPStore) Put(ctx context.Context, key, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), code, ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Consume(ctx context.Context, key, code string) error {
	stored, err := s.client.GetDel(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrOTPMismatch
		}
		return fmt.Errorf("load otp: %w", err)
	}
	if stored != code {
		return ErrOTPMismatch
	}
	return nil
}
