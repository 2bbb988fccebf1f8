package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const limiterStorageTimeout = 500 * time.Millisecond

// redisLimiterStorage shares limiter counters between API nodes. Redis failures are logged
// and treated as an empty window so requests are not rejected when Redis is down.
type redisLimiterStorage struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisLimiterStorage returns a fiber.Storage over an existing Redis client. Close leaves the client open.
func NewRedisLimiterStorage(client *redis.Client, prefix string, logger zerolog.Logger) fiber.Storage {
	return &redisLimiterStorage{
		client: client,
		prefix: prefix + ":ratelimit:",
		logger: logger.With().Str("component", "rate_limit_storage").Logger(),
	}
}

func (s *redisLimiterStorage) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), limiterStorageTimeout)
	defer cancel()

	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("rate limit lookup failed")
		return nil, nil
	}
	return value, nil
}

func (s *redisLimiterStorage) Set(key string, value []byte, exp time.Duration) error {
	if key == "" || len(value) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), limiterStorageTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, value, exp).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("rate limit update failed")
	}
	return nil
}

func (s *redisLimiterStorage) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), limiterStorageTimeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *redisLimiterStorage) Reset() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *redisLimiterStorage) Close() error {
	return nil
}
