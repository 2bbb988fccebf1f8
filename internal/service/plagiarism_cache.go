package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/teachlyze/tamanduai-api/internal/observability"
	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

const (
	// DefaultPlagiarismCacheTTL keeps provider results for a week.
	DefaultPlagiarismCacheTTL = 7 * 24 * time.Hour

	plagiarismCacheOpTimeout = 2 * time.Second
)

// CachedResult is a provider result stored under its content fingerprint. Severity is the one
// computed when the entry was written and is not reclassified on later hits.
type CachedResult struct {
	Result    plagiarism.Result   `json:"result"`
	Severity  plagiarism.Severity `json:"severity"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// PlagiarismCache stores provider results by fingerprint key. Backend failures are never returned;
// they are logged and reported as a miss.
type PlagiarismCache interface {
	Get(ctx context.Context, key string) (CachedResult, bool)
	Set(ctx context.Context, key string, entry CachedResult, ttl time.Duration)
}

type redisPlagiarismCache struct {
	client    *redis.Client
	logger    zerolog.Logger
	now       func() time.Time
	opTimeout time.Duration
}

// NewPlagiarismCache returns a Redis-backed cache. A nil client disables caching.
func NewPlagiarismCache(client *redis.Client, logger zerolog.Logger) PlagiarismCache {
	return &redisPlagiarismCache{
		client:    client,
		logger:    logger.With().Str("component", "plagiarism_cache").Logger(),
		now:       time.Now,
		opTimeout: plagiarismCacheOpTimeout,
	}
}

func (c *redisPlagiarismCache) Get(ctx context.Context, key string) (CachedResult, bool) {
	if c.client == nil {
		return CachedResult{}, false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.client.Get(opCtx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.PlagiarismCacheLookups().WithLabelValues("miss").Inc()
		} else {
			observability.PlagiarismCacheLookups().WithLabelValues("error").Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("plagiarism cache read failed, treating as miss")
		}
		return CachedResult{}, false
	}

	var entry CachedResult
	if err := json.Unmarshal(raw, &entry); err != nil {
		observability.PlagiarismCacheLookups().WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("corrupt plagiarism cache entry, evicting")
		c.evict(ctx, key)
		return CachedResult{}, false
	}

	if !entry.ExpiresAt.IsZero() && !c.now().Before(entry.ExpiresAt) {
		observability.PlagiarismCacheLookups().WithLabelValues("expired").Inc()
		c.evict(ctx, key)
		return CachedResult{}, false
	}

	observability.PlagiarismCacheLookups().WithLabelValues("hit").Inc()
	return entry, true
}

func (c *redisPlagiarismCache) Set(ctx context.Context, key string, entry CachedResult, ttl time.Duration) {
	if c.client == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultPlagiarismCacheTTL
	}

	now := c.now().UTC()
	entry.CachedAt = now
	entry.ExpiresAt = now.Add(ttl)

	payload, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to encode plagiarism cache entry")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, key, payload, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to store plagiarism cache entry")
	}
}

func (c *redisPlagiarismCache) evict(ctx context.Context, key string) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.client.Del(opCtx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to evict plagiarism cache entry")
	}
}
