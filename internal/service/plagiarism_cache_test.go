package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

func newMiniredisCache(t *testing.T) (*miniredis.Miniredis, *redisPlagiarismCache) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewPlagiarismCache(client, zerolog.Nop()).(*redisPlagiarismCache)
	return mini, cache
}

func sampleCachedResult() CachedResult {
	return CachedResult{
		Result: plagiarism.Result{
			SimilarityScore: 0.85,
			Sources:         []plagiarism.Source{{URL: "https://example.com/a", Title: "A", Similarity: 0.8}},
			Provider:        "openai:test",
		},
		Severity: plagiarism.SeverityHigh,
	}
}

func TestPlagiarismCacheSetThenGet(t *testing.T) {
	_, cache := newMiniredisCache(t)
	ctx := context.Background()

	cache.Set(ctx, "plagiarism:abc", sampleCachedResult(), time.Hour)

	entry, ok := cache.Get(ctx, "plagiarism:abc")
	require.True(t, ok)
	require.InDelta(t, 0.85, entry.Result.SimilarityScore, 0.0001)
	require.Equal(t, plagiarism.SeverityHigh, entry.Severity)
	require.Len(t, entry.Result.Sources, 1)
	require.False(t, entry.CachedAt.IsZero())
	require.WithinDuration(t, entry.CachedAt.Add(time.Hour), entry.ExpiresAt, time.Millisecond)
}

func TestPlagiarismCacheStoreTTLExpires(t *testing.T) {
	mini, cache := newMiniredisCache(t)
	ctx := context.Background()

	cache.Set(ctx, "plagiarism:ttl", sampleCachedResult(), time.Minute)
	require.Equal(t, time.Minute, mini.TTL("plagiarism:ttl"))

	mini.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, "plagiarism:ttl")
	require.False(t, ok)
}

func TestPlagiarismCacheLazilyEvictsExpiredEntries(t *testing.T) {
	mini, cache := newMiniredisCache(t)
	ctx := context.Background()

	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.Set(ctx, "plagiarism:lazy", sampleCachedResult(), time.Hour)

	// The store still holds the key but the entry's own expiry has passed.
	current = current.Add(2 * time.Hour)
	_, ok := cache.Get(ctx, "plagiarism:lazy")
	require.False(t, ok)
	require.False(t, mini.Exists("plagiarism:lazy"))
}

func TestPlagiarismCacheEvictsCorruptPayload(t *testing.T) {
	mini, cache := newMiniredisCache(t)
	require.NoError(t, mini.Set("plagiarism:bad", "{not json"))

	_, ok := cache.Get(context.Background(), "plagiarism:bad")
	require.False(t, ok)
	require.False(t, mini.Exists("plagiarism:bad"))
}

func TestPlagiarismCacheFailsOpenWhenBackendDown(t *testing.T) {
	mini, cache := newMiniredisCache(t)
	mini.Close()

	ctx := context.Background()
	require.NotPanics(t, func() {
		cache.Set(ctx, "plagiarism:down", sampleCachedResult(), time.Hour)
	})

	_, ok := cache.Get(ctx, "plagiarism:down")
	require.False(t, ok)
}

func TestPlagiarismCacheDisabledWithoutClient(t *testing.T) {
	cache := NewPlagiarismCache(nil, zerolog.Nop())
	ctx := context.Background()

	cache.Set(ctx, "plagiarism:none", sampleCachedResult(), time.Hour)
	_, ok := cache.Get(ctx, "plagiarism:none")
	require.False(t, ok)
}
