package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisDialTimeout = 5 * time.Second

// RedisOptions configures ConnectRedis.
type RedisOptions struct {
	URL         string
	ClientName  string
	DialTimeout time.Duration
}

// ConnectRedis parses the URL, applies the dial timeout and pings the server before returning the client.
// The client backs the plagiarism result cache, the shared rate limiter and cross-node notifications.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultRedisDialTimeout
	}
	options.DialTimeout = timeout
	// CLIENT SETNAME rejects spaces.
	if name := strings.Join(strings.Fields(opts.ClientName), "-"); name != "" {
		options.ClientName = name
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return client, nil
}
