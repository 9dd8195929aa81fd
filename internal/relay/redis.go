package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisPublisher struct {
	client *redis.Client
}

// newRedisPublisher accepts a redis:// URL or a bare host:port.
func newRedisPublisher(ctx context.Context, rawURL string, timeout time.Duration) (*redisPublisher, error) {
	var opts *redis.Options
	if strings.Contains(rawURL, "://") {
		o, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("relay redis url: %w", err)
		}
		opts = o
	} else {
		opts = &redis.Options{Addr: rawURL}
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout

	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("relay redis ping %s: %w", opts.Addr, err)
	}
	return &redisPublisher{client: client}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	return p.client.Publish(ctx, subject, payload).Err()
}

func (p *redisPublisher) Close() error { return p.client.Close() }
