// Package coordination serializes scheduler runs and publishes follow-up events through Redis.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeaseTTL = 2 * time.Minute
	leaseKeyPrefix  = "talent-outreach:scheduler:"
)

// ErrLeaseNotHeld is returned when releasing a lease owned by someone else.
var ErrLeaseNotHeld = errors.New("lease not held")

var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Config holds the optional Redis settings. An empty URL disables coordination.
type Config struct {
	URL      string        `mapstructure:"url"`
	LeaseTTL time.Duration `mapstructure:"lease-ttl"`
	Channel  string        `mapstructure:"channel"`
}

// Connect parses the URL and pings the server. It returns nil when Redis is not configured.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Leaser hands out per-organization run leases.
type Leaser struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaser(client *redis.Client, ttl time.Duration) *Leaser {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Leaser{client: client, ttl: ttl}
}

// TryAcquire takes the organization's lease without blocking. The returned release
// func is nil when the lease is held by another run.
func (l *Leaser) TryAcquire(ctx context.Context, organizationID string) (func(context.Context) error, bool, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, true, nil
	}

	key := leaseKeyPrefix + organizationID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		result, err := unlockScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("release lease: %w", err)
		}
		if result == 0 {
			return ErrLeaseNotHeld
		}
		return nil
	}
	return release, true, nil
}
