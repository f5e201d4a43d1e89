package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sourcelane/negotiator-backend/pkg/config"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
)

const (
	keyNamespace   = "ng"
	eventsPrefix   = "events"
	snapshotPrefix = "snapshot"
	counterPrefix  = "counter"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Publish(context.Context, string, any) *redis.IntCmd
}

// Client wraps the redis connection helpers needed by the platform: the live
// per-negotiation event channel and the snapshot cache.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns a string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX sets a value only if the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Del(ctx, keys...).Err()
}

// Incr increments the counter stored at key.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if c.store == nil {
		return 0, errors.New("redis client not initialized")
	}
	return c.store.Incr(ctx, key).Result()
}

// LiveChannelKey names the pub/sub channel carrying a negotiation's live
// events.
func (c *Client) LiveChannelKey(negotiationID string) string {
	return c.buildKey(eventsPrefix, negotiationID)
}

// SnapshotKey names the cache slot for a negotiation's reconstructed state.
func (c *Client) SnapshotKey(negotiationID string) string {
	return c.buildKey(snapshotPrefix, negotiationID)
}

// CounterKey returns a namespaced key for counters.
func (c *Client) CounterKey(name string) string {
	return c.buildKey(counterPrefix, name)
}

// PublishEvent pushes one serialized event onto the negotiation's live
// channel. Subscribers connected at publish time receive it; there is no
// replay, the snapshot covers history.
func (c *Client) PublishEvent(ctx context.Context, negotiationID string, payload []byte) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Publish(ctx, c.LiveChannelKey(negotiationID), payload).Err()
}

// CacheSnapshot stores a serialized state snapshot with the given TTL.
func (c *Client) CacheSnapshot(ctx context.Context, negotiationID string, payload []byte, ttl time.Duration) error {
	return c.Set(ctx, c.SnapshotKey(negotiationID), payload, ttl)
}

// GetSnapshot returns the cached snapshot, or redis.Nil when absent.
func (c *Client) GetSnapshot(ctx context.Context, negotiationID string) (string, error) {
	return c.Get(ctx, c.SnapshotKey(negotiationID))
}

// InvalidateSnapshot drops the cached snapshot so the next read rebuilds from
// the database.
func (c *Client) InvalidateSnapshot(ctx context.Context, negotiationID string) error {
	return c.Del(ctx, c.SnapshotKey(negotiationID))
}

// Subscription is a live tail on one negotiation's event channel.
type Subscription struct {
	ps *redis.PubSub
}

// Subscribe opens a live subscription on the negotiation's event channel.
// Only events published after this call are delivered.
func (c *Client) Subscribe(ctx context.Context, negotiationID string) (*Subscription, error) {
	if c.raw == nil {
		return nil, errors.New("redis client not initialized")
	}
	ps := c.raw.Subscribe(ctx, c.LiveChannelKey(negotiationID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to live channel: %w", err)
	}
	return &Subscription{ps: ps}, nil
}

// Next blocks for the next published payload. It returns the context's error
// on cancellation and io-style errors when the subscription closes.
func (s *Subscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.ps.Channel():
		if !ok {
			return nil, redis.ErrClosed
		}
		return []byte(msg.Payload), nil
	}
}

// Close tears down the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}

// IsClosed reports whether err marks a cleanly closed subscription.
func IsClosed(err error) bool {
	return errors.Is(err, redis.ErrClosed)
}

// IsNil reports a cache miss.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	if len(parts) == 0 {
		return keyNamespace
	}
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
