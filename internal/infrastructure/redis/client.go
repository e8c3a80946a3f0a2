package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aryan0dhankhar/farmorders/internal/observability/metrics"
	"github.com/aryan0dhankhar/farmorders/internal/reliability/circuitbreaker"
)

// ErrInvalidURL is returned when REDIS_URL cannot be parsed
var ErrInvalidURL = errors.New("invalid redis url")

// Client wraps the Redis client as a blob KV and a pub/sub channel,
// failing fast while the circuit breaker is open
type Client struct {
	rdb     *redis.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	breaker := circuitbreaker.New(circuitbreaker.Settings{
		Name:             "redis",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Second,
		// A caller giving up is not a Redis failure
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.SetBreakerState(name, int(to))
		},
	})

	return &Client{rdb: rdb, breaker: breaker, logger: logger}, nil
}

// Get retrieves a value; a missing key is reported as found=false
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := c.breaker.Execute(func() error {
		v, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		data, found = v, true
		return nil
	})
	return data, found, err
}

// Set stores a value without expiry
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	return c.breaker.Execute(func() error {
		return c.rdb.Set(ctx, key, value, 0).Err()
	})
}

// SetWithTTL stores a value that Redis drops after ttl
func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.breaker.Execute(func() error {
		return c.rdb.Set(ctx, key, value, ttl).Err()
	})
}

// Publish sends payload to channel
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.breaker.Execute(func() error {
		return c.rdb.Publish(ctx, channel, payload).Err()
	})
}

// Subscribe delivers channel messages to fn until ctx is cancelled
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(payload []byte)) error {
	sub := c.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
