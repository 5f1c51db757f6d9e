package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/notifier/pkg/errors"
	"github.com/jwalitptl/notifier/pkg/transport"
)

type Config struct {
	URL          string
	Channel      string
	DialTimeout  time.Duration
	PoolSize     int
	MinIdleConns int
}

// Dialer subscribes to a Redis pub/sub channel. The bearer token is sent as
// the AUTH password, so ACL users can be scoped to their own channel.
type Dialer struct {
	config Config
}

func NewDialer(config Config) *Dialer {
	return &Dialer{config: config}
}

func (d *Dialer) Dial(ctx context.Context, token string) (transport.Conn, error) {
	if d.config.URL == "" || d.config.Channel == "" {
		return nil, errors.Config("redis url and channel are required", nil)
	}

	opts, err := redis.ParseURL(d.config.URL)
	if err != nil {
		return nil, errors.Config("failed to parse Redis URL", err)
	}

	// Reconnection is owned by the connection manager, not the client.
	opts.MaxRetries = -1
	opts.Password = token
	if d.config.DialTimeout > 0 {
		opts.DialTimeout = d.config.DialTimeout
	}
	if d.config.PoolSize > 0 {
		opts.PoolSize = d.config.PoolSize
	}
	if d.config.MinIdleConns > 0 {
		opts.MinIdleConns = d.config.MinIdleConns
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, classify("failed to connect to Redis", err)
	}

	pubsub := client.Subscribe(ctx, d.config.Channel)
	// Wait for the subscription confirmation so no message published after
	// Dial returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, classify("failed to subscribe", err)
	}

	rctx, cancel := context.WithCancel(context.Background())
	return &conn{client: client, pubsub: pubsub, ctx: rctx, cancel: cancel}, nil
}

type conn struct {
	client *redis.Client
	pubsub *redis.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (c *conn) Read() ([]byte, error) {
	for {
		msg, err := c.pubsub.Receive(c.ctx)
		if err != nil {
			return nil, errors.Transport("redis receive failed", err)
		}

		switch m := msg.(type) {
		case *redis.Message:
			return []byte(m.Payload), nil
		case *redis.Pong:
			return transport.PongFrame, nil
		case *redis.Subscription:
			if m.Kind == "unsubscribe" && m.Count == 0 {
				return nil, errors.Transport("unsubscribed from channel", nil)
			}
		}
	}
}

func (c *conn) Ping(ctx context.Context) error {
	if err := c.pubsub.Ping(ctx); err != nil {
		return errors.Transport("failed to send ping", err)
	}
	return nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		err := c.pubsub.Close()
		if cerr := c.client.Close(); err == nil {
			err = cerr
		}
		c.closeErr = err
	})
	return c.closeErr
}

func classify(msg string, err error) error {
	s := err.Error()
	if strings.Contains(s, "WRONGPASS") || strings.Contains(s, "NOAUTH") || strings.Contains(s, "NOPERM") {
		return errors.Unauthorized(fmt.Errorf("%s: %w", msg, err))
	}
	return errors.Transport(msg, err)
}
