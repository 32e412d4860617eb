package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// redisChannelPrefix namespaces the pub/sub channels, one per table.
const redisChannelPrefix = "realtime:"

// Redis is a Hub over Redis pub/sub.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// DialRedis parses a redis:// URL, connects and pings the server.
func DialRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("realtime: ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func redisChannel(table string) string { return redisChannelPrefix + table }

// Publish sends c on the table's channel.
func (r *Redis) Publish(ctx context.Context, c Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, redisChannel(c.Table), b).Err(); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	publishedTotal.WithLabelValues(c.Table, string(c.Event)).Inc()
	return nil
}

// Subscribe listens on the filter's table channel and applies the rest of the
// filter locally. It returns once the server confirmed the subscription.
func (r *Redis) Subscribe(ctx context.Context, f Filter, h Handler) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, redisChannel(f.Table))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", f.Table, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(func() {
		cancel()
		_ = ps.Close()
	})
	go func() {
		defer sub.Unsubscribe()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c, err := decodeChange([]byte(msg.Payload))
				if err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("realtime: bad change payload")
					continue
				}
				if f.Match(c) {
					h(c)
				}
			}
		}
	}()
	return sub, nil
}

// Close closes the client; open subscriptions end with it.
func (r *Redis) Close() error { return r.client.Close() }
