package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// RedisPublisher publishes progress events on the Redis channel of the same
// name, so a browser process that does not own the cache can follow along.
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher connects to redisAddr and verifies the connection
func NewRedisPublisher(redisAddr string, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPublisher{client: client, logger: logger}, nil
}

// Emit publishes ev; failures are logged and dropped
func (p *RedisPublisher) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal progress event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, Channel, data).Err(); err != nil {
		p.logger.Warn("failed to publish progress event", "stage", ev.Stage, "error", err)
	}
}

// Forward relays events published by other processes into emitter until ctx
// is done
func (p *RedisPublisher) Forward(ctx context.Context, emitter Emitter) {
	sub := p.client.Subscribe(ctx, Channel)
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
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.Warn("ignoring malformed progress event", "error", err)
				continue
			}
			emitter.Emit(ev)
		}
	}
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
