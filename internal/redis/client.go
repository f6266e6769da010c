package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ChannelStates = "globe:states"
	ChannelPoints = "globe:points"
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Close() error
}

// Client carries globe batches over Redis pub/sub
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// PublishStates publishes a raw states batch
func (c *Client) PublishStates(ctx context.Context, data []byte) error {
	return c.publish(ctx, ChannelStates, data)
}

// PublishPoints publishes a transformed points batch
func (c *Client) PublishPoints(ctx context.Context, data []byte) error {
	return c.publish(ctx, ChannelPoints, data)
}

func (c *Client) publish(ctx context.Context, channel string, data []byte) error {
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// SubscribeStates delivers raw states batches until ctx is cancelled
func (c *Client) SubscribeStates(ctx context.Context, handler func([]byte)) error {
	return c.subscribe(ctx, ChannelStates, handler)
}

// SubscribePoints delivers points batches until ctx is cancelled
func (c *Client) SubscribePoints(ctx context.Context, handler func([]byte)) error {
	return c.subscribe(ctx, ChannelPoints, handler)
}

func (c *Client) subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed before delivering
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go func() {
		defer func() {
			if err := pubsub.Close(); err != nil {
				log.Printf("Warning: Failed to close %s subscription: %v", channel, err)
			}
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}
