package nats

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	StreamGlobe      = "GLOBE"
	SubjectStates    = "globe.states"
	SubjectPoints    = "globe.points"
	SubjectTransform = "globe.transform"

	// HeaderError carries the failure reason on a transform reply
	HeaderError = "Globe-Error"
)

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a new NATS client and makes sure the GLOBE stream exists
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url, nats.Name("globe-worker"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamGlobe,
		Subjects: []string{SubjectStates, SubjectPoints},
		Storage:  nats.FileStorage,
		MaxAge:   time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// PublishStates publishes a raw states batch
func (c *Client) PublishStates(ctx context.Context, data []byte) error {
	return c.publish(ctx, SubjectStates, data)
}

// PublishPoints publishes a transformed points batch
func (c *Client) PublishPoints(ctx context.Context, data []byte) error {
	return c.publish(ctx, SubjectPoints, data)
}

func (c *Client) publish(ctx context.Context, subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.New().String())

	if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// SubscribeStates delivers raw states batches until ctx is cancelled
func (c *Client) SubscribeStates(ctx context.Context, handler func([]byte)) error {
	return c.subscribe(ctx, SubjectStates, handler)
}

// SubscribePoints delivers points batches until ctx is cancelled
func (c *Client) SubscribePoints(ctx context.Context, handler func([]byte)) error {
	return c.subscribe(ctx, SubjectPoints, handler)
}

func (c *Client) subscribe(ctx context.Context, subject string, handler func([]byte)) error {
	sub, err := c.js.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil && err != nats.ErrConnectionClosed {
			log.Printf("Warning: Failed to drain %s subscription: %v", subject, err)
		}
	}()

	return nil
}

// ServeTransform answers transform requests with the handler output.
// Handler failures are reported to the requester in the Globe-Error header.
func (c *Client) ServeTransform(ctx context.Context, handler func([]byte) ([]byte, error)) error {
	sub, err := c.conn.Subscribe(SubjectTransform, func(msg *nats.Msg) {
		reply := nats.NewMsg(msg.Reply)
		out, err := handler(msg.Data)
		if err != nil {
			reply.Header.Set(HeaderError, err.Error())
		} else {
			reply.Data = out
		}
		if err := msg.RespondMsg(reply); err != nil {
			log.Printf("Warning: Failed to respond to transform request: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to transform requests: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil && err != nats.ErrConnectionClosed {
			log.Printf("Warning: Failed to drain transform subscription: %v", err)
		}
	}()

	return nil
}

// Request sends a states batch to a worker and waits for the points reply
func (c *Client) Request(ctx context.Context, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, SubjectTransform, data)
	if err != nil {
		return nil, fmt.Errorf("failed to request transform: %w", err)
	}
	if reason := msg.Header.Get(HeaderError); reason != "" {
		return nil, fmt.Errorf("transform failed: %s", reason)
	}
	return msg.Data, nil
}

// Close drains and closes the NATS connection
func (c *Client) Close() error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Drain()
}
