// Package source feeds line protocol input from somewhere other than
// stdin.
package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/config"
)

// Redis yields the lines of messages published on one channel. A message
// may carry several lines.
type Redis struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	msgs    <-chan *redis.Message
	pending []string
	log     logrus.FieldLogger
}

func Dial(ctx context.Context, cfg config.RedisConfig, log logrus.FieldLogger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	pubsub := client.Subscribe(ctx, cfg.Channel)
	// Receive waits for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", cfg.Channel, err)
	}
	log.Infof("Reading lines from redis channel %s", cfg.Channel)

	return &Redis{
		client: client,
		pubsub: pubsub,
		msgs:   pubsub.Channel(),
		log:    log,
	}, nil
}

func (r *Redis) Next(ctx context.Context) (string, error) {
	for len(r.pending) == 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case msg, ok := <-r.msgs:
			if !ok {
				return "", io.EOF
			}
			r.pending = splitLines(msg.Payload)
		}
	}
	line := r.pending[0]
	r.pending = r.pending[1:]
	return line, nil
}

func (r *Redis) Close() error {
	var err error
	if r.pubsub != nil {
		err = r.pubsub.Close()
	}
	if r.client != nil {
		if cerr := r.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// splitLines splits a payload on newlines. A trailing newline does not
// make an extra empty line.
func splitLines(payload string) []string {
	payload = strings.TrimSuffix(payload, "\n")
	lines := strings.Split(payload, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Publisher sends lines to a channel that a Redis source reads.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(ctx context.Context, cfg config.RedisConfig) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return &Publisher{client: client, channel: cfg.Channel}, nil
}

// Write publishes p as one message, so it works as the io.Writer of a
// line generator.
func (p *Publisher) Write(b []byte) (int, error) {
	if err := p.client.Publish(context.Background(), p.channel, string(b)).Err(); err != nil {
		return 0, fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return len(b), nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
