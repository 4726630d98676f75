// Package notify is the push half of the remote collection: a Redis
// pub/sub bus carrying change marks. Writers publish a mark after every
// successful mutation; live views re-query a full snapshot per mark.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"banter/api/internal/comment"
)

const changeChannel = "banter:comments:changed"

// Change marks one mutated document. It carries no document state;
// consumers re-read the collection.
type Change struct {
	Collection comment.Kind `json:"collection"`
	ID         string       `json:"id"`
}

type Bus struct {
	client *redis.Client
}

func NewBus(redisURL string) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Bus{client: client}, nil
}

// NewBusWithClient creates a bus from an existing Redis client.
func NewBusWithClient(client *redis.Client) *Bus {
	return &Bus{client: client}
}

func (b *Bus) PublishChange(ctx context.Context, kind comment.Kind, id string) error {
	payload, err := json.Marshal(Change{Collection: kind, ID: id})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.client.Publish(ctx, changeChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (b *Bus) Close() error {
	return b.client.Close()
}

func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Subscription delivers change marks until closed. Close is idempotent
// and no mark is delivered after it returns.
type Subscription struct {
	pubsub *redis.PubSub
	marks  chan Change
	done   chan struct{}
	once   sync.Once
}

func (b *Bus) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, changeChannel)
	// Force the SUBSCRIBE round trip so a failed connection surfaces
	// here instead of as a silent dead stream.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		marks:  make(chan Change, 16),
		done:   make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

func (s *Subscription) pump() {
	defer close(s.marks)
	for message := range s.pubsub.Channel() {
		var change Change
		if err := json.Unmarshal([]byte(message.Payload), &change); err != nil {
			continue
		}
		select {
		case s.marks <- change:
		case <-s.done:
			return
		}
	}
}

// Marks returns the change stream. The channel closes when the
// subscription is closed or the underlying stream fails.
func (s *Subscription) Marks() <-chan Change {
	return s.marks
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}
