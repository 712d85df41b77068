package livequery

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "changes:"

// RedisBus carries change notifications between API processes over Redis
// pub/sub, one channel per collection.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, collection string) error {
	if err := b.client.Publish(ctx, channelPrefix+collection, "changed").Err(); err != nil {
		return fmt.Errorf("publish change %s: %w", collection, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, collection string) (Feed, error) {
	pubsub := b.client.Subscribe(ctx, channelPrefix+collection)
	// Receive blocks until the server confirms the subscription, so a publish
	// issued after Subscribe returns is never missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe changes %s: %w", collection, err)
	}

	feed := &redisFeed{pubsub: pubsub, ch: make(chan struct{}, 1)}
	go feed.pump(pubsub.Channel())
	return feed, nil
}

type redisFeed struct {
	pubsub *redis.PubSub
	ch     chan struct{}
	once   sync.Once
	err    error
}

func (f *redisFeed) pump(messages <-chan *redis.Message) {
	defer close(f.ch)
	for range messages {
		select {
		case f.ch <- struct{}{}:
		default:
		}
	}
}

func (f *redisFeed) C() <-chan struct{} {
	return f.ch
}

func (f *redisFeed) Close() error {
	f.once.Do(func() {
		f.err = f.pubsub.Close()
	})
	return f.err
}
