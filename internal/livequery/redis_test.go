package livequery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisBusDeliversPublishedChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisBus(client)
	ctx := context.Background()

	feed, err := bus.Subscribe(ctx, "clients")
	require.NoError(t, err)
	defer feed.Close()

	require.NoError(t, bus.Publish(ctx, "clients"))
	select {
	case <-feed.C():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis notification")
	}
}

func TestRedisBusCloseEndsFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	feed, err := NewRedisBus(client).Subscribe(context.Background(), "updates")
	require.NoError(t, err)
	require.NoError(t, feed.Close())
	require.NoError(t, feed.Close())

	select {
	case _, ok := <-feed.C():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("feed channel not closed")
	}
}
