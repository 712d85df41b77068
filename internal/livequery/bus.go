// Package livequery keeps a sorted, filtered snapshot of a collection in sync
// with the record store by re-running the query on every change notification.
package livequery

import (
	"context"
	"sync"
)

// Feed delivers one signal per observed change. Signals may be coalesced, so
// a receiver must treat each one as "something changed" and reload.
type Feed interface {
	C() <-chan struct{}
	Close() error
}

type Notifier interface {
	Subscribe(ctx context.Context, collection string) (Feed, error)
}

type Publisher interface {
	Publish(ctx context.Context, collection string) error
}

// Hub is an in-process change bus. It is used when no Redis is configured
// and in tests.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*hubFeed]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*hubFeed]struct{}{}}
}

func (h *Hub) Subscribe(_ context.Context, collection string) (Feed, error) {
	feed := &hubFeed{hub: h, collection: collection, ch: make(chan struct{}, 1)}
	h.mu.Lock()
	if h.subs[collection] == nil {
		h.subs[collection] = map[*hubFeed]struct{}{}
	}
	h.subs[collection][feed] = struct{}{}
	h.mu.Unlock()
	return feed, nil
}

// Publish never blocks. A subscriber that has not drained its previous signal
// keeps exactly one pending signal.
func (h *Hub) Publish(_ context.Context, collection string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for feed := range h.subs[collection] {
		select {
		case feed.ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (h *Hub) subscribers(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

type hubFeed struct {
	hub        *Hub
	collection string
	ch         chan struct{}
	once       sync.Once
}

func (f *hubFeed) C() <-chan struct{} {
	return f.ch
}

func (f *hubFeed) Close() error {
	f.once.Do(func() {
		f.hub.mu.Lock()
		delete(f.hub.subs[f.collection], f)
		if len(f.hub.subs[f.collection]) == 0 {
			delete(f.hub.subs, f.collection)
		}
		close(f.ch)
		f.hub.mu.Unlock()
	})
	return nil
}
