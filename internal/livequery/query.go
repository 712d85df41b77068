package livequery

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
)

// Query describes a live view over one collection: the full read, an
// optional filter and the sort order applied to every result set.
type Query[T any] struct {
	Collection string
	Load       func(ctx context.Context) ([]T, error)
	Filter     func(T) bool
	Less       func(a, b T) bool
}

// Run loads the collection once and applies the filter and stable sort.
func (q Query[T]) Run(ctx context.Context) ([]T, error) {
	items, err := q.Load(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]T, 0, len(items))
	for _, item := range items {
		if q.Filter == nil || q.Filter(item) {
			result = append(result, item)
		}
	}
	if q.Less != nil {
		sort.SliceStable(result, func(i, j int) bool { return q.Less(result[i], result[j]) })
	}
	return result, nil
}

// Subscription is one live binding of a query; Cancel ends it.
type Subscription struct {
	collection string
	feed       Feed
	cancel     context.CancelFunc
	stopped    atomic.Bool
	once       sync.Once
	done       chan struct{}
}

// Bind subscribes to q.Collection, delivers the current result set and then a
// fresh complete result set after every change. Deliveries for one
// subscription never overlap.
func Bind[T any](ctx context.Context, notifier Notifier, q Query[T], deliver func([]T)) (*Subscription, error) {
	if q.Load == nil {
		return nil, fmt.Errorf("bind %s: query has no loader", q.Collection)
	}
	feed, err := notifier.Subscribe(ctx, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", q.Collection, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		collection: q.Collection,
		feed:       feed,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go run(ctx, sub, q, deliver)
	return sub, nil
}

func run[T any](ctx context.Context, sub *Subscription, q Query[T], deliver func([]T)) {
	defer close(sub.done)
	// Releases the feed when the parent context ends first.
	defer sub.Cancel()

	refresh := func() {
		result, err := q.Run(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("livequery: load %s: %v", q.Collection, err)
			}
			return
		}
		if sub.stopped.Load() {
			return
		}
		deliver(result)
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.feed.C():
			if !ok {
				if !sub.stopped.Load() {
					log.Printf("livequery: %s feed closed; delivery stopped", q.Collection)
				}
				return
			}
			if sub.stopped.Load() {
				return
			}
			refresh()
		}
	}
}

// Cancel stops the subscription. Once it returns no new delivery begins; a
// delivery already running is allowed to finish. It never blocks on the
// delivery goroutine, so it may be called from inside the deliver callback.
// Calling it again is a no-op.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.cancel()
		if err := s.feed.Close(); err != nil {
			log.Printf("livequery: close %s feed: %v", s.collection, err)
		}
	})
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
