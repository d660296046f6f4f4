package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SubscriptionID is a unique identifier for a subscription
type SubscriptionID string

// Handler consumes notifications delivered to a function subscription
type Handler func(Notification)

// Observer receives bus activity for metrics
type Observer interface {
	NotificationPublished(kind Kind)
	NotificationDropped(kind Kind)
	HandlerPanicked(kind Kind)
}

// SubscriptionStats tracks statistics for a subscription
type SubscriptionStats struct {
	// Received is the number of notifications delivered to the channel
	Received atomic.Uint64

	// Dropped is the number of notifications lost to a full channel
	Dropped atomic.Uint64

	CreatedAt time.Time
}

// Subscription is one subscriber's view of the bus
type Subscription struct {
	ID SubscriptionID

	// Channel delivers notifications; it is closed on Unsubscribe or Stop
	Channel chan Notification

	kinds map[Kind]bool
	Stats SubscriptionStats
}

// Wants reports whether the subscription receives kind
func (s *Subscription) Wants(kind Kind) bool {
	return s.kinds == nil || s.kinds[kind]
}

// Bus fans published notifications out to subscribers. A slow or failing
// subscriber never blocks the publisher or other subscribers: deliveries to
// a full channel are dropped and handler panics are recovered.
type Bus struct {
	subscribers map[SubscriptionID]*Subscription
	mu          sync.RWMutex

	publishCh chan Notification
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	stats struct {
		published atomic.Uint64
		delivered atomic.Uint64
		dropped   atomic.Uint64
	}

	logger   *zap.Logger
	observer Observer
}

// NewBus creates a bus with the given publish buffer
func NewBus(publishBufferSize int, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subscribers: make(map[SubscriptionID]*Subscription),
		publishCh:   make(chan Notification, publishBufferSize),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// SetObserver installs a metrics observer; call before Run
func (b *Bus) SetObserver(o Observer) {
	b.observer = o
}

// Run is the bus main loop; call it in a goroutine
func (b *Bus) Run() {
	defer close(b.done)

	for {
		select {
		case <-b.ctx.Done():
			b.closeAll()
			return
		case n := <-b.publishCh:
			b.stats.published.Add(1)
			if b.observer != nil {
				b.observer.NotificationPublished(n.Kind())
			}
			b.broadcast(n)
		}
	}
}

func (b *Bus) broadcast(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	kind := n.Kind()
	for _, sub := range b.subscribers {
		if !sub.Wants(kind) {
			continue
		}
		select {
		case sub.Channel <- n:
			b.stats.delivered.Add(1)
			sub.Stats.Received.Add(1)
		default:
			b.stats.dropped.Add(1)
			sub.Stats.Dropped.Add(1)
			if b.observer != nil {
				b.observer.NotificationDropped(kind)
			}
		}
	}
}

func (b *Bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		close(sub.Channel)
	}
	b.subscribers = make(map[SubscriptionID]*Subscription)
}

// Stop shuts the bus down and closes every subscription channel
func (b *Bus) Stop() {
	b.cancel()
	<-b.done
}

// Publish queues n for delivery. It never blocks and returns false when the
// bus is stopped or its buffer is full.
func (b *Bus) Publish(n Notification) bool {
	select {
	case <-b.ctx.Done():
		return false
	default:
	}

	select {
	case b.publishCh <- n:
		return true
	default:
		b.logger.Warn("notification bus full, dropping", zap.String("kind", string(n.Kind())))
		return false
	}
}

// Subscribe registers a channel subscription for kinds; no kinds means all.
// It returns nil if the bus is stopped or the id is taken.
func (b *Bus) Subscribe(id SubscriptionID, kinds []Kind, channelSize int) *Subscription {
	var set map[Kind]bool
	if len(kinds) > 0 {
		set = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			set[k] = true
		}
	}

	sub := &Subscription{
		ID:      id,
		Channel: make(chan Notification, channelSize),
		kinds:   set,
		Stats:   SubscriptionStats{CreatedAt: time.Now()},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		return nil
	}
	if _, exists := b.subscribers[id]; exists {
		return nil
	}
	b.subscribers[id] = sub
	return sub
}

// SubscribeFunc runs handler for each notification on its own goroutine.
// A panicking handler is logged and keeps receiving later notifications.
func (b *Bus) SubscribeFunc(id SubscriptionID, kinds []Kind, channelSize int, handler Handler) *Subscription {
	sub := b.Subscribe(id, kinds, channelSize)
	if sub == nil {
		return nil
	}
	go func() {
		for n := range sub.Channel {
			b.dispatch(sub.ID, handler, n)
		}
	}()
	return sub
}

func (b *Bus) dispatch(id SubscriptionID, handler Handler, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification handler panicked",
				zap.String("subscription", string(id)),
				zap.String("kind", string(n.Kind())),
				zap.String("panic", fmt.Sprint(r)),
			)
			if b.observer != nil {
				b.observer.HandlerPanicked(n.Kind())
			}
		}
	}()
	handler(n)
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.Channel)
		delete(b.subscribers, id)
	}
}

// SubscriberCount returns the current number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Stats returns the bus counters
func (b *Bus) Stats() (published, delivered, dropped uint64) {
	return b.stats.published.Load(), b.stats.delivered.Load(), b.stats.dropped.Load()
}
