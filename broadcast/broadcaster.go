// Package broadcast fans run events out to every connected observer.
package broadcast

import (
	"context"
	"sync"

	"github.com/bennhub/playwright-command-center/model"
	"github.com/rs/zerolog"
)

// SubscriberBufferCap is the number of undelivered events a subscriber may
// hold before it is evicted.
const SubscriberBufferCap = 256

// Broadcaster is a publish/subscribe registry. Publish never blocks: a
// subscriber that cannot keep up has its channel closed and is dropped.
type Broadcaster struct {
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[uint64]chan model.Event
	nextID uint64
}

func New(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		subs:   make(map[uint64]chan model.Event),
	}
}

// Subscribe registers a new observer. The returned channel receives every
// event published after this call and is closed when ctx is done or the
// observer falls too far behind.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan model.Event {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan model.Event, SubscriberBufferCap)
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()
	return ch
}

// Publish delivers ev to every subscriber without waiting on any of them.
func (b *Broadcaster) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, id)
			close(ch)
			b.logger.Debug().Uint64("subscriber", id).Str("event", ev.Name).Msg("Evicted slow subscriber")
		}
	}
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
