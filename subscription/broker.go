package subscription

import (
	"context"
	"sync"

	"studyboard/domain"
)

// Broker fans change notifications out to the open streams of each owner. Every
// subscriber channel holds at most one pending signal, so bursts of changes
// coalesce into a single refresh.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers a stream for ownerID. The returned func removes it.
func (b *Broker) Subscribe(ownerID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	set, ok := b.subs[ownerID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.subs[ownerID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[ownerID], ch)
			if len(b.subs[ownerID]) == 0 {
				delete(b.subs, ownerID)
			}
			b.mu.Unlock()
		})
	}
}

// Notify signals every stream of ownerID without blocking.
func (b *Broker) Notify(ownerID string) {
	b.mu.Lock()
	for ch := range b.subs[ownerID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// Publish lets the broker act as an in-process change bus.
func (b *Broker) Publish(ctx context.Context, ev domain.Event) error {
	b.Notify(ev.UserID)
	return nil
}

// Subscribers returns the number of open streams for ownerID.
func (b *Broker) Subscribers(ownerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[ownerID])
}
