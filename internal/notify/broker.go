package notify

import (
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/utils"
	"context"
	"sync"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 64

// Publisher delivers events to whoever is listening on an auction
type Publisher interface {
	Publish(event model.Event)
}

type subscriber struct {
	ch chan model.Event
}

// Broker is an in-process pub/sub keyed by auction ID. Publish never blocks;
// a subscriber whose queue is full is evicted and its channel closed so it
// can reconnect and replay from the ledger.
type Broker struct {
	mu      sync.Mutex
	topics  map[string]map[*subscriber]struct{}
	buffer  int
	closed  bool
	metrics *metrics.Metrics
}

// NewBroker creates a broker. buffer <= 0 uses DefaultBuffer; m may be nil.
func NewBroker(buffer int, m *metrics.Metrics) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		topics:  make(map[string]map[*subscriber]struct{}),
		buffer:  buffer,
		metrics: m,
	}
}

// Subscribe returns a channel of events for one auction. The channel is
// closed when ctx is done, when the subscriber falls behind, or when the
// broker is closed.
func (b *Broker) Subscribe(ctx context.Context, auctionID string) <-chan model.Event {
	sub := &subscriber{ch: make(chan model.Event, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	if b.topics[auctionID] == nil {
		b.topics[auctionID] = make(map[*subscriber]struct{})
	}
	b.topics[auctionID][sub] = struct{}{}
	b.mu.Unlock()
	b.metrics.SubscriberAdded()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeLocked(auctionID, sub, false)
	}()
	return sub.ch
}

// removeLocked drops and closes a subscriber if it is still registered
func (b *Broker) removeLocked(auctionID string, sub *subscriber, evicted bool) {
	subs, ok := b.topics[auctionID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, auctionID)
	}
	close(sub.ch)
	b.metrics.SubscriberRemoved(evicted)
}

// Publish delivers an event to every subscriber of its auction
func (b *Broker) Publish(event model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.topics[event.AuctionID] {
		select {
		case sub.ch <- event:
		default:
			utils.Warn("Evicting slow event subscriber", map[string]any{
				"auction_id": event.AuctionID,
				"sequence":   event.Sequence,
			})
			b.removeLocked(event.AuctionID, sub, true)
		}
	}
}

// Subscribers returns the number of open subscriptions for an auction
func (b *Broker) Subscribers(auctionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[auctionID])
}

// Close ends every subscription; later subscriptions are closed immediately
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, subs := range b.topics {
		for sub := range subs {
			b.removeLocked(id, sub, false)
		}
	}
}
