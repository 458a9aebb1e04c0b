package transfer

import (
	"sync"

	"github.com/pithecene-io/ferry/types"
)

// subscriberBuffer is the per-subscriber channel capacity. Slow
// subscribers drop events rather than stall the transfer; terminal
// outcomes are exposed through Result, not the stream.
const subscriberBuffer = 256

// eventBus is the single typed event stream per transfer. The
// coordinator publishes; the progress TUI, journal, and callers
// subscribe. Replaces callback threading through every layer.
type eventBus struct {
	mu     sync.Mutex
	subs   map[int]chan types.TransferEvent
	nextID int
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan types.TransferEvent)}
}

// Subscribe registers a new observer. The returned cancel func detaches
// it; the channel is closed when the transfer reaches a terminal state.
func (b *eventBus) Subscribe() (<-chan types.TransferEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan types.TransferEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// publish delivers an event to every subscriber without blocking.
func (b *eventBus) publish(ev types.TransferEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			// Subscriber fell behind; progress events are droppable.
		}
	}
}

// close closes all subscriber channels. Idempotent.
func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
