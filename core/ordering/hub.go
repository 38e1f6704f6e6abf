package ordering

import (
	"context"
	"sync"
)

// Hub dispatches the events of an ordering service to its subscribers.
type Hub struct {
	sync.RWMutex

	buffer      int
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	ctx    context.Context
	events chan Event
}

// NewHub creates an empty hub. Each subscriber has a channel with the given
// buffer size.
func NewHub(buffer int) *Hub {
	return &Hub{
		buffer:      buffer,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Subscribe returns a channel populated with the events published after the
// call. The channel is closed once the context is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	sub := &subscriber{
		ctx:    ctx,
		events: make(chan Event, h.buffer),
	}

	h.Lock()
	h.subscribers[sub] = struct{}{}
	h.Unlock()

	go func() {
		<-ctx.Done()

		// Publish holds the read lock while sending, so that the channel is
		// never closed during a send.
		h.Lock()
		delete(h.subscribers, sub)
		close(sub.events)
		h.Unlock()
	}()

	return sub.events
}

// Publish sends the event to every subscriber. The events are never dropped,
// so that a subscriber with a full buffer blocks the publication until it
// reads or its context is done.
func (h *Hub) Publish(evt Event) {
	h.RLock()
	defer h.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.events <- evt:
		case <-sub.ctx.Done():
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.RLock()
	defer h.RUnlock()

	return len(h.subscribers)
}
