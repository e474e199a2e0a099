package feed

import (
	"sync"

	"commune-chat/internal/events"
)

// Handler receives every change envelope pushed on a subscribed channel.
// Handlers run on the feed's receive loop and must not block.
type Handler func(env events.Envelope)

// Feed is the push side of the durable store boundary: one live subscription
// per scope, delivering "something changed" signals. Implementations share a
// single connection across all subscriptions and must re-establish every
// active subscription after a transient drop before reporting ready.
type Feed interface {
	// Subscribe registers a handler for a channel. The returned subscription
	// releases exactly once, no matter how often Unsubscribe is called.
	Subscribe(channel string, h Handler) (*Subscription, error)
	// OnReady registers a callback invoked each time the feed has a live
	// connection with every subscription in place, including after reconnects.
	OnReady(fn func())
	Close() error
}

// Subscription is a handle to one registered handler.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe releases the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}
