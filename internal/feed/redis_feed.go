package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"commune-chat/internal/events"
	commune_errors "commune-chat/pkg/errors"
	"commune-chat/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	// controlChannel keeps the pubsub connection valid while no scope is
	// subscribed yet. Nothing is ever published on it.
	controlChannel = "feed:control"

	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// RedisFeed multiplexes all subscriptions over one redis pub/sub connection.
// When the connection drops it reconnects with exponential backoff and
// re-subscribes every registered channel before firing the ready callbacks.
type RedisFeed struct {
	client *redis.Client
	log    *logger.Logger

	mu       sync.Mutex
	subs     map[string]map[int]Handler // channel -> id -> handler
	nextID   int
	pubsub   *redis.PubSub
	readyFns []func()

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func NewRedisFeed(client *redis.Client, log *logger.Logger) *RedisFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisFeed{
		client: client,
		log:    log,
		subs:   make(map[string]map[int]Handler),
		ctx:    ctx,
		stop:   cancel,
	}
}

// Start opens the connection and begins delivering events.
func (f *RedisFeed) Start() {
	f.wg.Add(1)
	go f.run()
}

func (f *RedisFeed) Subscribe(channel string, h Handler) (*Subscription, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, commune_errors.ErrSubscriptionLost
	}
	f.nextID++
	id := f.nextID
	firstForChannel := len(f.subs[channel]) == 0
	if f.subs[channel] == nil {
		f.subs[channel] = make(map[int]Handler)
	}
	f.subs[channel][id] = h
	pubsub := f.pubsub
	f.mu.Unlock()

	if firstForChannel && pubsub != nil {
		if err := pubsub.Subscribe(f.ctx, channel); err != nil {
			// The reconnect loop will pick the channel up; callers never
			// see transient subscribe failures.
			f.log.Warnf("subscribe %s: %v", channel, err)
		}
	}

	return &Subscription{cancel: func() { f.unsubscribe(channel, id) }}, nil
}

func (f *RedisFeed) unsubscribe(channel string, id int) {
	f.mu.Lock()
	delete(f.subs[channel], id)
	lastForChannel := len(f.subs[channel]) == 0
	if lastForChannel {
		delete(f.subs, channel)
	}
	pubsub := f.pubsub
	f.mu.Unlock()

	if lastForChannel && pubsub != nil {
		if err := pubsub.Unsubscribe(context.Background(), channel); err != nil {
			f.log.Warnf("unsubscribe %s: %v", channel, err)
		}
	}
}

func (f *RedisFeed) OnReady(fn func()) {
	f.mu.Lock()
	f.readyFns = append(f.readyFns, fn)
	f.mu.Unlock()
}

func (f *RedisFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	pubsub := f.pubsub
	f.mu.Unlock()

	f.stop()
	if pubsub != nil {
		pubsub.Close()
	}
	f.wg.Wait()
	return nil
}

func (f *RedisFeed) run() {
	defer f.wg.Done()

	backoff := initialBackoff
	for {
		if f.ctx.Err() != nil {
			return
		}

		snapshot := f.channels()
		pubsub := f.client.Subscribe(f.ctx, snapshot...)
		if _, err := pubsub.Receive(f.ctx); err != nil {
			pubsub.Close()
			if f.ctx.Err() != nil {
				return
			}
			f.log.Warnf("feed connect: %v, retrying in %s", err, backoff)
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		// Subscriptions registered while the connection was being
		// established missed the snapshot; attach them before reporting
		// ready.
		known := make(map[string]struct{}, len(snapshot))
		for _, ch := range snapshot {
			known[ch] = struct{}{}
		}
		f.mu.Lock()
		f.pubsub = pubsub
		var missed []string
		for ch := range f.subs {
			if _, ok := known[ch]; !ok {
				missed = append(missed, ch)
			}
		}
		f.mu.Unlock()
		if len(missed) > 0 {
			if err := pubsub.Subscribe(f.ctx, missed...); err != nil {
				f.log.Warnf("subscribe %v: %v", missed, err)
			}
		}

		// Every channel is live again; let consumers refetch what they
		// may have missed while disconnected.
		f.notifyReady()

		for msg := range pubsub.Channel() {
			f.dispatch(msg)
		}

		f.mu.Lock()
		f.pubsub = nil
		f.mu.Unlock()
		pubsub.Close()

		if f.ctx.Err() != nil {
			return
		}
		f.log.Warnf("feed connection lost, resubscribing")
	}
}

func (f *RedisFeed) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	chans := []string{controlChannel}
	for ch := range f.subs {
		chans = append(chans, ch)
	}
	return chans
}

func (f *RedisFeed) notifyReady() {
	f.mu.Lock()
	fns := make([]func(), len(f.readyFns))
	copy(fns, f.readyFns)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *RedisFeed) dispatch(msg *redis.Message) {
	var env events.Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		f.log.Warnf("drop malformed feed event on %s: %v", msg.Channel, err)
		return
	}

	f.mu.Lock()
	handlers := make([]Handler, 0, len(f.subs[msg.Channel]))
	for _, h := range f.subs[msg.Channel] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(env)
	}
}
