package session

import (
	"context"
	"sync"

	"commune-chat/internal/auth"
	"commune-chat/internal/feed"
	"commune-chat/internal/presence"
	"commune-chat/internal/synccache"
	"commune-chat/pkg/logger"

	"github.com/google/uuid"
)

// Manager ties user sign-in lifecycle to the realtime machinery: the presence
// heartbeat runs exactly while the user has at least one active sign-in, and
// the feed/cache pair is started once for the whole process.
//
// Sign-ins are refcounted per user. A user with two open clients stays online
// until the second one signs out.
type Manager struct {
	provider *auth.Provider
	tracker  *presence.Tracker
	feed     feed.Feed
	cache    *synccache.Cache
	log      *logger.Logger

	mu     sync.Mutex
	counts map[uuid.UUID]int

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(provider *auth.Provider, tracker *presence.Tracker, f feed.Feed, cache *synccache.Cache, log *logger.Logger) *Manager {
	return &Manager{
		provider: provider,
		tracker:  tracker,
		feed:     f,
		cache:    cache,
		log:      log,
		counts:   make(map[uuid.UUID]int),
	}
}

// Start wires feed recovery to cache invalidation and begins consuming
// sign-in events. After a feed reconnect every observed entry refetches, so
// anything missed during the outage is repaired.
func (m *Manager) Start() {
	m.feed.OnReady(func() {
		m.cache.InvalidateObserved()
	})

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.consume(ctx)
}

func (m *Manager) consume(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.provider.Events():
			if ev.SignedIn {
				m.SignIn(ev.UserID)
			} else {
				m.SignOut(ev.UserID)
			}
		}
	}
}

// SignIn increments the user's refcount; the first sign-in starts the
// presence heartbeat.
func (m *Manager) SignIn(userID uuid.UUID) {
	m.mu.Lock()
	m.counts[userID]++
	first := m.counts[userID] == 1
	m.mu.Unlock()

	if first {
		m.tracker.Start(userID)
		m.log.Infof("session opened for %s", userID)
	}
}

// SignOut decrements the refcount; the last sign-out stops the heartbeat and
// marks the user offline. Signing out a user with no session is a no-op.
func (m *Manager) SignOut(userID uuid.UUID) {
	m.mu.Lock()
	count, ok := m.counts[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	count--
	last := count == 0
	if last {
		delete(m.counts, userID)
	} else {
		m.counts[userID] = count
	}
	m.mu.Unlock()

	if last {
		m.tracker.Stop(userID)
		m.log.Infof("session closed for %s", userID)
	}
}

// Stop halts the event consumer and signs off every active user.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.tracker.StopAll()
}
