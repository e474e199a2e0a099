package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"commune-chat/internal/domain/identity"
	"commune-chat/internal/domain/realtime"
	"commune-chat/internal/events"
	"commune-chat/internal/repository"
	"commune-chat/pkg/logger"

	"github.com/google/uuid"
)

// Tracker owns the online heartbeat for every user signed in through this
// process. Each user's session moves Disconnected -> Online -> Disconnected;
// while online, a ticker re-upserts last_seen so other clients keep trusting
// the row. Only the owning session ever writes a user's presence row.
type Tracker struct {
	repo      repository.PresenceRepository
	profiles  repository.ProfileRepository
	publisher *events.Publisher
	interval  time.Duration
	window    time.Duration
	log       *logger.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*heartbeat
}

type heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTracker(repo repository.PresenceRepository, profiles repository.ProfileRepository, publisher *events.Publisher, interval, window time.Duration, log *logger.Logger) *Tracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if window <= 0 {
		window = 3 * interval
	}
	return &Tracker{
		repo:      repo,
		profiles:  profiles,
		publisher: publisher,
		interval:  interval,
		window:    window,
		log:       log,
		sessions:  make(map[uuid.UUID]*heartbeat),
	}
}

// Start marks the user online and begins the heartbeat. Starting an already
// started session is a no-op.
func (t *Tracker) Start(userID uuid.UUID) {
	t.mu.Lock()
	if _, running := t.sessions[userID]; running {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel, done: make(chan struct{})}
	t.sessions[userID] = hb
	t.mu.Unlock()

	t.beat(ctx, userID)
	go t.run(ctx, userID, hb)
}

func (t *Tracker) run(ctx context.Context, userID uuid.UUID, hb *heartbeat) {
	defer close(hb.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.beat(ctx, userID)
		}
	}
}

// beat upserts the online row. Failures are logged and retried on the next
// tick; the heartbeat is best-effort upkeep, never surfaced.
func (t *Tracker) beat(ctx context.Context, userID uuid.UUID) {
	p := realtime.Presence{
		UserID:   userID,
		Status:   realtime.StatusOnline,
		LastSeen: time.Now(),
	}
	if err := t.repo.Upsert(ctx, &p); err != nil {
		t.log.Warnf("presence heartbeat for %s: %v", userID, err)
		return
	}
	t.publish(ctx, userID, realtime.StatusOnline)
}

// Stop marks the user offline and halts the heartbeat. It blocks until the
// heartbeat goroutine has exited, so no tick can resurrect the row afterward.
func (t *Tracker) Stop(userID uuid.UUID) {
	t.mu.Lock()
	hb, running := t.sessions[userID]
	if running {
		delete(t.sessions, userID)
	}
	t.mu.Unlock()
	if !running {
		return
	}

	hb.cancel()
	<-hb.done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := realtime.Presence{
		UserID:   userID,
		Status:   realtime.StatusOffline,
		LastSeen: time.Now(),
	}
	if err := t.repo.Upsert(ctx, &p); err != nil {
		// A stale online row expires via the staleness window.
		t.log.Warnf("presence sign-off for %s: %v", userID, err)
		return
	}
	t.publish(ctx, userID, realtime.StatusOffline)
}

// StopAll signs off every running session. Called on shutdown.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	ids := make([]uuid.UUID, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Stop(id)
	}
}

// OnlineUsers materializes the online set: status=online and a heartbeat
// within the staleness window. Rows from crashed sessions fail the window
// check no matter what their status says.
func (t *Tracker) OnlineUsers(ctx context.Context) ([]identity.Public, error) {
	rows, err := t.repo.GetOnline(ctx, time.Now().Add(-t.window))
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	profiles, err := t.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	users := make([]identity.Public, 0, len(rows))
	for _, row := range rows {
		if p, ok := profiles[row.UserID]; ok {
			users = append(users, p.Public())
		} else {
			users = append(users, identity.Public{ID: row.UserID})
		}
	}
	return users, nil
}

func (t *Tracker) publish(ctx context.Context, userID uuid.UUID, status string) {
	payload, _ := json.Marshal(map[string]string{"user_id": userID.String(), "status": status})
	t.publisher.Publish(ctx, events.PresenceChannel(), events.Envelope{
		EventType:     events.EventTypePresenceChanged,
		AggregateType: events.AggregateTypePresence,
		AggregateID:   userID.String(),
		Payload:       payload,
	})
}
