package typing_test

import (
	"context"
	"testing"
	"time"

	"commune-chat/internal/domain/identity"
	"commune-chat/internal/domain/realtime"
	"commune-chat/internal/events"
	"commune-chat/internal/repository"
	"commune-chat/internal/typing"
	"commune-chat/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newCoordinator(t *testing.T, ttl time.Duration) (*typing.Coordinator, repository.TypingRepository, repository.ProfileRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&identity.Profile{}, &realtime.TypingMark{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewNop()
	typingRepo := repository.NewTypingRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	publisher := events.NewPublisher(client, log)

	return typing.NewCoordinator(typingRepo, profileRepo, publisher, ttl, log), typingRepo, profileRepo
}

func TestTypingRoundTrip(t *testing.T) {
	coordinator, _, profiles := newCoordinator(t, 6*time.Second)
	ctx := context.Background()

	conv := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	if err := profiles.Upsert(ctx, &identity.Profile{ID: alice, FullName: "Alice", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}

	if err := coordinator.Start(ctx, alice, conv); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Bob sees Alice typing; Alice never sees herself.
	users, err := coordinator.TypingUsers(ctx, conv, bob)
	if err != nil {
		t.Fatalf("typing users: %v", err)
	}
	if len(users) != 1 || users[0].DisplayName != "Alice" {
		t.Fatalf("unexpected typists: %+v", users)
	}

	users, err = coordinator.TypingUsers(ctx, conv, alice)
	if err != nil {
		t.Fatalf("typing users: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("caller sees own typing mark: %+v", users)
	}

	if err := coordinator.Stop(ctx, alice, conv); err != nil {
		t.Fatalf("stop: %v", err)
	}
	users, err = coordinator.TypingUsers(ctx, conv, bob)
	if err != nil {
		t.Fatalf("typing users: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("typist still visible after stop: %+v", users)
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	coordinator, _, _ := newCoordinator(t, 6*time.Second)

	if err := coordinator.Stop(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Errorf("stop without start: %v", err)
	}
}

// An abandoned mark expires on its own once the TTL passes.
func TestExpiredMarkGoesQuiet(t *testing.T) {
	coordinator, repo, _ := newCoordinator(t, 6*time.Second)
	ctx := context.Background()

	conv := uuid.New()
	vanished := uuid.New()
	if err := repo.Upsert(ctx, &realtime.TypingMark{
		ConversationID: conv,
		UserID:         vanished,
		UpdatedAt:      time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	users, err := coordinator.TypingUsers(ctx, conv, uuid.New())
	if err != nil {
		t.Fatalf("typing users: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expired mark still visible: %+v", users)
	}
}

func TestStartRefreshesLease(t *testing.T) {
	coordinator, repo, _ := newCoordinator(t, 6*time.Second)
	ctx := context.Background()

	conv := uuid.New()
	user := uuid.New()

	if err := repo.Upsert(ctx, &realtime.TypingMark{
		ConversationID: conv,
		UserID:         user,
		UpdatedAt:      time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("seed expired mark: %v", err)
	}

	// Start on an existing mark refreshes it instead of failing.
	if err := coordinator.Start(ctx, user, conv); err != nil {
		t.Fatalf("restart typing: %v", err)
	}

	marks, err := repo.GetActive(ctx, conv, time.Now().Add(-6*time.Second))
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(marks) != 1 {
		t.Fatalf("expected refreshed mark, got %d", len(marks))
	}
}
