package typing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"commune-chat/internal/domain/identity"
	"commune-chat/internal/domain/realtime"
	"commune-chat/internal/events"
	"commune-chat/internal/repository"
	commune_errors "commune-chat/pkg/errors"
	"commune-chat/pkg/logger"

	"github.com/google/uuid"
)

// Coordinator manages the per-conversation "user X is typing" marks. Marks
// are leases, not durable state: Start refreshes the lease, Stop releases it,
// and reads ignore anything older than the TTL so a client that vanishes
// mid-type goes quiet on its own.
type Coordinator struct {
	repo      repository.TypingRepository
	profiles  repository.ProfileRepository
	publisher *events.Publisher
	ttl       time.Duration
	log       *logger.Logger
}

func NewCoordinator(repo repository.TypingRepository, profiles repository.ProfileRepository, publisher *events.Publisher, ttl time.Duration, log *logger.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = 6 * time.Second
	}
	return &Coordinator{
		repo:      repo,
		profiles:  profiles,
		publisher: publisher,
		ttl:       ttl,
		log:       log,
	}
}

func (c *Coordinator) Start(ctx context.Context, userID, conversationID uuid.UUID) error {
	mark := realtime.TypingMark{
		ConversationID: conversationID,
		UserID:         userID,
		UpdatedAt:      time.Now(),
	}
	if err := c.repo.Upsert(ctx, &mark); err != nil {
		return err
	}
	c.publish(ctx, events.EventTypeTypingStarted, userID, conversationID)
	return nil
}

func (c *Coordinator) Stop(ctx context.Context, userID, conversationID uuid.UUID) error {
	if err := c.repo.Delete(ctx, conversationID, userID); err != nil {
		if errors.Is(err, commune_errors.ErrNotFound) {
			return nil // already expired or never started
		}
		return err
	}
	c.publish(ctx, events.EventTypeTypingStopped, userID, conversationID)
	return nil
}

// TypingUsers returns who is typing in the conversation right now, excluding
// the caller's own mark and anything past the TTL.
func (c *Coordinator) TypingUsers(ctx context.Context, conversationID, excludeUserID uuid.UUID) ([]identity.Public, error) {
	marks, err := c.repo.GetActive(ctx, conversationID, time.Now().Add(-c.ttl))
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(marks))
	for _, mark := range marks {
		if mark.UserID == excludeUserID {
			continue
		}
		ids = append(ids, mark.UserID)
	}
	profiles, err := c.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	users := make([]identity.Public, 0, len(ids))
	for _, id := range ids {
		if p, ok := profiles[id]; ok {
			users = append(users, p.Public())
		} else {
			users = append(users, identity.Public{ID: id})
		}
	}
	return users, nil
}

func (c *Coordinator) publish(ctx context.Context, eventType string, userID, conversationID uuid.UUID) {
	payload, _ := json.Marshal(map[string]string{"user_id": userID.String()})
	c.publisher.Publish(ctx, events.TypingChannel(conversationID), events.Envelope{
		EventType:     eventType,
		AggregateType: events.AggregateTypeTyping,
		AggregateID:   conversationID.String(),
		Payload:       payload,
	})
}
