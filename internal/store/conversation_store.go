package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"commune-chat/internal/domain/conversation"
	"commune-chat/internal/domain/identity"
	"commune-chat/internal/events"
	"commune-chat/internal/repository"
	commune_errors "commune-chat/pkg/errors"
	"commune-chat/pkg/logger"

	"github.com/google/uuid"
)

// CreateConversationSpec carries everything needed to open a conversation.
// ParticipantIDs excludes the creator, who always joins as admin.
type CreateConversationSpec struct {
	Name           string
	Kind           string
	Description    string
	IsPrivate      bool
	ParticipantIDs []uuid.UUID
}

type ConversationStore struct {
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	profiles  repository.ProfileRepository
	publisher *events.Publisher
	log       *logger.Logger
}

func NewConversationStore(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, profiles repository.ProfileRepository, publisher *events.Publisher, log *logger.Logger) *ConversationStore {
	return &ConversationStore{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		profiles:  profiles,
		publisher: publisher,
		log:       log,
	}
}

// List returns the caller's conversations ordered by updated_at descending,
// each with participants, the latest visible message and the caller's unread
// count computed from its read cursor.
func (s *ConversationStore) List(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	conversations, err := s.convRepo.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, asBackend(err)
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summary, err := s.summarize(ctx, conv, userID)
		if err != nil {
			return nil, asBackend(err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *ConversationStore) summarize(ctx context.Context, conv conversation.Conversation, userID uuid.UUID) (ConversationSummary, error) {
	summary := summaryFromEntity(conv)

	participants, err := s.convRepo.GetParticipants(ctx, conv.ID)
	if err != nil {
		return ConversationSummary{}, err
	}

	ids := make([]uuid.UUID, 0, len(participants)+1)
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}

	latest, err := s.msgRepo.GetLatestMessage(ctx, conv.ID)
	hasLatest := err == nil
	if err != nil && !errors.Is(err, commune_errors.ErrNotFound) {
		return ConversationSummary{}, err
	}
	if hasLatest {
		ids = append(ids, latest.SenderID)
	}

	profiles, err := s.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return ConversationSummary{}, err
	}

	var lastRead time.Time
	summary.Participants = make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		view := ParticipantView{
			UserID:   p.UserID,
			Role:     p.Role,
			JoinedAt: p.JoinedAt,
			User:     publicIdentity(profiles, p.UserID),
		}
		if p.LastReadAt.Valid {
			readAt := p.LastReadAt.Time
			view.LastReadAt = &readAt
			if p.UserID == userID {
				lastRead = readAt
			}
		}
		summary.Participants = append(summary.Participants, view)
	}

	if hasLatest {
		view := viewFromEntity(latest, publicIdentity(profiles, latest.SenderID))
		summary.LastMessage = &view
	}

	unread, err := s.msgRepo.CountUnread(ctx, conv.ID, userID, lastRead)
	if err != nil {
		return ConversationSummary{}, err
	}
	summary.UnreadCount = unread

	return summary, nil
}

// Create opens a conversation with the creator as admin and every listed
// participant as member. The creator-admin row is written in the same
// transaction as the conversation itself.
func (s *ConversationStore) Create(ctx context.Context, creatorID uuid.UUID, spec CreateConversationSpec) (ConversationSummary, error) {
	if spec.Kind != conversation.KindDirect && spec.Kind != conversation.KindGroup {
		return ConversationSummary{}, commune_errors.ErrInvalidInput
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:        uuid.New(),
		Kind:      spec.Kind,
		IsPrivate: spec.IsPrivate,
		CreatedBy: uuid.NullUUID{UUID: creatorID, Valid: true},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if spec.Name != "" {
		conv.Name = sql.NullString{String: spec.Name, Valid: true}
	}
	if spec.Description != "" {
		conv.Description = sql.NullString{String: spec.Description, Valid: true}
	}

	if err := s.convRepo.CreateWithCreator(ctx, &conv, creatorID, spec.ParticipantIDs); err != nil {
		return ConversationSummary{}, asBackend(err)
	}

	payload, _ := json.Marshal(map[string]string{"conversation_id": conv.ID.String()})
	s.publisher.Publish(ctx, events.ConversationsChannel(), events.Envelope{
		EventType:     events.EventTypeConversationCreated,
		AggregateType: events.AggregateTypeConversation,
		AggregateID:   conv.ID.String(),
		Payload:       payload,
	})

	return s.summarize(ctx, conv, creatorID)
}

// MarkRead advances the caller's read cursor to now.
func (s *ConversationStore) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) error {
	if err := s.convRepo.UpdateLastReadAt(ctx, conversationID, userID, time.Now()); err != nil {
		return asBackend(err)
	}

	payload, _ := json.Marshal(map[string]string{"user_id": userID.String()})
	s.publisher.Publish(ctx, events.MessagesChannel(conversationID), events.Envelope{
		EventType:     events.EventTypeConversationRead,
		AggregateType: events.AggregateTypeConversation,
		AggregateID:   conversationID.String(),
		Payload:       payload,
	})
	return nil
}

// ParticipantIDs returns the user ids of everyone in the conversation.
func (s *ConversationStore) ParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	participants, err := s.convRepo.GetParticipants(ctx, conversationID)
	if err != nil {
		return nil, asBackend(err)
	}
	ids := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

func (s *ConversationStore) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	ok, err := s.convRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return false, asBackend(err)
	}
	return ok, nil
}

func publicIdentity(profiles map[uuid.UUID]identity.Profile, id uuid.UUID) identity.Public {
	if p, ok := profiles[id]; ok {
		return p.Public()
	}
	// Profile row missing: keep the id so the UI can still key on it.
	return identity.Public{ID: id}
}
