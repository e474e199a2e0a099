package repository

import (
	"context"
	"time"

	"commune-chat/internal/domain/conversation"
	"commune-chat/internal/domain/identity"
	"commune-chat/internal/domain/message"
	"commune-chat/internal/domain/realtime"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	CreateWithCreator(ctx context.Context, conv *conversation.Conversation, creatorID uuid.UUID, memberIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	GetUserConversations(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error)
	GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]conversation.Participant, error)
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Participant, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	TouchUpdatedAt(ctx context.Context, conversationID uuid.UUID, at time.Time) error
	UpdateLastReadAt(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	GetConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error)
	GetLatestMessage(ctx context.Context, conversationID uuid.UUID) (message.Message, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since time.Time) (int64, error)
	UpsertReaction(ctx context.Context, r *message.Reaction) error
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error
	GetReactions(ctx context.Context, messageIDs []uuid.UUID) ([]message.Reaction, error)
}

type PresenceRepository interface {
	Upsert(ctx context.Context, p *realtime.Presence) error
	GetOnline(ctx context.Context, seenAfter time.Time) ([]realtime.Presence, error)
}

type TypingRepository interface {
	Upsert(ctx context.Context, mark *realtime.TypingMark) error
	Delete(ctx context.Context, conversationID, userID uuid.UUID) error
	GetActive(ctx context.Context, conversationID uuid.UUID, markedAfter time.Time) ([]realtime.TypingMark, error)
}

type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (identity.Profile, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]identity.Profile, error)
	Upsert(ctx context.Context, p *identity.Profile) error
}
