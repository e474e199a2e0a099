package store

import (
	"context"

	"commune-chat/internal/synccache"
	"commune-chat/pkg/logger"

	"github.com/google/uuid"
)

// Cache key kinds
const (
	QueryKindMessages      = "messages"
	QueryKindConversations = "conversations"
)

func MessagesKey(conversationID uuid.UUID) synccache.Key {
	return synccache.Key{Kind: QueryKindMessages, Arg: conversationID.String()}
}

func ConversationsKey(userID uuid.UUID) synccache.Key {
	return synccache.Key{Kind: QueryKindConversations, Arg: userID.String()}
}

// Queries routes reads through the synchronization cache. Message lists are
// cached once per conversation (the enriched result is caller-independent;
// membership is checked before the cache is touched); conversation lists are
// cached per user because unread counts are.
type Queries struct {
	cache         *synccache.Cache
	conversations *ConversationStore
	messages      *MessageStore
	log           *logger.Logger
}

func NewQueries(cache *synccache.Cache, conversations *ConversationStore, messages *MessageStore, log *logger.Logger) *Queries {
	return &Queries{
		cache:         cache,
		conversations: conversations,
		messages:      messages,
		log:           log,
	}
}

func (q *Queries) Cache() *synccache.Cache {
	return q.cache
}

func (q *Queries) Messages(ctx context.Context, userID, conversationID uuid.UUID) ([]MessageView, error) {
	if err := q.messages.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	value, err := q.cache.Get(ctx, MessagesKey(conversationID), func(ctx context.Context) (any, error) {
		return q.messages.List(ctx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]MessageView), nil
}

func (q *Queries) Conversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	value, err := q.cache.Get(ctx, ConversationsKey(userID), func(ctx context.Context) (any, error) {
		return q.conversations.List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]ConversationSummary), nil
}

// InvalidateAfterMessageChange marks the affected queries stale after a local
// write: the conversation's message list plus every participant's conversation
// list, so readers without a stream still see fresh unread counts and
// orderings. Watchers invalidate again via the feed; refetching twice is
// harmless.
func (q *Queries) InvalidateAfterMessageChange(ctx context.Context, conversationID, userID uuid.UUID) {
	q.cache.Invalidate(MessagesKey(conversationID))

	ids, err := q.conversations.ParticipantIDs(ctx, conversationID)
	if err != nil {
		q.log.Warnf("invalidate conversation lists for %s: %v", conversationID, err)
		q.cache.Invalidate(ConversationsKey(userID))
		return
	}
	for _, id := range ids {
		q.cache.Invalidate(ConversationsKey(id))
	}
}
