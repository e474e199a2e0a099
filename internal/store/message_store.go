package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"commune-chat/internal/domain/identity"
	"commune-chat/internal/domain/message"
	"commune-chat/internal/events"
	"commune-chat/internal/repository"
	commune_errors "commune-chat/pkg/errors"
	"commune-chat/pkg/logger"

	"github.com/google/uuid"
)

// SendMessageInput carries one outgoing message. FileURL/FileName are only
// meaningful for kind=file sends.
type SendMessageInput struct {
	ConversationID uuid.UUID
	Content        string
	Kind           string
	FileURL        string
	FileName       string
	ReplyToID      *uuid.UUID
}

type MessageStore struct {
	msgRepo   repository.MessageRepository
	convRepo  repository.ConversationRepository
	profiles  repository.ProfileRepository
	publisher *events.Publisher
	log       *logger.Logger
}

func NewMessageStore(msgRepo repository.MessageRepository, convRepo repository.ConversationRepository, profiles repository.ProfileRepository, publisher *events.Publisher, log *logger.Logger) *MessageStore {
	return &MessageStore{
		msgRepo:   msgRepo,
		convRepo:  convRepo,
		profiles:  profiles,
		publisher: publisher,
		log:       log,
	}
}

// ListFor checks the caller's membership, then returns the conversation's
// visible messages in created_at order.
func (s *MessageStore) ListFor(ctx context.Context, userID, conversationID uuid.UUID) ([]MessageView, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.List(ctx, conversationID)
}

// List builds the enriched message sequence without an access check. The
// result is identical for every participant, which is what lets the
// synchronization cache share one entry per conversation.
func (s *MessageStore) List(ctx context.Context, conversationID uuid.UUID) ([]MessageView, error) {
	msgs, err := s.msgRepo.GetConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, asBackend(err)
	}

	// Reply targets may be deleted or otherwise absent from the visible
	// sequence; fetch them separately.
	byID := make(map[uuid.UUID]message.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	replies := make(map[uuid.UUID]message.Message)
	for _, m := range msgs {
		if !m.ReplyToID.Valid {
			continue
		}
		target := m.ReplyToID.UUID
		if cached, ok := byID[target]; ok {
			replies[target] = cached
			continue
		}
		if _, ok := replies[target]; ok {
			continue
		}
		reply, err := s.msgRepo.GetByID(ctx, target)
		if err != nil {
			if errors.Is(err, commune_errors.ErrNotFound) {
				continue
			}
			return nil, asBackend(err)
		}
		replies[target] = reply
	}

	messageIDs := make([]uuid.UUID, 0, len(msgs))
	for _, m := range msgs {
		messageIDs = append(messageIDs, m.ID)
	}
	reactions, err := s.msgRepo.GetReactions(ctx, messageIDs)
	if err != nil {
		return nil, asBackend(err)
	}

	profileIDs := make([]uuid.UUID, 0, len(msgs))
	for _, m := range msgs {
		profileIDs = append(profileIDs, m.SenderID)
	}
	for _, r := range replies {
		profileIDs = append(profileIDs, r.SenderID)
	}
	for _, r := range reactions {
		profileIDs = append(profileIDs, r.UserID)
	}
	profiles, err := s.profiles.GetByIDs(ctx, profileIDs)
	if err != nil {
		return nil, asBackend(err)
	}

	reactionsByMessage := make(map[uuid.UUID][]message.Reaction)
	for _, r := range reactions {
		reactionsByMessage[r.MessageID] = append(reactionsByMessage[r.MessageID], r)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		view := viewFromEntity(m, publicIdentity(profiles, m.SenderID))
		if m.ReplyToID.Valid {
			if reply, ok := replies[m.ReplyToID.UUID]; ok {
				view.ReplyTo = replyView(reply, profiles)
			}
		}
		view.Reactions = groupReactions(reactionsByMessage[m.ID], profiles)
		views = append(views, view)
	}
	return views, nil
}

// Send validates membership and the reply reference, inserts the message and
// bumps the conversation's updated_at so it sorts to the top of the list.
func (s *MessageStore) Send(ctx context.Context, senderID uuid.UUID, input SendMessageInput) (MessageView, error) {
	if strings.TrimSpace(input.Content) == "" && input.Kind != message.KindFile {
		return MessageView{}, commune_errors.ErrInvalidInput
	}
	kind := input.Kind
	if kind == "" {
		kind = message.KindText
	}
	if kind != message.KindText && kind != message.KindFile {
		return MessageView{}, commune_errors.ErrInvalidInput
	}

	if err := s.requireParticipant(ctx, input.ConversationID, senderID); err != nil {
		return MessageView{}, err
	}

	// Reject cross-conversation replies before anything is written.
	if input.ReplyToID != nil {
		target, err := s.msgRepo.GetByID(ctx, *input.ReplyToID)
		if err != nil {
			if errors.Is(err, commune_errors.ErrNotFound) {
				return MessageView{}, commune_errors.ErrInvalidReference
			}
			return MessageView{}, asBackend(err)
		}
		if target.ConversationID != input.ConversationID {
			return MessageView{}, commune_errors.ErrInvalidReference
		}
	}

	m := message.Message{
		ID:             uuid.New(),
		ConversationID: input.ConversationID,
		SenderID:       senderID,
		Content:        input.Content,
		Kind:           kind,
		CreatedAt:      time.Now(),
	}
	if input.FileURL != "" {
		m.FileURL = sql.NullString{String: input.FileURL, Valid: true}
	}
	if input.FileName != "" {
		m.FileName = sql.NullString{String: input.FileName, Valid: true}
	}
	if input.ReplyToID != nil {
		m.ReplyToID = uuid.NullUUID{UUID: *input.ReplyToID, Valid: true}
	}

	if err := s.msgRepo.Create(ctx, &m); err != nil {
		return MessageView{}, asBackend(err)
	}
	if err := s.convRepo.TouchUpdatedAt(ctx, input.ConversationID, m.CreatedAt); err != nil {
		s.log.Warnf("bump conversation %s updated_at: %v", input.ConversationID, err)
	}

	s.publishMessage(ctx, events.EventTypeMessageCreated, m.ConversationID, m.ID)

	profiles, err := s.profiles.GetByIDs(ctx, []uuid.UUID{senderID})
	if err != nil {
		return MessageView{}, asBackend(err)
	}
	return viewFromEntity(m, publicIdentity(profiles, senderID)), nil
}

// Delete soft-deletes the message. Only the sender may delete; the row is
// retained so replies to it keep resolving.
func (s *MessageStore) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	m, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return asBackend(err)
	}
	if m.SenderID != userID {
		return commune_errors.ErrForbidden
	}
	if err := s.msgRepo.SoftDelete(ctx, messageID); err != nil {
		return asBackend(err)
	}
	s.publishMessage(ctx, events.EventTypeMessageDeleted, m.ConversationID, m.ID)
	return nil
}

// AddReaction upserts on (message, user, emoji); repeating it is a no-op.
func (s *MessageStore) AddReaction(ctx context.Context, userID, messageID uuid.UUID, emoji string) error {
	if emoji == "" {
		return commune_errors.ErrInvalidInput
	}
	m, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return asBackend(err)
	}
	if err := s.requireParticipant(ctx, m.ConversationID, userID); err != nil {
		return err
	}

	r := message.Reaction{
		ID:        uuid.New(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	}
	if err := s.msgRepo.UpsertReaction(ctx, &r); err != nil {
		return asBackend(err)
	}
	s.publishReaction(ctx, events.EventTypeReactionAdded, m.ConversationID, messageID)
	return nil
}

func (s *MessageStore) RemoveReaction(ctx context.Context, userID, messageID uuid.UUID, emoji string) error {
	m, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return asBackend(err)
	}
	if err := s.msgRepo.RemoveReaction(ctx, messageID, userID, emoji); err != nil {
		if errors.Is(err, commune_errors.ErrNotFound) {
			return nil // already gone
		}
		return asBackend(err)
	}
	s.publishReaction(ctx, events.EventTypeReactionRemoved, m.ConversationID, messageID)
	return nil
}

func (s *MessageStore) requireParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	ok, err := s.convRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return asBackend(err)
	}
	if !ok {
		return commune_errors.ErrForbidden
	}
	return nil
}

func (s *MessageStore) publishMessage(ctx context.Context, eventType string, conversationID, messageID uuid.UUID) {
	payload, _ := json.Marshal(map[string]string{"conversation_id": conversationID.String()})
	s.publisher.Publish(ctx, events.MessagesChannel(conversationID), events.Envelope{
		EventType:     eventType,
		AggregateType: events.AggregateTypeMessage,
		AggregateID:   messageID.String(),
		Payload:       payload,
	})
}

func (s *MessageStore) publishReaction(ctx context.Context, eventType string, conversationID, messageID uuid.UUID) {
	payload, _ := json.Marshal(map[string]string{"conversation_id": conversationID.String()})
	s.publisher.Publish(ctx, events.MessagesChannel(conversationID), events.Envelope{
		EventType:     eventType,
		AggregateType: events.AggregateTypeReaction,
		AggregateID:   messageID.String(),
		Payload:       payload,
	})
}

func replyView(m message.Message, profiles map[uuid.UUID]identity.Profile) *ReplyView {
	view := &ReplyView{
		ID:      m.ID,
		Sender:  publicIdentity(profiles, m.SenderID),
		Deleted: m.IsDeleted,
	}
	if !m.IsDeleted {
		view.Content = m.Content
	}
	return view
}

func groupReactions(reactions []message.Reaction, profiles map[uuid.UUID]identity.Profile) []ReactionGroup {
	if len(reactions) == 0 {
		return nil
	}
	order := make([]string, 0, 4)
	grouped := make(map[string]*ReactionGroup, 4)
	for _, r := range reactions {
		g, ok := grouped[r.Emoji]
		if !ok {
			order = append(order, r.Emoji)
			g = &ReactionGroup{Emoji: r.Emoji}
			grouped[r.Emoji] = g
		}
		g.Count++
		g.Reactors = append(g.Reactors, publicIdentity(profiles, r.UserID))
	}

	groups := make([]ReactionGroup, 0, len(order))
	for _, emoji := range order {
		groups = append(groups, *grouped[emoji])
	}
	return groups
}
