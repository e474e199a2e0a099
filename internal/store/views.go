package store

import (
	"time"

	"commune-chat/internal/domain/conversation"
	"commune-chat/internal/domain/identity"
	"commune-chat/internal/domain/message"

	"github.com/google/uuid"
)

// ConversationSummary is one row of the conversation list: the conversation
// enriched with its participants, its most recent visible message and the
// caller's unread count.
type ConversationSummary struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name,omitempty"`
	Kind         string            `json:"kind"`
	Description  string            `json:"description,omitempty"`
	IsPrivate    bool              `json:"is_private"`
	CreatedBy    *uuid.UUID        `json:"created_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Participants []ParticipantView `json:"participants"`
	LastMessage  *MessageView      `json:"last_message,omitempty"`
	UnreadCount  int64             `json:"unread_count"`
}

type ParticipantView struct {
	UserID     uuid.UUID       `json:"user_id"`
	Role       string          `json:"role"`
	JoinedAt   time.Time       `json:"joined_at"`
	LastReadAt *time.Time      `json:"last_read_at,omitempty"`
	User       identity.Public `json:"user"`
}

// MessageView is a message with sender identity, resolved reply target and
// grouped reactions attached.
type MessageView struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Content        string          `json:"content"`
	Kind           string          `json:"kind"`
	FileURL        string          `json:"file_url,omitempty"`
	FileName       string          `json:"file_name,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Sender         identity.Public `json:"sender"`
	ReplyTo        *ReplyView      `json:"reply_to,omitempty"`
	Reactions      []ReactionGroup `json:"reactions,omitempty"`
}

// ReplyView is the reply target. Deleted targets keep their row so the
// reference stays resolvable; they render as a tombstone with no content.
type ReplyView struct {
	ID      uuid.UUID       `json:"id"`
	Content string          `json:"content"`
	Sender  identity.Public `json:"sender"`
	Deleted bool            `json:"deleted"`
}

type ReactionGroup struct {
	Emoji    string            `json:"emoji"`
	Count    int               `json:"count"`
	Reactors []identity.Public `json:"reactors"`
}

func summaryFromEntity(conv conversation.Conversation) ConversationSummary {
	s := ConversationSummary{
		ID:        conv.ID,
		Kind:      conv.Kind,
		IsPrivate: conv.IsPrivate,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	if conv.Name.Valid {
		s.Name = conv.Name.String
	}
	if conv.Description.Valid {
		s.Description = conv.Description.String
	}
	if conv.CreatedBy.Valid {
		createdBy := conv.CreatedBy.UUID
		s.CreatedBy = &createdBy
	}
	return s
}

func viewFromEntity(m message.Message, sender identity.Public) MessageView {
	v := MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		Kind:           m.Kind,
		CreatedAt:      m.CreatedAt,
		Sender:         sender,
	}
	if m.FileURL.Valid {
		v.FileURL = m.FileURL.String
	}
	if m.FileName.Valid {
		v.FileName = m.FileName.String
	}
	return v
}
