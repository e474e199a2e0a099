package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Message kinds
const (
	KindText = "text"
	KindFile = "file"
)

// Message represents the messages table
type Message struct {
	ID             uuid.UUID `gorm:"primaryKey"`
	ConversationID uuid.UUID `gorm:"index:idx_messages_conversation"`
	SenderID       uuid.UUID
	Content        string
	Kind           string
	FileURL        sql.NullString
	FileName       sql.NullString
	ReplyToID      uuid.NullUUID
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation"`
	IsDeleted      bool
}

// Reaction represents the message_reactions table. One row per
// (message, user, emoji); re-reacting is an upsert on that key.
type Reaction struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	MessageID uuid.UUID `gorm:"uniqueIndex:idx_reactions_key"`
	UserID    uuid.UUID `gorm:"uniqueIndex:idx_reactions_key"`
	Emoji     string    `gorm:"uniqueIndex:idx_reactions_key"`
	CreatedAt time.Time
}

func (Message) TableName() string {
	return "messages"
}

func (Reaction) TableName() string {
	return "message_reactions"
}
