package conversation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Conversation kinds
const (
	KindDirect = "direct"
	KindGroup  = "group"
)

// Participant roles
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Conversation represents the conversations table
type Conversation struct {
	ID          uuid.UUID `gorm:"primaryKey"`
	Name        sql.NullString
	Kind        string
	Description sql.NullString
	IsPrivate   bool
	CreatedBy   uuid.NullUUID
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"index"` // list ordering key, bumped on new message
}

// Participant represents the participants table
type Participant struct {
	ConversationID uuid.UUID `gorm:"primaryKey"`
	UserID         uuid.UUID `gorm:"primaryKey"`
	Role           string
	JoinedAt       time.Time
	LastReadAt     sql.NullTime
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "participants"
}
