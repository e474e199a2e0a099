package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Presence statuses
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Presence represents the user_presence table. One row per user; the stored
// status is only trusted while last_seen is within the staleness window.
type Presence struct {
	UserID   uuid.UUID `gorm:"primaryKey"`
	Status   string
	LastSeen time.Time
}

// TypingMark represents the typing_marks table. Existence means "currently
// typing"; marks older than the typing TTL are ignored on read so a client
// that dies mid-type cannot leave a permanent indicator.
type TypingMark struct {
	ConversationID uuid.UUID `gorm:"primaryKey"`
	UserID         uuid.UUID `gorm:"primaryKey"`
	UpdatedAt      time.Time
}

func (Presence) TableName() string {
	return "user_presence"
}

func (TypingMark) TableName() string {
	return "typing_marks"
}
