package identity

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Profile represents the profiles table. Rows are written by the external
// identity provider; this service only reads them.
type Profile struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	FullName  string
	AvatarURL sql.NullString
	Bio       sql.NullString
	UpdatedAt time.Time
}

// Public is the identity shape attached to everything this service returns:
// messages, participants, reactions, typing marks. Built once from a Profile
// row instead of reassembled per call site.
type Public struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

func (p Profile) Public() Public {
	pub := Public{ID: p.ID, DisplayName: p.FullName}
	if p.AvatarURL.Valid {
		pub.AvatarURL = p.AvatarURL.String
	}
	return pub
}

func (Profile) TableName() string {
	return "profiles"
}
