package database

import (
	"fmt"
	"time"

	"commune-chat/internal/domain/conversation"
	"commune-chat/internal/domain/identity"
	"commune-chat/internal/domain/message"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SeedResult struct {
	Profiles      []identity.Profile
	Conversations []conversation.Conversation
	Messages      []message.Message
}

// SeedDevelopment fills the database with a few test profiles, a group
// conversation and some chatter. Safe to run repeatedly.
func SeedDevelopment() (*SeedResult, error) {
	result := &SeedResult{}

	err := DB.Transaction(func(tx *gorm.DB) error {
		names := []string{"Ada Lovelace", "Grace Hopper", "Alan Turing"}
		for i, name := range names {
			p := identity.Profile{
				ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("seed-profile-%d", i))),
				FullName:  name,
				UpdatedAt: time.Now(),
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
				return err
			}
			result.Profiles = append(result.Profiles, p)
		}

		now := time.Now()
		conv := conversation.Conversation{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("seed-conversation-general")),
			Kind:      conversation.KindGroup,
			CreatedBy: uuid.NullUUID{UUID: result.Profiles[0].ID, Valid: true},
			CreatedAt: now,
			UpdatedAt: now,
		}
		conv.Name.String = "general"
		conv.Name.Valid = true
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conv).Error; err != nil {
			return err
		}
		result.Conversations = append(result.Conversations, conv)

		for i, p := range result.Profiles {
			role := conversation.RoleMember
			if i == 0 {
				role = conversation.RoleAdmin
			}
			participant := conversation.Participant{
				ConversationID: conv.ID,
				UserID:         p.ID,
				Role:           role,
				JoinedAt:       now,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participant).Error; err != nil {
				return err
			}
		}

		lines := []string{"hello!", "hey, anyone around?", "welcome to general"}
		for i, line := range lines {
			m := message.Message{
				ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("seed-message-%d", i))),
				ConversationID: conv.ID,
				SenderID:       result.Profiles[i%len(result.Profiles)].ID,
				Content:        line,
				Kind:           message.KindText,
				CreatedAt:      now.Add(time.Duration(i) * time.Second),
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return err
			}
			result.Messages = append(result.Messages, m)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
