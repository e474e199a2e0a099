package repository

import (
	"context"
	"time"

	"commune-chat/internal/domain/realtime"
	commune_errors "commune-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresTypingRepository struct {
	db *gorm.DB
}

func NewTypingRepository(db *gorm.DB) TypingRepository {
	return &PostgresTypingRepository{db: db}
}

func (r *PostgresTypingRepository) Upsert(ctx context.Context, mark *realtime.TypingMark) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).
		Create(mark).Error
}

func (r *PostgresTypingRepository) Delete(ctx context.Context, conversationID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Delete(&realtime.TypingMark{}, "conversation_id = ? AND user_id = ?", conversationID, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return commune_errors.ErrNotFound
	}
	return nil
}

// GetActive returns marks refreshed after markedAfter. Older rows are stale
// leftovers from clients that never sent an explicit stop.
func (r *PostgresTypingRepository) GetActive(ctx context.Context, conversationID uuid.UUID, markedAfter time.Time) ([]realtime.TypingMark, error) {
	var marks []realtime.TypingMark
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND updated_at > ?", conversationID, markedAfter).
		Find(&marks).Error
	if err != nil {
		return nil, err
	}
	return marks, nil
}
