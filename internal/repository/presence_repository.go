package repository

import (
	"context"
	"time"

	"commune-chat/internal/domain/realtime"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresPresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &PostgresPresenceRepository{db: db}
}

func (r *PostgresPresenceRepository) Upsert(ctx context.Context, p *realtime.Presence) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen"}),
		}).
		Create(p).Error
}

// GetOnline returns rows with status=online whose heartbeat is newer than
// seenAfter. Stored status alone is not trusted: a crashed client leaves
// status=online behind forever.
func (r *PostgresPresenceRepository) GetOnline(ctx context.Context, seenAfter time.Time) ([]realtime.Presence, error) {
	var rows []realtime.Presence
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_seen > ?", realtime.StatusOnline, seenAfter).
		Order("last_seen DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
