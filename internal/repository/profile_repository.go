package repository

import (
	"context"
	"errors"

	"commune-chat/internal/domain/identity"
	commune_errors "commune-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &PostgresProfileRepository{db: db}
}

func (r *PostgresProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (identity.Profile, error) {
	var p identity.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return identity.Profile{}, commune_errors.ErrNotFound
		}
		return identity.Profile{}, err
	}
	return p, nil
}

func (r *PostgresProfileRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]identity.Profile, error) {
	result := make(map[uuid.UUID]identity.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var profiles []identity.Profile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}

func (r *PostgresProfileRepository) Upsert(ctx context.Context, p *identity.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "avatar_url", "bio", "updated_at"}),
		}).
		Create(p).Error
}
