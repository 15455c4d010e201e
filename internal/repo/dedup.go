package repo

import (
	"context"
	"time"

	"github.com/KNICEX/trade-alert/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DedupRepo interface {
	Upsert(ctx context.Context, entries []entity.DedupEntry) error
	FindActive(ctx context.Context, now time.Time) ([]entity.DedupEntry, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type dedupRepo struct {
	db *gorm.DB
}

func NewDedupRepo(db *gorm.DB) DedupRepo {
	return &dedupRepo{
		db: db,
	}
}

func (r *dedupRepo) Upsert(ctx context.Context, entries []entity.DedupEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at", "updated_at"}),
	}).CreateInBatches(&entries, 200).Error
}

func (r *dedupRepo) FindActive(ctx context.Context, now time.Time) ([]entity.DedupEntry, error) {
	var entries []entity.DedupEntry
	err := r.db.WithContext(ctx).Where("expires_at > ?", now).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *dedupRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&entity.DedupEntry{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
