package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type QueryRecordRepository struct {
	db *gorm.DB
}

func NewQueryRecordRepository(db *gorm.DB) *QueryRecordRepository {
	return &QueryRecordRepository{db: db}
}

func (r *QueryRecordRepository) Create(ctx context.Context, record *model.QueryRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create query record failed: %w", err)
	}
	return nil
}

// ListNewestFirst returns records by descending timestamp; limit <= 0 returns all.
func (r *QueryRecordRepository) ListNewestFirst(ctx context.Context, limit int) ([]model.QueryRecord, error) {
	q := r.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []model.QueryRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list query records failed: %w", err)
	}
	return records, nil
}

// ListAll returns every record in insertion order.
func (r *QueryRecordRepository) ListAll(ctx context.Context) ([]model.QueryRecord, error) {
	var records []model.QueryRecord
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list query records failed: %w", err)
	}
	return records, nil
}
