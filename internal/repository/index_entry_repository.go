package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docqa/internal/model"
)

const (
	insertBatchSize = 100
	generationRowID = 1
)

type IndexEntryRepository struct {
	db *gorm.DB
}

func NewIndexEntryRepository(db *gorm.DB) *IndexEntryRepository {
	return &IndexEntryRepository{db: db}
}

// Migrate creates the entry and generation tables and the generation row.
func (r *IndexEntryRepository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&model.IndexEntry{}, &model.IndexGeneration{}); err != nil {
		return fmt.Errorf("migrate index entries failed: %w", err)
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.IndexGeneration{ID: generationRowID}).Error
	if err != nil {
		return fmt.Errorf("create index generation failed: %w", err)
	}
	return nil
}

// Generation returns the current write generation.
func (r *IndexEntryRepository) Generation(ctx context.Context) (int64, error) {
	gen, err := readGeneration(r.db.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("read index generation failed: %w", err)
	}
	return gen, nil
}

// Snapshot returns every stored entry ordered by id together with the generation they belong to.
func (r *IndexEntryRepository) Snapshot(ctx context.Context) ([]model.IndexEntry, int64, error) {
	var rows []model.IndexEntry
	var g model.IndexGeneration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&g, generationRowID).Error; err != nil {
			return err
		}
		return tx.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list index entries failed: %w", err)
	}
	return rows, g.Value, nil
}

// Replace deletes the given ids (and, when source is non-empty, every row of that source) and
// inserts rows, all in one transaction. It returns the deleted count and the new generation.
func (r *IndexEntryRepository) Replace(ctx context.Context, source string, ids []string, rows []model.IndexEntry) (int64, int64, error) {
	var deleted, gen int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := deleteRows(tx, source, ids)
		if err != nil {
			return err
		}
		deleted = n
		if err := upsertRows(tx, rows); err != nil {
			return err
		}
		gen, err = bumpGeneration(tx)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("replace index entries failed: %w", err)
	}
	return deleted, gen, nil
}

// Delete removes rows by source and/or ids in one transaction. It returns the deleted count and
// the new generation.
func (r *IndexEntryRepository) Delete(ctx context.Context, source string, ids []string) (int64, int64, error) {
	var deleted, gen int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := deleteRows(tx, source, ids)
		if err != nil {
			return err
		}
		deleted = n
		if n == 0 {
			gen, err = readGeneration(tx)
			return err
		}
		gen, err = bumpGeneration(tx)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("delete index entries failed: %w", err)
	}
	return deleted, gen, nil
}

func bumpGeneration(tx *gorm.DB) (int64, error) {
	err := tx.Model(&model.IndexGeneration{}).
		Where("id = ?", generationRowID).
		UpdateColumn("value", gorm.Expr("value + ?", 1)).Error
	if err != nil {
		return 0, err
	}
	return readGeneration(tx)
}

func readGeneration(tx *gorm.DB) (int64, error) {
	var g model.IndexGeneration
	if err := tx.First(&g, generationRowID).Error; err != nil {
		return 0, err
	}
	return g.Value, nil
}

func upsertRows(tx *gorm.DB, rows []model.IndexEntry) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, insertBatchSize).Error
}

func deleteRows(tx *gorm.DB, source string, ids []string) (int64, error) {
	var total int64
	if source != "" {
		res := tx.Where("source = ?", source).Delete(&model.IndexEntry{})
		if res.Error != nil {
			return 0, res.Error
		}
		total += res.RowsAffected
	}
	for i := 0; i < len(ids); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		res := tx.Where("id IN ?", ids[i:end]).Delete(&model.IndexEntry{})
		if res.Error != nil {
			return 0, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
