package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalflow/internal/dao"
	"signalflow/internal/model/entity"

	"gorm.io/gorm"
)

type deadLetterDao struct {
	db *gorm.DB
}

func NewDeadLetterDao(db *gorm.DB) dao.DeadLetterDao {
	return &deadLetterDao{db: db}
}

func (r *deadLetterDao) Create(ctx context.Context, entry *entity.DeadLetterEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	result := r.db.WithContext(ctx).Create(entry)
	if result.Error != nil {
		return fmt.Errorf("failed to create dead letter entry: %w", result.Error)
	}
	return nil
}

func (r *deadLetterDao) GetByID(ctx context.Context, id uint64) (*entity.DeadLetterEntry, error) {
	var entry entity.DeadLetterEntry
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&entry)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get dead letter entry: %w", result.Error)
	}
	return &entry, nil
}

func (r *deadLetterDao) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.DeadLetterEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete dead letter entry: %w", result.Error)
	}
	return nil
}

func (r *deadLetterDao) List(ctx context.Context, limit, offset int) ([]entity.DeadLetterEntry, error) {
	var entries []entity.DeadLetterEntry
	result := r.db.WithContext(ctx).
		Order("priority DESC").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list dead letter entries: %w", result.Error)
	}
	return entries, nil
}

func (r *deadLetterDao) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.DeadLetterEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count dead letter entries: %w", err)
	}
	return count, nil
}

// Stats 一次聚合查询拿到总数、最早/最新、平均滞留时长，再按类别分组
func (r *deadLetterDao) Stats(ctx context.Context, excludedCategories []string) (*dao.DeadLetterStats, error) {
	stats := &dao.DeadLetterStats{ByCategory: make(map[string]int64)}

	var agg struct {
		Total    int64      `gorm:"column:total"`
		Oldest   *time.Time `gorm:"column:oldest"`
		Newest   *time.Time `gorm:"column:newest"`
		AvgDwell float64    `gorm:"column:avg_dwell"`
	}

	query := `
		SELECT
			COUNT(id) AS total,
			MIN(created_at) AS oldest,
			MAX(created_at) AS newest,
			COALESCE(AVG(TIMESTAMPDIFF(SECOND, created_at, NOW())), 0) AS avg_dwell
		FROM
			dead_letter_entries`

	if err := r.db.WithContext(ctx).Raw(query).Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate dead letter stats: %w", err)
	}
	stats.Total = agg.Total
	stats.OldestEntry = agg.Oldest
	stats.NewestEntry = agg.Newest
	stats.AvgDwellSecond = agg.AvgDwell

	type categoryCount struct {
		Category string `gorm:"column:category"`
		Cnt      int64  `gorm:"column:cnt"`
	}
	var rows []categoryCount
	err := r.db.WithContext(ctx).Model(&entity.DeadLetterEntry{}).
		Select("category, COUNT(id) AS cnt").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group dead letters by category: %w", err)
	}

	excluded := make(map[string]bool, len(excludedCategories))
	for _, c := range excludedCategories {
		excluded[c] = true
	}
	for _, row := range rows {
		stats.ByCategory[row.Category] = row.Cnt
		if !excluded[row.Category] {
			stats.Reprocessable += row.Cnt
		}
	}
	return stats, nil
}

func (r *deadLetterDao) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&entity.DeadLetterEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge dead letter entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
