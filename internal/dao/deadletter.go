package dao

import (
	"context"
	"time"

	"signalflow/internal/model/entity"
)

// DeadLetterStats 死信聚合统计
type DeadLetterStats struct {
	Total          int64            `json:"total"`
	ByCategory     map[string]int64 `json:"by_category"`
	Reprocessable  int64            `json:"reprocessable"`
	OldestEntry    *time.Time       `json:"oldest_entry,omitempty"`
	NewestEntry    *time.Time       `json:"newest_entry,omitempty"`
	AvgDwellSecond float64          `json:"avg_dwell_seconds"`
}

// DeadLetterDao 死信表读写
type DeadLetterDao interface {
	Create(ctx context.Context, entry *entity.DeadLetterEntry) error

	// GetByID 未命中返回(nil, nil)
	GetByID(ctx context.Context, id uint64) (*entity.DeadLetterEntry, error)

	Delete(ctx context.Context, id uint64) error

	// List 按创建时间倒序分页
	List(ctx context.Context, limit, offset int) ([]entity.DeadLetterEntry, error)

	Count(ctx context.Context) (int64, error)

	// Stats 聚合统计，excludedCategories是不可回放的类别集合
	Stats(ctx context.Context, excludedCategories []string) (*DeadLetterStats, error)

	// PurgeBefore 清理早于指定时间的条目，返回删除行数
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}
