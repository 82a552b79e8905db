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

type jobDao struct {
	db *gorm.DB
}

func NewJobDao(db *gorm.DB) dao.JobDao {
	return &jobDao{db: db}
}

// CreateJob 创建任务
// alert_id上的唯一索引兜底并发重复投递：冲突时返回dao.ErrDuplicateAlertID
// 依赖gorm的TranslateError把MySQL 1062翻译成ErrDuplicatedKey
func (r *jobDao) CreateJob(ctx context.Context, job *entity.Job) error {
	result := r.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return dao.ErrDuplicateAlertID
		}
		return fmt.Errorf("failed to create job: %w", result.Error)
	}
	return nil
}

func (r *jobDao) GetJobByID(ctx context.Context, id uint64) (*entity.Job, error) {
	var job entity.Job
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&job)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get job by id: %w", result.Error)
	}
	return &job, nil
}

func (r *jobDao) GetJobByAlertID(ctx context.Context, alertID string) (*entity.Job, error) {
	var job entity.Job
	result := r.db.WithContext(ctx).Where("alert_id = ?", alertID).First(&job)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get job by alert_id: %w", result.Error)
	}
	return &job, nil
}

func (r *jobDao) MarkInFlight(ctx context.Context, id uint64, attempt int) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":     entity.JobStatusInFlight,
		"attempts":   attempt,
		"updated_at": time.Now(),
	})
}

func (r *jobDao) MarkCompleted(ctx context.Context, id uint64) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":     entity.JobStatusCompleted,
		"updated_at": time.Now(),
	})
}

func (r *jobDao) MarkRetrying(ctx context.Context, id uint64, lastError string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":     entity.JobStatusPending,
		"last_error": lastError,
		"updated_at": time.Now(),
	})
}

func (r *jobDao) MarkFailed(ctx context.Context, id uint64, lastError string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":     entity.JobStatusFailed,
		"last_error": lastError,
		"updated_at": time.Now(),
	})
}

func (r *jobDao) ResetForRetry(ctx context.Context, id uint64, queue string, maxAttempts int) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":       entity.JobStatusPending,
		"queue":        queue,
		"attempts":     0,
		"max_attempts": maxAttempts,
		"last_error":   "",
		"updated_at":   time.Now(),
	})
}

func (r *jobDao) updateStatus(ctx context.Context, id uint64, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&entity.Job{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update job %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %d not found", id)
	}
	return nil
}

func (r *jobDao) ListStaleJobs(ctx context.Context, queue string, olderThan time.Time, limit int) ([]*entity.Job, error) {
	var jobs []*entity.Job
	err := r.db.WithContext(ctx).
		Where("queue = ? AND status IN ? AND updated_at < ?",
			queue, []string{entity.JobStatusPending, entity.JobStatusInFlight}, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	return jobs, nil
}

func (r *jobDao) CountByQueueStatus(ctx context.Context, queue, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Job{}).
		Where("queue = ? AND status = ?", queue, status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}
