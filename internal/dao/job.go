package dao

import (
	"context"
	"errors"
	"time"

	"signalflow/internal/model/entity"
)

// ErrDuplicateAlertID 唯一键冲突：该alert_id已经有Job了
// 调用方据此区分"重复投递"和其他存储故障
var ErrDuplicateAlertID = errors.New("job with this alert_id already exists")

// JobDao 任务表读写
// 前置条件：jobs.alert_id 存在唯一索引，CreateJob的幂等性依赖它，而不是进程内锁
type JobDao interface {

	// CreateJob 创建任务。alert_id已存在时返回ErrDuplicateAlertID
	CreateJob(ctx context.Context, job *entity.Job) error

	// GetJobByID 按id查找，未命中返回(nil, nil)
	GetJobByID(ctx context.Context, id uint64) (*entity.Job, error)

	// GetJobByAlertID 按告警id查找，未命中返回(nil, nil)
	GetJobByAlertID(ctx context.Context, alertID string) (*entity.Job, error)

	// MarkInFlight 任务开始执行，attempts同步累加
	MarkInFlight(ctx context.Context, id uint64, attempt int) error

	// MarkCompleted 任务执行成功
	MarkCompleted(ctx context.Context, id uint64) error

	// MarkRetrying 本次尝试失败但还会重试，回到pending并记录错误
	MarkRetrying(ctx context.Context, id uint64, lastError string) error

	// MarkFailed 任务终态失败（已迁入死信）
	MarkFailed(ctx context.Context, id uint64, lastError string) error

	// ResetForRetry 死信回放：任务复位到pending并清零尝试计数
	// alert_id唯一键不变，回放复用原Job行而不是新建
	ResetForRetry(ctx context.Context, id uint64, queue string, maxAttempts int) error

	// ListStaleJobs 兜底扫描：该队列里更新时间早于olderThan、
	// 且仍停在pending/in_flight的任务。按updated_at升序，最老的先恢复
	ListStaleJobs(ctx context.Context, queue string, olderThan time.Time, limit int) ([]*entity.Job, error)

	// CountByQueueStatus 队列观测
	CountByQueueStatus(ctx context.Context, queue, status string) (int64, error)
}
