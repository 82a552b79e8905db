package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Job状态流转: pending -> in_flight -> completed | failed
const (
	JobStatusPending   = "pending"
	JobStatusInFlight  = "in_flight"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job 由信号派生的持久化任务
// AlertID上的唯一键是幂等保护的根基：同一告警id至多创建一条Job
type Job struct {
	ID      uint64 `gorm:"primaryKey"` // snowflake id，由调度器生成
	AlertID string `gorm:"column:alert_id;type:varchar(128);not null;uniqueIndex:uk_alert_id"`

	Queue   string `gorm:"type:varchar(30);not null;index:idx_queue_status"`
	JobType string `gorm:"column:job_type;type:varchar(30);not null"`

	AccountID uint64  `gorm:"column:account_id;not null"`
	UserID    *uint64 `gorm:"column:user_id"` // 公共webhook进来的任务没有归属用户

	Status      string `gorm:"type:varchar(15);not null;index:idx_queue_status"`
	Attempts    int    `gorm:"not null;default:0"`
	MaxAttempts int    `gorm:"column:max_attempts;not null"`

	// 信号payload快照，重试和死信回放都以此为准
	Payload   datatypes.JSON `gorm:"type:json"`
	LastError string         `gorm:"column:last_error;type:text"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// DeadLetterEntry 重试耗尽后的死信记录
type DeadLetterEntry struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	JobID   uint64 `gorm:"column:job_id;not null;index"`
	AlertID string `gorm:"column:alert_id;type:varchar(128);not null"`

	Queue   string `gorm:"type:varchar(30);not null"` // 来源队列
	JobType string `gorm:"column:job_type;type:varchar(30);not null"`

	Payload    datatypes.JSON `gorm:"type:json"`
	Category   string         `gorm:"type:varchar(30);not null;index"` // 分类后的错误类别
	FinalError string         `gorm:"column:final_error;type:text"`
	Priority   int            `gorm:"not null;default:0"` // 越大越需要运营关注

	Attempts      int            `gorm:"not null"`
	AttemptErrors datatypes.JSON `gorm:"column:attempt_errors;type:json"` // 每次尝试的错误串，按顺序

	FirstFailedAt time.Time `gorm:"column:first_failed_at"`
	LastFailedAt  time.Time `gorm:"column:last_failed_at"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
}

func (DeadLetterEntry) TableName() string {
	return "dead_letter_entries"
}
