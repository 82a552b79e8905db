package deadletter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signalflow/conf"
	"signalflow/internal/dao"
	"signalflow/internal/fault"
	"signalflow/internal/model/entity"
	"signalflow/internal/notify"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"
	"signalflow/pkg/logger"

	json "github.com/goccy/go-json"
)

// 死信路由。重试耗尽的任务落到这里，带上完整的尝试历史和分类，
// 供运营排查、统计和人工回放

// 不可回放的类别：重放也必然再失败，只能改配置/凭证后人工处理
var nonReplayable = map[string]bool{
	string(fault.CategoryAuthentication): true,
	string(fault.CategoryInvalidConfig):  true,
	string(fault.CategoryValidation):     true,
}

// NonReplayableCategories 统计口径用的类别列表
func NonReplayableCategories() []string {
	out := make([]string, 0, len(nonReplayable))
	for cat := range nonReplayable {
		out = append(out, cat)
	}
	return out
}

// Requeuer 回放时把原Job复位重投，由调度器实现
type Requeuer interface {
	Requeue(ctx context.Context, jobID uint64, targetQueue string) error
}

type Router struct {
	cfg      conf.DeadLetterConfig
	entries  dao.DeadLetterDao
	requeuer Requeuer
	sink     *notify.Sink

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRouter(cfg conf.DeadLetterConfig, entries dao.DeadLetterDao, requeuer Requeuer, sink *notify.Sink) *Router {
	return &Router{
		cfg:      cfg,
		entries:  entries,
		requeuer: requeuer,
		sink:     sink,
		stopCh:   make(chan struct{}),
	}
}

// Capture 接收一条重试耗尽的任务，写入死信表并按需告警
// 实现dispatch.DeadLetterCapture
func (r *Router) Capture(ctx context.Context, job *entity.Job, finalErr error, cat fault.Category, attemptErrors []string) error {
	history, err := json.Marshal(attemptErrors)
	if err != nil {
		history = []byte("[]")
	}

	now := time.Now()
	entry := &entity.DeadLetterEntry{
		JobID:         job.ID,
		AlertID:       job.AlertID,
		Queue:         job.Queue,
		JobType:       job.JobType,
		Payload:       job.Payload,
		Category:      string(cat),
		FinalError:    finalErr.Error(),
		Priority:      fault.DeadLetterPriority(cat),
		Attempts:      job.Attempts,
		AttemptErrors: history,
		FirstFailedAt: job.CreatedAt,
		LastFailedAt:  now,
	}

	if err := r.entries.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist dead letter entry: %w", err)
	}

	logger.Error("[DeadLetter] entry captured",
		logger.Pair("entry_id", entry.ID),
		logger.Pair("job_id", job.ID),
		logger.Pair("alert_id", job.AlertID),
		logger.Pair("category", string(cat)),
		logger.Pair("priority", entry.Priority))

	r.sink.SendAlert(ctx, notify.LevelWarning, string(cat),
		"Job routed to dead letter",
		fmt.Sprintf("job %d (alert %s) exhausted after %d attempts: %s", job.ID, job.AlertID, job.Attempts, finalErr.Error()),
		map[string]interface{}{
			"job_id":   job.ID,
			"queue":    job.Queue,
			"priority": entry.Priority,
		})

	r.checkBacklog(ctx)
	return nil
}

// checkBacklog 积压超过阈值时升级成critical告警
func (r *Router) checkBacklog(ctx context.Context) {
	if r.cfg.AlertThreshold <= 0 {
		return
	}
	count, err := r.entries.Count(ctx)
	if err != nil {
		logger.Warnf("[DeadLetter] backlog count failed: %v", err)
		return
	}
	if count >= int64(r.cfg.AlertThreshold) {
		r.sink.SendAlert(ctx, notify.LevelCritical, "dead_letter_backlog",
			"Dead letter backlog over threshold",
			fmt.Sprintf("%d entries pending (threshold %d)", count, r.cfg.AlertThreshold),
			map[string]interface{}{"count": count})
	}
}

// Reprocess 人工回放一条死信。targetQueue为空时回原队列
// 回放成功后删除死信条目，原Job复位重投
func (r *Router) Reprocess(ctx context.Context, entryID uint64, targetQueue string) (uint64, error) {
	entry, err := r.entries.GetByID(ctx, entryID)
	if err != nil {
		return 0, errors.Wrap(err, ecode.InternalErr, "")
	}
	if entry == nil {
		return 0, errors.New(ecode.DeadLetterNotFound, "")
	}
	if nonReplayable[entry.Category] {
		return 0, errors.New(ecode.DeadLetterNotReplayable,
			fmt.Sprintf("category %s requires manual intervention", entry.Category))
	}

	if targetQueue == "" {
		targetQueue = entry.Queue
	}

	if err := r.requeuer.Requeue(ctx, entry.JobID, targetQueue); err != nil {
		return 0, errors.Wrap(err, ecode.EnqueueErr, "")
	}
	if err := r.entries.Delete(ctx, entryID); err != nil {
		// 回放已经生效，条目删除失败只记日志，靠保留期清理兜底
		logger.Errorf("[DeadLetter] replayed entry %d but delete failed: %v", entryID, err)
	}

	logger.Info("[DeadLetter] entry reprocessed",
		logger.Pair("entry_id", entryID),
		logger.Pair("job_id", entry.JobID),
		logger.Pair("target_queue", targetQueue))
	return entry.JobID, nil
}

// List 分页列出死信
func (r *Router) List(ctx context.Context, limit, offset int) ([]entity.DeadLetterEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return r.entries.List(ctx, limit, offset)
}

// Stats 聚合统计
func (r *Router) Stats(ctx context.Context) (*dao.DeadLetterStats, error) {
	return r.entries.Stats(ctx, NonReplayableCategories())
}

// Purge 立即清理超过保留期的条目，返回删除行数
func (r *Router) Purge(ctx context.Context) (int64, error) {
	if r.cfg.Retention <= 0 {
		return 0, nil
	}
	return r.entries.PurgeBefore(ctx, time.Now().Add(-r.cfg.Retention))
}

// Start 启动保留期清理的后台任务
func (r *Router) Start() {
	interval := r.cfg.PurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				removed, err := r.Purge(ctx)
				cancel()
				if err != nil {
					logger.Warnf("[DeadLetter] retention purge failed: %v", err)
				} else if removed > 0 {
					logger.Infof("[DeadLetter] retention purge removed %d entries", removed)
				}
			}
		}
	}()
}

func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}
