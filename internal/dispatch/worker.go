package dispatch

import (
	"context"
	"strconv"
	"time"

	"signalflow/internal/breaker"
	"signalflow/internal/fault"
	"signalflow/internal/model"
	"signalflow/internal/model/entity"
	"signalflow/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// worker侧：从ready队列取任务执行，失败按类别决定重试或死信

const (
	popTimeout     = time.Second // BRPOP阻塞上限，保证能及时响应Stop
	attemptErrTTL  = 72 * time.Hour
	defaultTimeout = 30 * time.Second
)

func (d *Dispatcher) workerLoop(workerID int) {
	defer d.wg.Done()

	// BRPOP按key顺序检查，执行队列排前面天然拿到更高优先级
	keys := make([]string, 0, len(d.queues))
	for _, q := range d.queues {
		keys = append(keys, readyKey(q.name))
	}

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		ctx := context.Background()
		res, err := d.rdb.BRPop(ctx, popTimeout, keys...).Result()
		if err != nil {
			if err != redis.Nil {
				logger.Warnf("[Dispatcher] worker %d pop failed: %v", workerID, err)
				// redis抖动时避免busy loop
				time.Sleep(time.Second)
			}
			continue
		}
		// res[0]是命中的key，res[1]是任务id
		jobID, err := strconv.ParseUint(res[1], 10, 64)
		if err != nil {
			logger.Errorf("[Dispatcher] worker %d got malformed job id %q", workerID, res[1])
			continue
		}

		d.executeJob(ctx, jobID)
	}
}

// executeJob 单次任务执行。熔断器在最外层包住handler，
// 熔断开启时立即失败，不消耗执行超时
func (d *Dispatcher) executeJob(ctx context.Context, jobID uint64) {
	job, err := d.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		logger.Errorf("[Dispatcher] failed to load job %d: %v", jobID, err)
		return
	}
	if job == nil {
		logger.Warnf("[Dispatcher] job %d vanished, skip", jobID)
		return
	}
	if job.Status == entity.JobStatusCompleted || job.Status == entity.JobStatusFailed {
		// 重复投递或者延迟队列和ready队列里各有一份，终态任务直接跳过
		return
	}

	var payload model.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// 快照损坏没有重试意义，直接进死信
		d.exhaust(ctx, job, fault.Wrap(err, fault.CategoryValidation, "job payload corrupted"))
		return
	}

	h, ok := d.handler(job.JobType)
	if !ok {
		d.exhaust(ctx, job, fault.New(fault.CategoryInvalidConfig, "no handler registered for job type "+job.JobType))
		return
	}

	attempt := job.Attempts + 1
	if err := d.jobs.MarkInFlight(ctx, job.ID, attempt); err != nil {
		logger.Errorf("[Dispatcher] failed to mark job %d in_flight: %v", job.ID, err)
		return
	}
	job.Attempts = attempt

	execTimeout := d.cfg.ExecTimeout
	if execTimeout <= 0 {
		execTimeout = defaultTimeout
	}

	breakerName := "exchange:" + payload.Exchange
	start := time.Now()
	execErr := d.breakers.Execute(ctx, breakerName, func(ctx context.Context) error {
		execCtx, cancel := context.WithTimeout(ctx, execTimeout)
		defer cancel()
		return h(execCtx, job, &payload)
	})

	if execErr == nil {
		if err := d.jobs.MarkCompleted(ctx, job.ID); err != nil {
			logger.Errorf("[Dispatcher] job %d done but status update failed: %v", job.ID, err)
		}
		d.store.clearAttemptErrors(ctx, job.ID)
		logger.Info("[Dispatcher] job completed",
			logger.Pair("job_id", job.ID),
			logger.Pair("alert_id", job.AlertID),
			logger.Pair("attempt", attempt),
			logger.Pair("elapsed", time.Since(start).String()))
		return
	}

	d.store.recordAttemptError(ctx, job.ID, attempt, execErr)
	d.handleFailure(ctx, job, execErr, attempt)
}

// handleFailure 本次尝试失败后的路由：重试 or 死信
func (d *Dispatcher) handleFailure(ctx context.Context, job *entity.Job, execErr error, attempt int) {
	cls := fault.Classify(execErr)

	logger.Warn("[Dispatcher] job attempt failed",
		logger.Pair("job_id", job.ID),
		logger.Pair("alert_id", job.AlertID),
		logger.Pair("attempt", attempt),
		logger.Pair("category", string(cls.Category)),
		logger.Pair("error", execErr.Error()))

	if attempt >= job.MaxAttempts {
		d.exhaust(ctx, job, execErr)
		return
	}

	if breaker.IsCircuitOpen(execErr) {
		// 熔断拒绝不值得按错误类别退避，等熔断超时窗口过了再试
		delay := d.breakers.Timeout()
		if delay <= 0 {
			delay = 30 * time.Second
		}
		d.retryLater(ctx, job, execErr, delay)
		return
	}

	// attempt是已完成的尝试次数，也就是第attempt次重试的序号
	delay := d.engine.NextDelay(cls.Category, attempt)
	if delay == nil {
		d.exhaust(ctx, job, execErr)
		return
	}
	d.retryLater(ctx, job, execErr, *delay)
}

func (d *Dispatcher) retryLater(ctx context.Context, job *entity.Job, execErr error, delay time.Duration) {
	// 队列级退避下限：对账队列容忍更长的间隔，不和执行队列抢重试节奏
	if policy, err := d.queuePolicy(job.Queue); err == nil && delay < policy.BaseBackoff {
		delay = policy.BaseBackoff
	}

	if err := d.jobs.MarkRetrying(ctx, job.ID, execErr.Error()); err != nil {
		logger.Errorf("[Dispatcher] failed to mark job %d retrying: %v", job.ID, err)
	}
	if err := d.store.scheduleDelayed(ctx, job.Queue, job.ID, delay); err != nil {
		logger.Errorf("[Dispatcher] failed to schedule retry for job %d: %v", job.ID, err)
		return
	}
	logger.Info("[Dispatcher] job retry scheduled",
		logger.Pair("job_id", job.ID),
		logger.Pair("delay", delay.String()))
}

// exhaust 重试预算耗尽或不可重试，移交死信路由并置终态
func (d *Dispatcher) exhaust(ctx context.Context, job *entity.Job, finalErr error) {
	cls := fault.Classify(finalErr)
	attemptErrors := d.store.attemptErrors(ctx, job.ID)

	if d.dlq == nil {
		logger.Errorf("[Dispatcher] no dead letter capture wired, job %d history will be lost", job.ID)
	} else if err := d.dlq.Capture(ctx, job, finalErr, cls.Category, attemptErrors); err != nil {
		logger.Errorf("[Dispatcher] failed to dead-letter job %d: %v", job.ID, err)
		// 死信写入失败也要置终态，避免任务悬在in_flight
	}
	if err := d.jobs.MarkFailed(ctx, job.ID, finalErr.Error()); err != nil {
		logger.Errorf("[Dispatcher] failed to mark job %d failed: %v", job.ID, err)
	}
	d.store.clearAttemptErrors(ctx, job.ID)

	logger.Error("[Dispatcher] job exhausted, routed to dead letter",
		logger.Pair("job_id", job.ID),
		logger.Pair("alert_id", job.AlertID),
		logger.Pair("attempts", job.Attempts),
		logger.Pair("category", string(cls.Category)))
}
