package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"signalflow/conf"
	"signalflow/internal/breaker"
	"signalflow/internal/consts"
	"signalflow/internal/dao"
	"signalflow/internal/fault"
	"signalflow/internal/model"
	"signalflow/internal/model/entity"
	"signalflow/pkg/logger"

	"github.com/bwmarrin/snowflake"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// 任务调度器。入队幂等（靠jobs.alert_id唯一键），重试走redis延迟队列，
// 不在worker里自旋等待；重试耗尽的任务交给死信路由
//
// 显式构造、显式Start/Stop，不做包级单例，测试可以每个用例起一个独立实例

// Handler 任务执行逻辑，按JobType注册
// 调度器在外层包好熔断和超时，handler只管干活
type Handler func(ctx context.Context, job *entity.Job, payload *model.JobPayload) error

// DeadLetterCapture 重试耗尽后的去处，由死信路由实现
type DeadLetterCapture interface {
	Capture(ctx context.Context, job *entity.Job, finalErr error, cat fault.Category, attemptErrors []string) error
}

// queueDef 逻辑队列定义
type queueDef struct {
	name   string
	policy conf.QueuePolicy
}

type Dispatcher struct {
	cfg   conf.DispatchConfig
	jobs  dao.JobDao
	rdb   *redis.Client
	store queueStore
	node  *snowflake.Node

	engine   *fault.RetryPolicyEngine
	breakers *breaker.Registry
	dlq      DeadLetterCapture

	// 按优先级降序排列的队列，worker按这个顺序BRPOP
	queues []queueDef

	mu       sync.RWMutex
	handlers map[string]Handler

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

func New(
	cfg conf.DispatchConfig,
	jobs dao.JobDao,
	rdb *redis.Client,
	engine *fault.RetryPolicyEngine,
	breakers *breaker.Registry,
	dlq DeadLetterCapture,
) (*Dispatcher, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node: %w", err)
	}

	queues := []queueDef{
		{name: consts.QueueExecution, policy: cfg.Execution},
		{name: consts.QueueReconciliation, policy: cfg.Reconciliation},
	}
	// 执行队列必须排在对账队列前面，优先级配置反了也纠正过来
	if cfg.Reconciliation.Priority > cfg.Execution.Priority {
		queues[0], queues[1] = queues[1], queues[0]
	}

	return &Dispatcher{
		cfg:      cfg,
		jobs:     jobs,
		rdb:      rdb,
		store:    &redisQueueStore{rdb: rdb},
		node:     node,
		engine:   engine,
		breakers: breakers,
		dlq:      dlq,
		queues:   queues,
		handlers: make(map[string]Handler),
		stopCh:   make(chan struct{}),
	}, nil
}

// SetDeadLetter 注入死信路由
// 路由回放时又依赖调度器，两边构造完成后再互相挂接，Start前必须调用
func (d *Dispatcher) SetDeadLetter(dlq DeadLetterCapture) {
	d.dlq = dlq
}

// RegisterHandler 注册任务类型的执行逻辑
func (d *Dispatcher) RegisterHandler(jobType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = h
}

func (d *Dispatcher) handler(jobType string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[jobType]
	return h, ok
}

// EnqueueResult 入队结果
type EnqueueResult struct {
	JobID     uint64
	Duplicate bool // 幂等命中，JobID是已存在任务的id
}

// Enqueue 入队。dedupeKey（告警id）幂等：重复入队不创建新任务，返回原任务id
func (d *Dispatcher) Enqueue(ctx context.Context, queueName, jobType string, payload *model.JobPayload, userID *uint64) (*EnqueueResult, error) {
	policy, err := d.queuePolicy(queueName)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fault.Wrap(err, fault.CategoryValidation, "failed to marshal job payload")
	}

	job := &entity.Job{
		ID:          uint64(d.node.Generate().Int64()),
		AlertID:     payload.AlertID,
		Queue:       queueName,
		JobType:     jobType,
		AccountID:   payload.AccountID,
		UserID:      userID,
		Status:      entity.JobStatusPending,
		MaxAttempts: policy.MaxAttempts,
		Payload:     raw,
	}

	if err := d.jobs.CreateJob(ctx, job); err != nil {
		if errors.Is(err, dao.ErrDuplicateAlertID) {
			// 并发重复投递或上游重发，返回已存在的任务
			existing, gerr := d.jobs.GetJobByAlertID(ctx, payload.AlertID)
			if gerr != nil || existing == nil {
				return nil, fault.Wrap(gerr, fault.CategoryDatabase, "duplicate alert but original job not readable")
			}
			logger.Info("[Dispatcher] duplicate enqueue short-circuited",
				logger.Pair("alert_id", payload.AlertID),
				logger.Pair("job_id", existing.ID))
			return &EnqueueResult{JobID: existing.ID, Duplicate: true}, nil
		}
		return nil, fault.Wrap(err, fault.CategoryDatabase, "failed to persist job")
	}

	if err := d.store.pushReady(ctx, queueName, job.ID); err != nil {
		// 任务已落库，推ready失败的任务停在pending，交给悬死扫描重新推入队列
		logger.Errorf("[Dispatcher] job %d persisted but ready push failed, sweep will recover it: %v", job.ID, err)
		return nil, fault.Wrap(err, fault.CategoryDatabase, "failed to push job to ready queue")
	}

	return &EnqueueResult{JobID: job.ID}, nil
}

// Requeue 死信回放入口：复位已失败的Job并重新推入ready队列
// 不新建Job行，保持alert_id唯一键语义
func (d *Dispatcher) Requeue(ctx context.Context, jobID uint64, targetQueue string) error {
	policy, err := d.queuePolicy(targetQueue)
	if err != nil {
		return err
	}
	if err := d.jobs.ResetForRetry(ctx, jobID, targetQueue, policy.MaxAttempts); err != nil {
		return fault.Wrap(err, fault.CategoryDatabase, "failed to reset job for replay")
	}
	if err := d.store.pushReady(ctx, targetQueue, jobID); err != nil {
		return fault.Wrap(err, fault.CategoryDatabase, "failed to push replayed job to ready queue")
	}
	logger.Info("[Dispatcher] job requeued from dead letter",
		logger.Pair("job_id", jobID),
		logger.Pair("queue", targetQueue))
	return nil
}

func (d *Dispatcher) queuePolicy(queueName string) (conf.QueuePolicy, error) {
	for _, q := range d.queues {
		if q.name == queueName {
			return q.policy, nil
		}
	}
	return conf.QueuePolicy{}, fault.New(fault.CategoryInvalidConfig, "unknown queue "+queueName)
}

// Start 启动worker池和延迟队列搬运
func (d *Dispatcher) Start() {
	if d.started {
		return
	}
	d.started = true

	workerCount := d.cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 4
	}
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}

	d.wg.Add(1)
	go d.schedulerLoop()

	d.wg.Add(1)
	go d.sweepLoop()

	logger.Infof("[Dispatcher] started with %d workers", workerCount)
}

// Stop 停止调度，等待在途任务退出
func (d *Dispatcher) Stop() {
	if !d.started {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
	d.started = false
	logger.Info("[Dispatcher] stopped")
}

// WaitingCount 队列等待数（ready + delayed）
func (d *Dispatcher) WaitingCount(ctx context.Context, queueName string) (int64, error) {
	ready, err := d.rdb.LLen(ctx, readyKey(queueName)).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := d.rdb.ZCard(ctx, delayedKey(queueName)).Result()
	if err != nil {
		return 0, err
	}
	return ready + delayed, nil
}

// ActiveCount 在途任务数
func (d *Dispatcher) ActiveCount(ctx context.Context, queueName string) (int64, error) {
	return d.jobs.CountByQueueStatus(ctx, queueName, entity.JobStatusInFlight)
}

func readyKey(queue string) string {
	return "dispatch:" + queue + ":ready"
}

func delayedKey(queue string) string {
	return "dispatch:" + queue + ":delayed"
}

func attemptErrKey(jobID uint64) string {
	return "dispatch:job:" + strconv.FormatUint(jobID, 10) + ":errors"
}

// schedulerLoop 周期性把到期的延迟任务搬进ready队列
func (d *Dispatcher) schedulerLoop() {
	defer d.wg.Done()

	interval := d.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			for _, q := range d.queues {
				d.promoteDue(ctx, q.name)
			}
			cancel()
		}
	}
}

func (d *Dispatcher) promoteDue(ctx context.Context, queueName string) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := d.rdb.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 128,
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	for _, id := range ids {
		// 先删后推：ZRem返回0说明别的实例已经搬走了，跳过即可
		removed, err := d.rdb.ZRem(ctx, delayedKey(queueName), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := d.rdb.LPush(ctx, readyKey(queueName), id).Err(); err != nil {
			logger.Errorf("[Dispatcher] failed to promote job %s: %v", id, err)
		}
	}
}

// sweepLoop 悬死任务兜底。落库成功但没推进ready队列的pending、
// worker中途崩溃遗留的in_flight，都会停在原状态再也没人碰，
// 这里周期性对照数据库把它们捞回ready队列。启动时先扫一轮，
// 把上次进程异常退出的遗留任务恢复掉
func (d *Dispatcher) sweepLoop() {
	defer d.wg.Done()

	interval := d.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		d.recoverStale(ctx)
		cancel()
	}
	sweep()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// recoverStale 把超时无进展的pending/in_flight任务重新推入ready队列，返回恢复数量
// 时效必须大于最长的重试延迟，否则会和延迟队列里正常排队的任务抢跑；
// 恢复in_flight意味着接受至少一次执行语义，重复执行会多消耗一次尝试预算
func (d *Dispatcher) recoverStale(ctx context.Context) int {
	staleAfter := d.cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	cutoff := time.Now().Add(-staleAfter)

	recovered := 0
	for _, q := range d.queues {
		jobs, err := d.jobs.ListStaleJobs(ctx, q.name, cutoff, 100)
		if err != nil {
			logger.Errorf("[Dispatcher] stale sweep on queue %s failed: %v", q.name, err)
			continue
		}
		for _, job := range jobs {
			// 还躺在延迟队列里等重试的任务不算悬死
			if delayed, err := d.store.delayedContains(ctx, q.name, job.ID); err != nil || delayed {
				continue
			}
			if err := d.store.pushReady(ctx, q.name, job.ID); err != nil {
				logger.Errorf("[Dispatcher] failed to recover stale job %d: %v", job.ID, err)
				continue
			}
			logger.Warn("[Dispatcher] stale job recovered",
				logger.Pair("job_id", job.ID),
				logger.Pair("alert_id", job.AlertID),
				logger.Pair("queue", q.name),
				logger.Pair("status", job.Status))
			recovered++
		}
	}
	return recovered
}
