package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signalflow/internal/consts"
	"signalflow/internal/dao"
	"signalflow/internal/model"
	"signalflow/pkg/logger"
)

// 对账任务生产者。周期性为每个活跃账户投递一条仓位核对任务到对账队列，
// alert_id按时间窗口生成，同一窗口内的重复投递被jobs.alert_id幂等键吸收

const reconcileListLimit = 500

type Reconciler struct {
	accounts dao.AccountDao
	enqueuer Enqueuer
	interval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewReconciler(accounts dao.AccountDao, enqueuer Enqueuer, interval time.Duration) *Reconciler {
	return &Reconciler{
		accounts: accounts,
		enqueuer: enqueuer,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	if r.started {
		return
	}
	if r.interval <= 0 {
		logger.Info("[Reconciler] disabled, no interval configured")
		return
	}
	r.started = true
	r.wg.Add(1)
	go r.loop()
	logger.Infof("[Reconciler] started, interval %s", r.interval)
}

func (r *Reconciler) Stop() {
	if !r.started {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
	r.started = false
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			r.runOnce(ctx)
			cancel()
		}
	}
}

// runOnce 为每个活跃账户投递一条对账任务，返回实际新入队的数量
func (r *Reconciler) runOnce(ctx context.Context) int {
	accounts, err := r.accounts.ListActiveAccounts(ctx, reconcileListLimit)
	if err != nil {
		logger.Errorf("[Reconciler] failed to list active accounts: %v", err)
		return 0
	}

	// 同一窗口内多实例/多次触发生成同一批alert_id，幂等键挡住重复
	window := time.Now().Truncate(r.windowSize()).Unix()

	enqueued := 0
	for _, acc := range accounts {
		payload := &model.JobPayload{
			Strategy:        "reconciliation",
			Exchange:        acc.Exchange,
			AlertID:         fmt.Sprintf("reconcile-%d-%d", acc.ID, window),
			AccountID:       acc.ID,
			SelectionReason: "Periodic reconciliation sweep",
		}
		result, err := r.enqueuer.Enqueue(ctx, consts.QueueReconciliation, consts.JobTypeReconcile, payload, nil)
		if err != nil {
			logger.Warnf("[Reconciler] failed to enqueue reconcile job for account %d: %v", acc.ID, err)
			continue
		}
		if !result.Duplicate {
			enqueued++
		}
	}

	logger.Info("[Reconciler] sweep finished",
		logger.Pair("accounts", len(accounts)),
		logger.Pair("enqueued", enqueued))
	return enqueued
}

// windowSize alert_id的去重窗口，跟随对账间隔，未配置时兜底1小时
func (r *Reconciler) windowSize() time.Duration {
	if r.interval > 0 {
		return r.interval
	}
	return time.Hour
}
