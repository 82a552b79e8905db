package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"signalflow/conf"
	"signalflow/internal/breaker"
	"signalflow/internal/consts"
	"signalflow/internal/dao"
	"signalflow/internal/fault"
	"signalflow/internal/model"
	"signalflow/internal/model/entity"

	json "github.com/goccy/go-json"
)

// fakeJobDao 内存任务表，状态流转走真实的Mark*语义
type fakeJobDao struct {
	mu      sync.Mutex
	jobs    map[uint64]*entity.Job
	byAlert map[string]*entity.Job
}

func newFakeJobDao() *fakeJobDao {
	return &fakeJobDao{
		jobs:    make(map[uint64]*entity.Job),
		byAlert: make(map[string]*entity.Job),
	}
}

func (f *fakeJobDao) CreateJob(_ context.Context, job *entity.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byAlert[job.AlertID]; ok {
		return dao.ErrDuplicateAlertID
	}
	job.UpdatedAt = time.Now()
	f.jobs[job.ID] = job
	f.byAlert[job.AlertID] = job
	return nil
}

func (f *fakeJobDao) GetJobByID(_ context.Context, id uint64) (*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id], nil
}

func (f *fakeJobDao) GetJobByAlertID(_ context.Context, alertID string) (*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byAlert[alertID], nil
}

func (f *fakeJobDao) MarkInFlight(_ context.Context, id uint64, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = entity.JobStatusInFlight
	f.jobs[id].Attempts = attempt
	f.jobs[id].UpdatedAt = time.Now()
	return nil
}

func (f *fakeJobDao) MarkCompleted(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = entity.JobStatusCompleted
	return nil
}

func (f *fakeJobDao) MarkRetrying(_ context.Context, id uint64, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = entity.JobStatusPending
	f.jobs[id].LastError = lastError
	return nil
}

func (f *fakeJobDao) MarkFailed(_ context.Context, id uint64, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = entity.JobStatusFailed
	f.jobs[id].LastError = lastError
	return nil
}

func (f *fakeJobDao) ResetForRetry(_ context.Context, id uint64, queue string, maxAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.Status = entity.JobStatusPending
	job.Queue = queue
	job.Attempts = 0
	job.MaxAttempts = maxAttempts
	job.LastError = ""
	return nil
}

func (f *fakeJobDao) ListStaleJobs(_ context.Context, queue string, olderThan time.Time, limit int) ([]*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Job
	for _, job := range f.jobs {
		if len(out) >= limit {
			break
		}
		if job.Queue != queue || job.UpdatedAt.After(olderThan) {
			continue
		}
		if job.Status == entity.JobStatusPending || job.Status == entity.JobStatusInFlight {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeJobDao) CountByQueueStatus(_ context.Context, queue, status string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, job := range f.jobs {
		if job.Queue == queue && job.Status == status {
			n++
		}
	}
	return n, nil
}

type scheduled struct {
	queue string
	jobID uint64
	delay time.Duration
}

type pushed struct {
	queue string
	jobID uint64
}

// fakeQueueStore 内存队列，记录每次调度动作供断言
type fakeQueueStore struct {
	mu        sync.Mutex
	ready     []pushed
	scheduled []scheduled
	delayed   map[uint64]bool
	errs      map[uint64][]string
	pushErr   error
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{
		delayed: make(map[uint64]bool),
		errs:    make(map[uint64][]string),
	}
}

func (s *fakeQueueStore) pushReady(_ context.Context, queue string, jobID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	s.ready = append(s.ready, pushed{queue: queue, jobID: jobID})
	return nil
}

func (s *fakeQueueStore) scheduleDelayed(_ context.Context, queue string, jobID uint64, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scheduled{queue: queue, jobID: jobID, delay: delay})
	s.delayed[jobID] = true
	return nil
}

func (s *fakeQueueStore) delayedContains(_ context.Context, _ string, jobID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayed[jobID], nil
}

func (s *fakeQueueStore) recordAttemptError(_ context.Context, jobID uint64, attempt int, execErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[jobID] = append(s.errs[jobID], "attempt "+strconv.Itoa(attempt)+": "+execErr.Error())
}

func (s *fakeQueueStore) attemptErrors(_ context.Context, jobID uint64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[jobID]
}

func (s *fakeQueueStore) clearAttemptErrors(_ context.Context, jobID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs, jobID)
}

// fakeCapture 记录死信移交
type fakeCapture struct {
	jobs       []*entity.Job
	categories []fault.Category
	histories  [][]string
}

func (c *fakeCapture) Capture(_ context.Context, job *entity.Job, _ error, cat fault.Category, attemptErrors []string) error {
	c.jobs = append(c.jobs, job)
	c.categories = append(c.categories, cat)
	c.histories = append(c.histories, attemptErrors)
	return nil
}

type failureHarness struct {
	d       *Dispatcher
	jobs    *fakeJobDao
	store   *fakeQueueStore
	capture *fakeCapture
}

func newFailureHarness(t *testing.T, cfg conf.DispatchConfig, brCfg breaker.Config) *failureHarness {
	t.Helper()
	jobs := newFakeJobDao()
	store := newFakeQueueStore()
	capture := &fakeCapture{}

	d, err := New(cfg, jobs, nil, fault.NewRetryPolicyEngine(), breaker.NewRegistry(brCfg), capture)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.store = store
	return &failureHarness{d: d, jobs: jobs, store: store, capture: capture}
}

func seedJob(t *testing.T, h *failureHarness, id uint64, queue string, attempts, maxAttempts int) *entity.Job {
	t.Helper()
	raw, err := json.Marshal(&model.JobPayload{
		Strategy: "scalping", Ticker: "BTC/USDT", Side: "buy",
		Exchange: "binance", AlertID: "tv-" + strconv.FormatUint(id, 10), AccountID: 12,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	job := &entity.Job{
		ID:          id,
		AlertID:     "tv-" + strconv.FormatUint(id, 10),
		Queue:       queue,
		JobType:     consts.JobTypePlaceOrder,
		Status:      entity.JobStatusPending,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		Payload:     raw,
	}
	if err := h.jobs.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

// 可重试失败按类别退避进延迟队列
func TestExecuteJobRetryableSchedulesCategoryDelay(t *testing.T) {
	h := newFailureHarness(t, testDispatchConfig(), breaker.Config{})
	seedJob(t, h, 1, consts.QueueExecution, 0, 5)

	h.d.RegisterHandler(consts.JobTypePlaceOrder, func(_ context.Context, _ *entity.Job, _ *model.JobPayload) error {
		return errors.New("dial tcp: connection refused")
	})
	h.d.executeJob(context.Background(), 1)

	if len(h.store.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled retry, got %d", len(h.store.scheduled))
	}
	s := h.store.scheduled[0]
	if s.queue != consts.QueueExecution || s.delay != 2*time.Second {
		t.Fatalf("expected 2s network backoff on execution queue, got %+v", s)
	}
	if len(h.capture.jobs) != 0 {
		t.Fatalf("retryable failure must not reach dead letter")
	}
	job, _ := h.jobs.GetJobByID(context.Background(), 1)
	if job.Status != entity.JobStatusPending || job.Attempts != 1 {
		t.Fatalf("job must be back to pending with one attempt, got %s/%d", job.Status, job.Attempts)
	}
	if got := h.store.errs[1]; len(got) != 1 || got[0] != "attempt 1: dial tcp: connection refused" {
		t.Fatalf("attempt error history wrong: %v", got)
	}
}

// 队列的base-backoff是重试延迟下限，对账队列不会按2s的网络退避抢跑
func TestExecuteJobQueueBackoffFloor(t *testing.T) {
	cfg := testDispatchConfig()
	cfg.Reconciliation.BaseBackoff = 30 * time.Second
	h := newFailureHarness(t, cfg, breaker.Config{})
	seedJob(t, h, 2, consts.QueueReconciliation, 0, 6)

	h.d.RegisterHandler(consts.JobTypePlaceOrder, func(_ context.Context, _ *entity.Job, _ *model.JobPayload) error {
		return errors.New("dial tcp: connection refused")
	})
	h.d.executeJob(context.Background(), 2)

	if len(h.store.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled retry, got %d", len(h.store.scheduled))
	}
	if got := h.store.scheduled[0].delay; got != 30*time.Second {
		t.Fatalf("reconciliation retry must be floored to 30s, got %s", got)
	}
}

// 不可重试类别直接移交死信，任务置终态
func TestExecuteJobNonRetryableDeadLetters(t *testing.T) {
	h := newFailureHarness(t, testDispatchConfig(), breaker.Config{})
	seedJob(t, h, 3, consts.QueueExecution, 0, 5)

	h.d.RegisterHandler(consts.JobTypePlaceOrder, func(_ context.Context, _ *entity.Job, _ *model.JobPayload) error {
		return fault.New(fault.CategoryAuthentication, "invalid api key")
	})
	h.d.executeJob(context.Background(), 3)

	if len(h.store.scheduled) != 0 {
		t.Fatalf("non-retryable failure must not be rescheduled")
	}
	if len(h.capture.jobs) != 1 || h.capture.categories[0] != fault.CategoryAuthentication {
		t.Fatalf("expected one AUTHENTICATION_ERROR capture, got %v", h.capture.categories)
	}
	job, _ := h.jobs.GetJobByID(context.Background(), 3)
	if job.Status != entity.JobStatusFailed {
		t.Fatalf("exhausted job must be failed, got %s", job.Status)
	}
}

// 尝试预算耗尽后移交死信，带完整的尝试历史
func TestExecuteJobExhaustsAfterMaxAttempts(t *testing.T) {
	h := newFailureHarness(t, testDispatchConfig(), breaker.Config{})
	seedJob(t, h, 4, consts.QueueExecution, 4, 5)
	h.store.errs[4] = []string{
		"attempt 1: dial tcp: connection refused",
		"attempt 2: dial tcp: connection refused",
		"attempt 3: dial tcp: connection refused",
		"attempt 4: dial tcp: connection refused",
	}

	h.d.RegisterHandler(consts.JobTypePlaceOrder, func(_ context.Context, _ *entity.Job, _ *model.JobPayload) error {
		return errors.New("dial tcp: connection refused")
	})
	h.d.executeJob(context.Background(), 4)

	if len(h.store.scheduled) != 0 {
		t.Fatalf("exhausted job must not be rescheduled")
	}
	if len(h.capture.jobs) != 1 || h.capture.categories[0] != fault.CategoryNetwork {
		t.Fatalf("expected NETWORK_ERROR capture, got %v", h.capture.categories)
	}
	if got := h.capture.histories[0]; len(got) != 5 {
		t.Fatalf("capture must carry all 5 attempt errors, got %d", len(got))
	}
	job, _ := h.jobs.GetJobByID(context.Background(), 4)
	if job.Status != entity.JobStatusFailed || job.Attempts != 5 {
		t.Fatalf("job must be failed after attempt 5, got %s/%d", job.Status, job.Attempts)
	}
	if _, ok := h.store.errs[4]; ok {
		t.Fatalf("attempt error history must be cleared after exhaust")
	}
}

// 熔断拒绝按熔断超时窗口重排，不消耗类别退避
func TestExecuteJobCircuitOpenUsesBreakerTimeout(t *testing.T) {
	h := newFailureHarness(t, testDispatchConfig(), breaker.Config{
		FailureThreshold: 1,
		Timeout:          45 * time.Second,
	})
	seedJob(t, h, 5, consts.QueueExecution, 0, 5)

	// 先把binance的熔断器打开
	_ = h.d.breakers.Execute(context.Background(), "exchange:binance", func(_ context.Context) error {
		return errors.New("dial tcp: connection refused")
	})

	handlerRan := false
	h.d.RegisterHandler(consts.JobTypePlaceOrder, func(_ context.Context, _ *entity.Job, _ *model.JobPayload) error {
		handlerRan = true
		return nil
	})
	h.d.executeJob(context.Background(), 5)

	if handlerRan {
		t.Fatalf("open circuit must reject without running the handler")
	}
	if len(h.store.scheduled) != 1 {
		t.Fatalf("rejected job must be rescheduled, got %d", len(h.store.scheduled))
	}
	if got := h.store.scheduled[0].delay; got != 45*time.Second {
		t.Fatalf("circuit-open retry must wait the breaker timeout, got %s", got)
	}
	if len(h.capture.jobs) != 0 {
		t.Fatalf("circuit rejection must not dead-letter the job")
	}
}

// 入队撞上alert_id唯一键时返回原任务，不再推ready队列
func TestEnqueueDuplicateShortCircuit(t *testing.T) {
	h := newFailureHarness(t, testDispatchConfig(), breaker.Config{})
	existing := seedJob(t, h, 99, consts.QueueExecution, 0, 5)

	result, err := h.d.Enqueue(context.Background(), consts.QueueExecution, consts.JobTypePlaceOrder,
		&model.JobPayload{AlertID: existing.AlertID, Exchange: "binance", AccountID: 12}, nil)
	if err != nil {
		t.Fatalf("duplicate enqueue must not error: %v", err)
	}
	if !result.Duplicate || result.JobID != 99 {
		t.Fatalf("expected original job 99, got %+v", result)
	}
	if len(h.store.ready) != 0 {
		t.Fatalf("duplicate must not be pushed to the ready queue")
	}
}

// 落库成功但ready推送失败的任务停在pending，兜底扫描把它捞回队列
func TestRecoverStalePicksUpWedgedPending(t *testing.T) {
	h := newFailureHarness(t, testDispatchConfig(), breaker.Config{})

	h.store.pushErr = errors.New("redis down")
	_, err := h.d.Enqueue(context.Background(), consts.QueueExecution, consts.JobTypePlaceOrder,
		&model.JobPayload{AlertID: "tv-wedged", Exchange: "binance", AccountID: 12}, nil)
	if err == nil {
		t.Fatalf("push failure must surface to the caller")
	}
	job, _ := h.jobs.GetJobByAlertID(context.Background(), "tv-wedged")
	if job == nil || job.Status != entity.JobStatusPending {
		t.Fatalf("job row must survive the push failure in pending state")
	}

	// redis恢复后扫描接管
	h.store.pushErr = nil
	job.UpdatedAt = time.Now().Add(-time.Hour)
	if n := h.d.recoverStale(context.Background()); n != 1 {
		t.Fatalf("expected 1 recovered job, got %d", n)
	}
	if len(h.store.ready) != 1 || h.store.ready[0].jobID != job.ID {
		t.Fatalf("recovered job must be back on the ready queue, got %+v", h.store.ready)
	}
}

// worker崩溃遗留的in_flight同样被捞回；还在延迟队列里排队的任务不算悬死
func TestRecoverStaleInFlightAndSkipsDelayed(t *testing.T) {
	h := newFailureHarness(t, testDispatchConfig(), breaker.Config{})

	crashed := seedJob(t, h, 7, consts.QueueExecution, 1, 5)
	crashed.Status = entity.JobStatusInFlight
	crashed.UpdatedAt = time.Now().Add(-time.Hour)

	waiting := seedJob(t, h, 8, consts.QueueExecution, 1, 5)
	waiting.UpdatedAt = time.Now().Add(-time.Hour)
	h.store.delayed[8] = true

	// 新鲜的pending不在回收范围
	seedJob(t, h, 9, consts.QueueExecution, 0, 5)

	if n := h.d.recoverStale(context.Background()); n != 1 {
		t.Fatalf("expected only the crashed in_flight job recovered, got %d", n)
	}
	if len(h.store.ready) != 1 || h.store.ready[0].jobID != 7 {
		t.Fatalf("wrong job recovered: %+v", h.store.ready)
	}
}
