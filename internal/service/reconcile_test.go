package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"signalflow/internal/consts"
	"signalflow/internal/dispatch"
	"signalflow/internal/model"
	"signalflow/internal/model/entity"
)

// recordingEnqueuer 按alert_id模拟幂等键：重复入队返回Duplicate
type recordingEnqueuer struct {
	queues   []string
	jobTypes []string
	payloads []*model.JobPayload
	seen     map[string]uint64
}

func newRecordingEnqueuer() *recordingEnqueuer {
	return &recordingEnqueuer{seen: make(map[string]uint64)}
}

func (f *recordingEnqueuer) Enqueue(_ context.Context, queueName, jobType string, payload *model.JobPayload, _ *uint64) (*dispatch.EnqueueResult, error) {
	if id, ok := f.seen[payload.AlertID]; ok {
		return &dispatch.EnqueueResult{JobID: id, Duplicate: true}, nil
	}
	id := uint64(len(f.seen) + 1)
	f.seen[payload.AlertID] = id
	f.queues = append(f.queues, queueName)
	f.jobTypes = append(f.jobTypes, jobType)
	f.payloads = append(f.payloads, payload)
	return &dispatch.EnqueueResult{JobID: id}, nil
}

func TestReconcilerSweepEnqueuesPerActiveAccount(t *testing.T) {
	accounts := &fakeAccounts{active: []*entity.ExchangeAccount{
		{ID: 12, UserID: 7, Exchange: "binance", Name: "Main", Active: true},
		{ID: 20, UserID: 3, Exchange: "bybit", Name: "Hedge", Active: true},
	}}
	enq := newRecordingEnqueuer()
	r := NewReconciler(accounts, enq, time.Hour)

	if n := r.runOnce(context.Background()); n != 2 {
		t.Fatalf("expected 2 reconcile jobs, got %d", n)
	}
	for i, queue := range enq.queues {
		if queue != consts.QueueReconciliation {
			t.Fatalf("job %d must land on the reconciliation queue, got %s", i, queue)
		}
		if enq.jobTypes[i] != consts.JobTypeReconcile {
			t.Fatalf("job %d has wrong type %s", i, enq.jobTypes[i])
		}
	}

	window := time.Now().Truncate(time.Hour).Unix()
	if got := enq.payloads[0].AlertID; got != fmt.Sprintf("reconcile-12-%d", window) {
		t.Fatalf("unexpected alert id %q", got)
	}
	if enq.payloads[0].Exchange != "binance" || enq.payloads[1].Exchange != "bybit" {
		t.Fatalf("payload must carry the account exchange: %+v %+v", enq.payloads[0], enq.payloads[1])
	}
	if enq.payloads[0].AccountID != 12 || enq.payloads[1].AccountID != 20 {
		t.Fatalf("payload must carry the account id")
	}
}

// 同一窗口内重复触发被幂等键吸收，不会翻倍投递
func TestReconcilerSweepIdempotentWithinWindow(t *testing.T) {
	accounts := &fakeAccounts{active: []*entity.ExchangeAccount{
		{ID: 12, UserID: 7, Exchange: "binance", Name: "Main", Active: true},
	}}
	enq := newRecordingEnqueuer()
	r := NewReconciler(accounts, enq, time.Hour)

	if n := r.runOnce(context.Background()); n != 1 {
		t.Fatalf("first sweep: expected 1, got %d", n)
	}
	if n := r.runOnce(context.Background()); n != 0 {
		t.Fatalf("second sweep in the same window must enqueue nothing, got %d", n)
	}
	if len(enq.payloads) != 1 {
		t.Fatalf("expected a single enqueued payload, got %d", len(enq.payloads))
	}
}

func TestReconcilerDisabledWithoutInterval(t *testing.T) {
	r := NewReconciler(&fakeAccounts{}, newRecordingEnqueuer(), 0)
	r.Start()
	r.Stop() // 未启动时Stop必须安全
}
