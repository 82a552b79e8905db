package dispatch

import (
	"context"
	"errors"
	"testing"

	"signalflow/conf"
	"signalflow/internal/breaker"
	"signalflow/internal/consts"
	"signalflow/internal/exchange"
	"signalflow/internal/fault"
	"signalflow/internal/model"
	"signalflow/internal/model/entity"
)

func testDispatchConfig() conf.DispatchConfig {
	return conf.DispatchConfig{
		WorkerCount: 2,
		Execution:   conf.QueuePolicy{MaxAttempts: 5, Priority: 10},
		Reconciliation: conf.QueuePolicy{
			MaxAttempts: 6, Priority: 1,
		},
	}
}

func TestNewOrdersQueuesByPriority(t *testing.T) {
	d, err := New(testDispatchConfig(), nil, nil, fault.NewRetryPolicyEngine(), breaker.NewRegistry(breaker.Config{}), nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if d.queues[0].name != consts.QueueExecution {
		t.Fatalf("execution queue must come first, got %s", d.queues[0].name)
	}

	// 优先级配置写反也会被纠正
	cfg := testDispatchConfig()
	cfg.Execution.Priority = 1
	cfg.Reconciliation.Priority = 10
	d, err = New(cfg, nil, nil, fault.NewRetryPolicyEngine(), breaker.NewRegistry(breaker.Config{}), nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if d.queues[0].name != consts.QueueReconciliation {
		t.Fatalf("higher priority queue must come first")
	}
}

func TestQueuePolicyUnknownQueue(t *testing.T) {
	d, err := New(testDispatchConfig(), nil, nil, fault.NewRetryPolicyEngine(), breaker.NewRegistry(breaker.Config{}), nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	policy, err := d.queuePolicy(consts.QueueExecution)
	if err != nil || policy.MaxAttempts != 5 {
		t.Fatalf("expected execution policy, got %+v err=%v", policy, err)
	}
	if _, err := d.queuePolicy("nonsense"); err == nil {
		t.Fatalf("unknown queue must error")
	}
	if _, err := d.Enqueue(context.Background(), "nonsense", consts.JobTypePlaceOrder, &model.JobPayload{AlertID: "x"}, nil); err == nil {
		t.Fatalf("enqueue to unknown queue must error")
	}
}

func TestPlaceOrderHandler(t *testing.T) {
	executor := exchange.NewSimulatedOrderExecutor()
	h := PlaceOrderHandler(executor)

	payload := &model.JobPayload{
		Strategy:  "scalping",
		Ticker:    "BTC/USDT",
		Side:      "buy",
		Exchange:  "binance",
		AlertID:   "tv-0001",
		AccountID: 12,
		SizeMode:  "percent",
		SizeValue: 25,
	}
	job := &entity.Job{ID: 1, AlertID: "tv-0001"}

	if err := h(context.Background(), job, payload); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if executor.Orders() != 1 {
		t.Fatalf("expected 1 order placed, got %d", executor.Orders())
	}

	// 执行器故障按原样透出，由调度器分类
	executor.FailWith = errors.New("dial tcp: connection refused")
	err := h(context.Background(), job, payload)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if got := fault.Classify(err).Category; got != fault.CategoryNetwork {
		t.Fatalf("expected NETWORK_ERROR, got %s", got)
	}
}

func TestKeyNames(t *testing.T) {
	if readyKey("execution") != "dispatch:execution:ready" {
		t.Fatalf("unexpected ready key %s", readyKey("execution"))
	}
	if delayedKey("execution") != "dispatch:execution:delayed" {
		t.Fatalf("unexpected delayed key %s", delayedKey("execution"))
	}
	if attemptErrKey(42) != "dispatch:job:42:errors" {
		t.Fatalf("unexpected attempt error key %s", attemptErrKey(42))
	}
}
