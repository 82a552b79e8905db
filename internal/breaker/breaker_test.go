package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"signalflow/internal/fault"
)

var netErr = fault.New(fault.CategoryNetwork, "connection refused")

// fakeClock 手动推进的时钟
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	b := New("exchange:test", cfg)
	b.now = clock.now
	return b, clock
}

func fail(b *Breaker, err error) error {
	return b.Execute(context.Background(), func(ctx context.Context) error { return err })
}

func succeed(b *Breaker) error {
	return b.Execute(context.Background(), func(ctx context.Context) error { return nil })
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, Timeout: 30 * time.Second})

	for i := 0; i < 2; i++ {
		_ = fail(b, netErr)
		if b.State() != StateClosed {
			t.Fatalf("breaker opened too early after %d failures", i+1)
		}
	}
	_ = fail(b, netErr)
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after threshold, got %s", b.State())
	}

	// OPEN状态下调用被直接拒绝，operation不执行
	called := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !IsCircuitOpen(err) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run while open")
	}
	if b.Stats().RejectedCount != 1 {
		t.Fatalf("expected 1 rejection, got %d", b.Stats().RejectedCount)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 2, SuccessThreshold: 2, Timeout: 30 * time.Second})

	_ = fail(b, netErr)
	_ = fail(b, netErr)
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN")
	}

	// 超时窗口过后放探测流量
	clock.advance(31 * time.Second)
	if err := succeed(b); err != nil {
		t.Fatalf("probe call should pass: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", b.State())
	}

	// 达到成功阈值后闭合
	if err := succeed(b); err != nil {
		t.Fatalf("second probe should pass: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after %d successes, got %s", 2, b.State())
	}
	if b.Stats().WindowFailures != 0 {
		t.Fatalf("failure window should reset on close")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 2, SuccessThreshold: 2, Timeout: 30 * time.Second})

	_ = fail(b, netErr)
	_ = fail(b, netErr)
	clock.advance(31 * time.Second)

	// 半开期一次故障直接打回OPEN
	_ = fail(b, netErr)
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after half-open failure, got %s", b.State())
	}
}

// 业务拒绝类错误不计入熔断状态机
func TestBreakerIgnoresNonBreakingFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2})

	rejected := fault.New(fault.CategoryExchangeRejected, "below min size")
	for i := 0; i < 10; i++ {
		_ = fail(b, rejected)
	}
	if b.State() != StateClosed {
		t.Fatalf("business rejections must not trip the breaker")
	}

	// 陌生错误走SYSTEM_ERROR，同样不计入
	for i := 0; i < 10; i++ {
		_ = fail(b, errors.New("weird new failure mode"))
	}
	if b.State() != StateClosed {
		t.Fatalf("unknown errors must not trip the breaker")
	}
	if b.Stats().FailureCount != 20 {
		t.Fatalf("failures still counted for observability, got %d", b.Stats().FailureCount)
	}
}

// 滚动窗口外的故障不再计数
func TestBreakerRollingWindow(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 3, MonitoringPeriod: time.Minute})

	_ = fail(b, netErr)
	_ = fail(b, netErr)

	// 窗口滑过，旧故障过期
	clock.advance(2 * time.Minute)
	_ = fail(b, netErr)
	if b.State() != StateClosed {
		t.Fatalf("stale failures must not count toward the threshold")
	}
	if b.Stats().WindowFailures != 1 {
		t.Fatalf("expected 1 failure in window, got %d", b.Stats().WindowFailures)
	}
}

func TestRegistryPerDependency(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1})

	_ = r.Execute(context.Background(), "exchange:binance", func(ctx context.Context) error { return netErr })
	if r.Get("exchange:binance").State() != StateOpen {
		t.Fatalf("binance breaker should be open")
	}
	if r.Get("exchange:okx").State() != StateClosed {
		t.Fatalf("okx breaker must be independent")
	}

	stats := r.StatsAll()
	if len(stats) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(stats))
	}
}
