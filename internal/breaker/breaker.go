package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"signalflow/internal/fault"
	"signalflow/pkg/logger"
)

// 熔断器。每个外部依赖（按名字区分，如 "exchange:binance"）一个实例，
// 在依赖持续抖动时快速失败，避免worker都耗在等一个挂掉的下游上

// ErrCircuitOpen 熔断开启时的快速失败错误，调度器据此直接走死信/降级，不等超时
var ErrCircuitOpen = errors.New("circuit breaker is open")

// IsCircuitOpen 判断错误是否为熔断拒绝
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type Config struct {
	FailureThreshold int           // 滚动窗口内多少次故障后熔断
	SuccessThreshold int           // 半开状态连续成功多少次后闭合
	Timeout          time.Duration // 开启后多久进入半开
	MonitoringPeriod time.Duration // 故障计数的滚动窗口
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MonitoringPeriod <= 0 {
		c.MonitoringPeriod = time.Minute
	}
	return c
}

// Stats 观测用计数
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	RequestCount    uint64    `json:"request_count"`
	RejectedCount   uint64    `json:"rejected_count"`
	FailureCount    uint64    `json:"failure_count"`
	SuccessCount    uint64    `json:"success_count"`
	WindowFailures  int       `json:"window_failures"`
	LastStateChange time.Time `json:"last_state_change"`
}

type Breaker struct {
	name string
	cfg  Config

	mu               sync.Mutex
	state            State
	failureTimes     []time.Time // 窗口内计入熔断的故障时间点
	halfOpenSuccess  int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	requestCount     uint64
	rejectedCount    uint64
	failureCount     uint64
	successCount     uint64
	now              func() time.Time // 测试注入时钟
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:            name,
		cfg:             cfg.withDefaults(),
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// Execute 包裹一次对外部依赖的调用
// OPEN状态直接返回ErrCircuitOpen，不触发operation
func (b *Breaker) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := operation(ctx)
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requestCount++
	now := b.now()

	switch b.state {
	case StateOpen:
		// 超时到了才放探测流量
		if now.Sub(b.lastFailureTime) >= b.cfg.Timeout {
			b.transition(StateHalfOpen, now)
			return nil
		}
		b.rejectedCount++
		return fault.Wrap(ErrCircuitOpen, fault.CategorySystem, "dependency "+b.name+" unavailable")
	default:
		return nil
	}
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if err == nil {
		b.successCount++
		if b.state == StateHalfOpen {
			b.halfOpenSuccess++
			if b.halfOpenSuccess >= b.cfg.SuccessThreshold {
				b.failureTimes = b.failureTimes[:0]
				b.transition(StateClosed, now)
			}
		}
		return
	}

	b.failureCount++

	// 只有会熔断的类别才计入状态机
	if !fault.Classify(err).CircuitBreaks {
		return
	}

	b.lastFailureTime = now

	switch b.state {
	case StateHalfOpen:
		// 半开期一次故障就打回OPEN
		b.transition(StateOpen, now)
	case StateClosed:
		b.failureTimes = append(b.failureTimes, now)
		b.evictExpiredLocked(now)
		if len(b.failureTimes) >= b.cfg.FailureThreshold {
			b.transition(StateOpen, now)
		}
	}
}

// evictExpiredLocked 淘汰滚动窗口外的故障记录，调用方持锁
func (b *Breaker) evictExpiredLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.MonitoringPeriod)
	idx := 0
	for idx < len(b.failureTimes) && b.failureTimes[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		b.failureTimes = b.failureTimes[idx:]
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	logger.Warn("[Breaker] state transition",
		logger.Pair("name", b.name),
		logger.Pair("from", b.state),
		logger.Pair("to", to))
	b.state = to
	b.lastStateChange = now
	if to == StateHalfOpen {
		b.halfOpenSuccess = 0
	}
}

// State 当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats 导出计数快照
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:            b.name,
		State:           b.state,
		RequestCount:    b.requestCount,
		RejectedCount:   b.rejectedCount,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		WindowFailures:  len(b.failureTimes),
		LastStateChange: b.lastStateChange,
	}
}

// cleanup 定期维护：闭合状态下清掉窗口外的故障时间点
// 锁粒度只有一次切片整理，不会卡住热路径
func (b *Breaker) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictExpiredLocked(b.now())
}
