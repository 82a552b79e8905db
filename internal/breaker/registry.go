package breaker

import (
	"context"
	"sync"
	"time"
)

// Registry 按依赖名惰性创建熔断器，进程生命周期内复用
// 多进程部署时各进程视图允许少量分歧，熔断是尽力而为的止损，不追求一致性
type Registry struct {
	cfg      Config
	mu       sync.RWMutex
	breakers map[string]*Breaker

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*Breaker),
		stopCh:   make(chan struct{}),
	}
}

// Get 取指定依赖的熔断器，不存在则创建
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	b = New(name, r.cfg)
	r.breakers[name] = b
	return b
}

// Execute 便捷入口：用name对应的熔断器包裹operation
func (r *Registry) Execute(ctx context.Context, name string, operation func(ctx context.Context) error) error {
	return r.Get(name).Execute(ctx, operation)
}

// Timeout 熔断开启到半开的等待窗口，调度器拿它当重试延迟的参考
func (r *Registry) Timeout() time.Duration {
	return r.cfg.Timeout
}

// StatsAll 导出全部熔断器的观测数据
func (r *Registry) StatsAll() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	return out
}

// StartCleanup 周期性整理各实例的滚动窗口，独立goroutine运行
func (r *Registry) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.mu.RLock()
				for _, b := range r.breakers {
					b.cleanup()
				}
				r.mu.RUnlock()
			}
		}
	}()
}

func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
}
