package exchange

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// 模拟下单，本地联调和测试用
// 可以注入错误来演练重试/熔断/死信链路
type SimulatedOrderExecutor struct {
	mu     sync.Mutex
	orders map[string]*OrderRequest // orderID -> 请求快照

	// FailWith 非nil时下单固定返回该错误
	FailWith error
	// FailTimes 前N次调用失败，之后恢复成功，配合FailWith使用
	FailTimes int
	calls     int
}

func NewSimulatedOrderExecutor() *SimulatedOrderExecutor {
	return &SimulatedOrderExecutor{
		orders: make(map[string]*OrderRequest),
	}
}

func (s *SimulatedOrderExecutor) PlaceOrder(_ context.Context, req *OrderRequest) (*OrderResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.FailWith != nil && (s.FailTimes <= 0 || s.calls <= s.FailTimes) {
		return nil, s.FailWith
	}

	// 模拟立即成交
	orderID := uuid.NewString()
	s.orders[orderID] = req

	return &OrderResponse{
		OrderID: orderID,
		Message: "Simulated order filled",
	}, nil
}

// Calls 已发生的调用次数
func (s *SimulatedOrderExecutor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Orders 已成交的订单数量
func (s *SimulatedOrderExecutor) Orders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
