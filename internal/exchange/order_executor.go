package exchange

import (
	"context"

	"signalflow/internal/model"
)

// 券商适配层的统一下单接口
// 各交易所的具体协议由适配器实现，调度器只认这一个能力：
// 下一单，然后按次报告成功或失败

type OrderRequest struct {
	Exchange   string
	AccountID  uint64
	Ticker     string
	Side       string
	SizeMode   string
	SizeValue  float64
	Leverage   float64
	StopLoss   float64
	TakeProfit float64
	AlertID    string // 透传给交易所做client order id，方便对账
}

type OrderResponse struct {
	OrderID string
	Message string
}

// OrderExecutor 统一的"place order"能力
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
}

// RequestFromPayload 把Job快照还原成下单请求
func RequestFromPayload(p *model.JobPayload) *OrderRequest {
	return &OrderRequest{
		Exchange:   p.Exchange,
		AccountID:  p.AccountID,
		Ticker:     p.Ticker,
		Side:       p.Side,
		SizeMode:   p.SizeMode,
		SizeValue:  p.SizeValue,
		Leverage:   p.Leverage,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		AlertID:    p.AlertID,
	}
}
