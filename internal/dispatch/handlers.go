package dispatch

import (
	"context"

	"signalflow/internal/exchange"
	"signalflow/internal/model"
	"signalflow/internal/model/entity"
	"signalflow/pkg/logger"
)

// 内置的任务handler。cmd层把它们注册到对应JobType上

// PlaceOrderHandler 执行队列的下单任务
func PlaceOrderHandler(executor exchange.OrderExecutor) Handler {
	return func(ctx context.Context, job *entity.Job, payload *model.JobPayload) error {
		resp, err := executor.PlaceOrder(ctx, exchange.RequestFromPayload(payload))
		if err != nil {
			return err
		}
		logger.Info("[Dispatcher] order placed",
			logger.Pair("job_id", job.ID),
			logger.Pair("alert_id", payload.AlertID),
			logger.Pair("order_id", resp.OrderID),
			logger.Pair("account_id", payload.AccountID),
			logger.Pair("selection_reason", payload.SelectionReason))
		return nil
	}
}

// ReconcileHandler 对账队列的仓位核对任务
// 通过适配层对指定账户下达对账性质的平仓指令，失败同样走重试/死信链路
func ReconcileHandler(executor exchange.OrderExecutor) Handler {
	return func(ctx context.Context, job *entity.Job, payload *model.JobPayload) error {
		req := exchange.RequestFromPayload(payload)
		resp, err := executor.PlaceOrder(ctx, req)
		if err != nil {
			return err
		}
		logger.Info("[Dispatcher] position reconciled",
			logger.Pair("job_id", job.ID),
			logger.Pair("account_id", payload.AccountID),
			logger.Pair("ticker", payload.Ticker),
			logger.Pair("order_id", resp.OrderID))
		return nil
	}
}
