package consts

import "time"

const (
	// RequestId 请求id名称
	RequestId   = "request_id"
	UserID      = "user_id"
	JWTTokenCtx = "token_ctx"

	// SignatureHeader webhook签名头，携带对原始body的HMAC
	SignatureHeader = "X-Signature"

	TimeLayout   = "2006-01-02 15:04:05"
	TimeLayoutMs = "2006-01-02 15:04:05.000"

	// 默认redis过期时间
	RedisExrDefault = time.Hour * 24 * 5
)

// 队列名称
const (
	QueueExecution      = "execution"      // 执行队列，时间敏感
	QueueReconciliation = "reconciliation" // 对账队列，低优先级
)

// 任务类型
const (
	JobTypePlaceOrder = "place_order"   // 下单
	JobTypeReconcile  = "reconcile_pos" // 仓位对账
)

// Side 信号方向
const (
	SideBuy      = "buy"
	SideSell     = "sell"
	SideClose    = "close"
	SideCloseAll = "close_all"
)

// 仓位计算模式
const (
	SizeModeQuantity = "quantity" // 按数量
	SizeModePercent  = "percent"  // 按仓位百分比
	SizeModeQuote    = "quote"    // 按计价币金额
)
