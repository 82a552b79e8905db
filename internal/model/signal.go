package model

import (
	"fmt"

	"signalflow/internal/consts"

	"github.com/spf13/cast"
)

/*
来源于外部告警工具（如TradingView alert webhook）

	{
	  "strategy": "scalping",
	  "ticker": "BTC/USDT",
	  "side": "buy",
	  "exchange": "binance",
	  "alert_id": "tv-20250828-0001",
	  "account_id": "12",
	  "size_mode": "percent",
	  "size_value": "25",
	  "leverage": 3,
	  "stop_loss": 1.5,
	  "take_profit": 3.0
	}
*/
type Signal struct {
	Strategy string `json:"strategy" validate:"required"`
	Ticker   string `json:"ticker" validate:"required"`
	Side     string `json:"side" validate:"required,oneof=buy sell close close_all"`
	Exchange string `json:"exchange" validate:"required"`
	AlertID  string `json:"alert_id" validate:"required,max=128"`

	// 可选的显式账户id。TradingView模板里数字经常以字符串发出来，用interface{}接收后cast
	AccountID interface{} `json:"account_id,omitempty"`

	SizeMode  string      `json:"size_mode,omitempty" validate:"omitempty,oneof=quantity percent quote"`
	SizeValue interface{} `json:"size_value,omitempty"`

	Leverage   interface{} `json:"leverage,omitempty"`
	StopLoss   interface{} `json:"stop_loss,omitempty"`
	TakeProfit interface{} `json:"take_profit,omitempty"`
}

// AccountIDValue 解析显式账户id，未携带返回(0, false)
func (s *Signal) AccountIDValue() (uint64, bool) {
	if s.AccountID == nil {
		return 0, false
	}
	id, err := cast.ToUint64E(s.AccountID)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// SizeValueFloat 解析仓位数值
func (s *Signal) SizeValueFloat() float64 {
	return cast.ToFloat64(s.SizeValue)
}

func (s *Signal) LeverageFloat() float64 {
	return cast.ToFloat64(s.Leverage)
}

func (s *Signal) StopLossFloat() float64 {
	return cast.ToFloat64(s.StopLoss)
}

func (s *Signal) TakeProfitFloat() float64 {
	return cast.ToFloat64(s.TakeProfit)
}

// Normalize 填充默认值
func (s *Signal) Normalize() {
	if s.SizeMode == "" {
		s.SizeMode = consts.SizeModeQuantity
	}
}

func (s *Signal) String() string {
	return fmt.Sprintf("signal{strategy=%s ticker=%s side=%s exchange=%s alert_id=%s}",
		s.Strategy, s.Ticker, s.Side, s.Exchange, s.AlertID)
}

// DispatchResult 信号受理结果
type DispatchResult struct {
	Message   string `json:"message"`
	JobID     string `json:"job_id"`
	AlertID   string `json:"alert_id"`
	Duplicate bool   `json:"duplicate"`
}

// JobPayload 写入Job快照的内部结构，执行worker按这个结构回放
type JobPayload struct {
	Strategy   string  `json:"strategy"`
	Ticker     string  `json:"ticker"`
	Side       string  `json:"side"`
	Exchange   string  `json:"exchange"`
	AlertID    string  `json:"alert_id"`
	AccountID  uint64  `json:"account_id"`
	SizeMode   string  `json:"size_mode"`
	SizeValue  float64 `json:"size_value"`
	Leverage   float64 `json:"leverage,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`

	SelectionReason string `json:"selection_reason"` // 账户是怎么选出来的，运营排查用
}
