package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"gorm.io/gorm"
)

// 错误分类。任何执行失败先经过Classify归入固定类别，
// 重试策略和熔断计数都只认类别，不认具体错误串

type Category string

const (
	CategoryNetwork             Category = "NETWORK_ERROR"
	CategoryTimeout             Category = "TIMEOUT"
	CategoryRateLimit           Category = "RATE_LIMIT"
	CategoryExchangeRejected    Category = "EXCHANGE_REJECTED"
	CategoryInsufficientBalance Category = "INSUFFICIENT_BALANCE"
	CategoryAuthentication      Category = "AUTHENTICATION_ERROR"
	CategoryAccountNotFound     Category = "ACCOUNT_NOT_FOUND"
	CategoryValidation          Category = "VALIDATION_ERROR"
	CategoryInvalidConfig       Category = "INVALID_CONFIGURATION"
	CategoryDatabase            Category = "DATABASE_ERROR"
	CategorySystem              Category = "SYSTEM_ERROR"
)

// Classification 类别附带的策略提示
type Classification struct {
	Category      Category
	Retryable     bool
	CircuitBreaks bool
}

// 固定的分类表
var classifications = map[Category]Classification{
	CategoryNetwork:             {CategoryNetwork, true, true},
	CategoryTimeout:             {CategoryTimeout, true, true},
	CategoryRateLimit:           {CategoryRateLimit, true, true},
	CategoryExchangeRejected:    {CategoryExchangeRejected, false, false}, // 业务拒绝，不是依赖故障
	CategoryInsufficientBalance: {CategoryInsufficientBalance, false, false},
	CategoryAuthentication:      {CategoryAuthentication, false, false},
	CategoryAccountNotFound:     {CategoryAccountNotFound, false, false},
	CategoryValidation:          {CategoryValidation, false, false},
	CategoryInvalidConfig:       {CategoryInvalidConfig, false, false},
	CategoryDatabase:            {CategoryDatabase, true, true},
	// 未知错误默认可重试但不计入熔断，避免新颖故障误开熔断器
	CategorySystem: {CategorySystem, true, false},
}

// Lookup 按类别取分类信息
func Lookup(cat Category) Classification {
	if c, ok := classifications[cat]; ok {
		return c
	}
	return classifications[CategorySystem]
}

// DeadLetterPriority 死信优先级，数据库/系统故障最需要运营关注
func DeadLetterPriority(cat Category) int {
	switch cat {
	case CategoryDatabase, CategorySystem:
		return 100
	case CategoryInvalidConfig, CategoryAuthentication:
		return 80
	case CategoryNetwork, CategoryTimeout:
		return 60
	case CategoryRateLimit:
		return 40
	default:
		return 20
	}
}

// Fault 显式携带类别的错误，执行器内部已知类别时直接打标
type Fault struct {
	Cat Category
	Msg string
	Err error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", f.Cat, f.Msg, f.Err)
	}
	return fmt.Sprintf("[%s] %s", f.Cat, f.Msg)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// New 创建一个已分类的错误
func New(cat Category, msg string) *Fault {
	return &Fault{Cat: cat, Msg: msg}
}

// Wrap 给底层错误打上类别标记
func Wrap(err error, cat Category, msg string) *Fault {
	return &Fault{Cat: cat, Msg: msg, Err: err}
}

// Classify 把任意错误映射到固定分类
// 优先认显式打标的Fault，其次按错误类型判断，最后按错误串启发式匹配
// 纯函数，无副作用
func Classify(err error) Classification {
	if err == nil {
		return classifications[CategorySystem]
	}

	var f *Fault
	if errors.As(err, &f) {
		return Lookup(f.Cat)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return classifications[CategoryTimeout]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return classifications[CategoryTimeout]
		}
		return classifications[CategoryNetwork]
	}

	if errors.Is(err, gorm.ErrInvalidDB) || errors.Is(err, gorm.ErrInvalidTransaction) {
		return classifications[CategoryDatabase]
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return classifications[CategoryRateLimit]
	case strings.Contains(msg, "insufficient balance") || strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "insufficient margin"):
		return classifications[CategoryInsufficientBalance]
	case strings.Contains(msg, "invalid api key") || strings.Contains(msg, "api key expired") || strings.Contains(msg, "signature mismatch") || strings.Contains(msg, "unauthorized"):
		return classifications[CategoryAuthentication]
	case strings.Contains(msg, "order rejected") || strings.Contains(msg, "rejected by exchange"):
		return classifications[CategoryExchangeRejected]
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return classifications[CategoryTimeout]
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "no such host") || strings.Contains(msg, "broken pipe"):
		return classifications[CategoryNetwork]
	case strings.Contains(msg, "sql") || strings.Contains(msg, "database") || strings.Contains(msg, "deadlock"):
		return classifications[CategoryDatabase]
	}

	return classifications[CategorySystem]
}
