package fault

import (
	"math"
	"time"
)

// 重试策略引擎。每个类别固定一组 {最大尝试次数, 基础延迟, 退避倍数}，
// 延迟按指数退避计算并封顶。返回nil表示不再重试，调用方转入死信流程

// RetryPolicy 单个类别的重试参数
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

const maxRetryDelay = 5 * time.Minute

// 类别默认策略。限频类错误退避更长，数据库类给更多机会
var defaultPolicies = map[Category]RetryPolicy{
	CategoryNetwork:   {MaxAttempts: 5, BaseDelay: 2 * time.Second, BackoffMultiplier: 2},
	CategoryTimeout:   {MaxAttempts: 4, BaseDelay: 3 * time.Second, BackoffMultiplier: 2},
	CategoryRateLimit: {MaxAttempts: 4, BaseDelay: 15 * time.Second, BackoffMultiplier: 3},
	CategoryDatabase:  {MaxAttempts: 6, BaseDelay: 1 * time.Second, BackoffMultiplier: 2},
	CategorySystem:    {MaxAttempts: 3, BaseDelay: 5 * time.Second, BackoffMultiplier: 2},
}

// RetryPolicyEngine 按类别决定是否/何时重试
type RetryPolicyEngine struct {
	policies map[Category]RetryPolicy
}

func NewRetryPolicyEngine() *RetryPolicyEngine {
	return &RetryPolicyEngine{policies: defaultPolicies}
}

// NewRetryPolicyEngineWith 允许测试或配置覆盖默认策略
func NewRetryPolicyEngineWith(overrides map[Category]RetryPolicy) *RetryPolicyEngine {
	policies := make(map[Category]RetryPolicy, len(defaultPolicies))
	for cat, p := range defaultPolicies {
		policies[cat] = p
	}
	for cat, p := range overrides {
		policies[cat] = p
	}
	return &RetryPolicyEngine{policies: policies}
}

// NextDelay 第attemptNumber次重试前应等待的延迟，attemptNumber从1开始
// 返回nil表示：类别不可重试，或attemptNumber超过了该类别的MaxAttempts
func (e *RetryPolicyEngine) NextDelay(cat Category, attemptNumber int) *time.Duration {
	if !Lookup(cat).Retryable {
		return nil
	}

	policy, ok := e.policies[cat]
	if !ok {
		policy = e.policies[CategorySystem]
	}
	if attemptNumber < 1 || attemptNumber > policy.MaxAttempts {
		return nil
	}

	delay := time.Duration(float64(policy.BaseDelay) * math.Pow(policy.BackoffMultiplier, float64(attemptNumber-1)))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return &delay
}

// MaxAttempts 类别允许的最大尝试次数，不可重试类别为1
func (e *RetryPolicyEngine) MaxAttempts(cat Category) int {
	if !Lookup(cat).Retryable {
		return 1
	}
	if policy, ok := e.policies[cat]; ok {
		return policy.MaxAttempts
	}
	return e.policies[CategorySystem].MaxAttempts
}
