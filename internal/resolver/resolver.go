package resolver

import (
	"context"
	"fmt"

	"signalflow/internal/dao"
	"signalflow/internal/fault"
	"signalflow/internal/model"
	"signalflow/internal/model/entity"
	"signalflow/pkg/logger"
)

// 账户解析瀑布。四个策略按固定顺序尝试，命中即止：
//  1. 显式account_id
//  2. 策略映射（显式映射 -> 名称匹配兜底）
//  3. 用户默认账户（仅登录态）
//  4. 系统兜底（仅公共webhook）
// 前三个策略内部的失败只记日志不抛出，继续走下一个；四个全落空才报错

// Resolution 解析成功的结果
// Reason是可观测契约的一部分，运营和测试都依赖这串文案，不要改动措辞
type Resolution struct {
	Account *entity.ExchangeAccount
	Reason  string
}

// ResolutionFailure 解析失败，带机器可读类别和交易所名便于排查
type ResolutionFailure struct {
	Category fault.Category
	Exchange string
	Reason   string
}

func (e *ResolutionFailure) Error() string {
	return e.Reason
}

// Outcome 单个策略的尝试结果：命中 或 不适用
type Outcome struct {
	Resolved bool
	Account  *entity.ExchangeAccount
	Reason   string
}

func resolved(account *entity.ExchangeAccount, reason string) Outcome {
	return Outcome{Resolved: true, Account: account, Reason: reason}
}

func notApplicable() Outcome {
	return Outcome{}
}

// strategy 解析策略。返回error时由resolver吞掉并落入下一个策略
type strategy interface {
	name() string
	attempt(ctx context.Context, sig *model.Signal, callerUID *uint64) (Outcome, error)
}

type Resolver struct {
	accounts   dao.AccountDao
	strategies []strategy
}

func New(accounts dao.AccountDao) *Resolver {
	return &Resolver{
		accounts: accounts,
		strategies: []strategy{
			&directAccountStrategy{accounts: accounts},
			&strategyMappingStrategy{accounts: accounts},
			&userDefaultStrategy{accounts: accounts},
			&systemFallbackStrategy{accounts: accounts},
		},
	}
}

// Resolve 为信号挑选执行账户
// 只读查询，无共享可变状态，天然并发安全
func (r *Resolver) Resolve(ctx context.Context, sig *model.Signal, callerUID *uint64) (*Resolution, *ResolutionFailure) {
	for _, s := range r.strategies {
		outcome, err := s.attempt(ctx, sig, callerUID)
		if err != nil {
			// 单个策略失败不致命，落到下一个策略
			logger.Warn("[Resolver] strategy attempt failed",
				logger.Pair("strategy", s.name()),
				logger.Pair("exchange", sig.Exchange),
				logger.Pair("error", err.Error()))
			continue
		}
		if outcome.Resolved {
			logger.Info("[Resolver] account resolved",
				logger.Pair("strategy", s.name()),
				logger.Pair("account_id", outcome.Account.ID),
				logger.Pair("reason", outcome.Reason))
			return &Resolution{Account: outcome.Account, Reason: outcome.Reason}, nil
		}
	}

	return nil, &ResolutionFailure{
		Category: fault.CategoryAccountNotFound,
		Exchange: sig.Exchange,
		Reason:   fmt.Sprintf("no tradable account found for exchange %s", sig.Exchange),
	}
}

// ValidateOwnership 独立校验账户归属且活跃，鉴权调用点在解析后再做一次纵深防御
func (r *Resolver) ValidateOwnership(ctx context.Context, accountID, userID uint64, exchange string) (bool, error) {
	acc, err := r.accounts.FindAccount(ctx, dao.AccountFilter{
		ID:         accountID,
		Exchange:   exchange,
		UserID:     &userID,
		ActiveOnly: true,
	})
	if err != nil {
		return false, err
	}
	return acc != nil, nil
}
