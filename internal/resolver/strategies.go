package resolver

import (
	"context"
	"fmt"

	"signalflow/internal/dao"
	"signalflow/internal/model"
	"signalflow/pkg/logger"
)

// 策略1：显式account_id
// 信号直接指定了账户，校验存在、活跃、交易所一致，登录态下还要求归属一致
// 不命中不算错，落入下一个策略
type directAccountStrategy struct {
	accounts dao.AccountDao
}

func (s *directAccountStrategy) name() string { return "direct_account_id" }

func (s *directAccountStrategy) attempt(ctx context.Context, sig *model.Signal, callerUID *uint64) (Outcome, error) {
	accountID, ok := sig.AccountIDValue()
	if !ok {
		return notApplicable(), nil
	}

	acc, err := s.accounts.FindAccount(ctx, dao.AccountFilter{
		ID:         accountID,
		Exchange:   sig.Exchange,
		UserID:     callerUID,
		ActiveOnly: true,
	})
	if err != nil {
		return notApplicable(), err
	}
	if acc == nil {
		// 账户不存在/不活跃/归属不对，记一笔日志继续往下走
		logger.Warn("[Resolver] direct account_id not usable",
			logger.Pair("account_id", accountID),
			logger.Pair("exchange", sig.Exchange))
		return notApplicable(), nil
	}
	return resolved(acc, "Direct account_id match"), nil
}

// 策略2：策略映射
// 2a 显式StrategyMapping，按priority desc、created_at desc取第一条
// 2b 没有映射时退回历史遗留的名称匹配：账户展示名大小写不敏感地等于或包含策略名
type strategyMappingStrategy struct {
	accounts dao.AccountDao
}

func (s *strategyMappingStrategy) name() string { return "strategy_mapping" }

func (s *strategyMappingStrategy) attempt(ctx context.Context, sig *model.Signal, callerUID *uint64) (Outcome, error) {
	mapping, err := s.accounts.FindStrategyMapping(ctx, sig.Strategy, sig.Exchange, callerUID)
	if err != nil {
		return notApplicable(), err
	}
	if mapping != nil {
		return resolved(&mapping.Account, fmt.Sprintf("Explicit strategy mapping (priority: %d)", mapping.Priority)), nil
	}

	acc, err := s.accounts.FindAccountByNameMatch(ctx, sig.Exchange, sig.Strategy)
	if err != nil {
		return notApplicable(), err
	}
	if acc != nil {
		return resolved(acc, "Strategy name matching (legacy)"), nil
	}
	return notApplicable(), nil
}

// 策略3：用户默认账户，仅登录态
// 先找名字含"default"的活跃账户，找不到再取该交易所下最早创建的
type userDefaultStrategy struct {
	accounts dao.AccountDao
}

func (s *userDefaultStrategy) name() string { return "user_default" }

func (s *userDefaultStrategy) attempt(ctx context.Context, sig *model.Signal, callerUID *uint64) (Outcome, error) {
	if callerUID == nil {
		return notApplicable(), nil
	}

	acc, err := s.accounts.FindDefaultNamedAccount(ctx, *callerUID, sig.Exchange)
	if err != nil {
		return notApplicable(), err
	}
	if acc != nil {
		return resolved(acc, "User default account (by name)"), nil
	}

	acc, err = s.accounts.FindOldestAccount(ctx, *callerUID, sig.Exchange)
	if err != nil {
		return notApplicable(), err
	}
	if acc != nil {
		return resolved(acc, "User first account (fallback)"), nil
	}
	return notApplicable(), nil
}

// 策略4：系统兜底，仅匿名的公共webhook可达
// 取该交易所全系统最近创建的活跃账户，无视归属
// 注意这是一条信任边界：伪造的有效告警可能打到任意活跃账户上，这里保留源系统行为，
// 但命中时用Warn级日志带上账户信息，方便运营审计
type systemFallbackStrategy struct {
	accounts dao.AccountDao
}

func (s *systemFallbackStrategy) name() string { return "system_fallback" }

func (s *systemFallbackStrategy) attempt(ctx context.Context, sig *model.Signal, callerUID *uint64) (Outcome, error) {
	if callerUID != nil {
		return notApplicable(), nil
	}

	acc, err := s.accounts.FindNewestActiveAccount(ctx, sig.Exchange)
	if err != nil {
		return notApplicable(), err
	}
	if acc == nil {
		return notApplicable(), nil
	}
	logger.Warn("[Resolver] system fallback account used for public signal",
		logger.Pair("account_id", acc.ID),
		logger.Pair("owner_user_id", acc.UserID),
		logger.Pair("exchange", sig.Exchange),
		logger.Pair("strategy", sig.Strategy))
	return resolved(acc, "First active account (system fallback)"), nil
}
