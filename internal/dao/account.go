package dao

import (
	"context"

	"signalflow/internal/model/entity"
)

// AccountFilter 账户查询条件
type AccountFilter struct {
	ID         uint64  // 0表示不限定
	Exchange   string  // 必填
	UserID     *uint64 // nil表示不限定归属
	ActiveOnly bool
}

// AccountDao 账户与策略映射的只读查询，核心链路不写账户表
// 未命中统一返回 (nil, nil)，error只表示存储层故障
type AccountDao interface {

	// FindAccount 按条件查找单个账户
	FindAccount(ctx context.Context, filter AccountFilter) (*entity.ExchangeAccount, error)

	// FindStrategyMapping 查找策略显式映射
	// 排序: priority desc, created_at desc，只返回映射和关联账户都active的第一条
	FindStrategyMapping(ctx context.Context, strategyName, exchange string, userID *uint64) (*entity.StrategyMapping, error)

	// FindAccountByNameMatch 按展示名模糊匹配账户（大小写不敏感，等于或包含）
	// 排序: 完全相等的优先，然后name asc, created_at desc
	FindAccountByNameMatch(ctx context.Context, exchange, name string) (*entity.ExchangeAccount, error)

	// FindDefaultNamedAccount 查找用户名下名称含"default"的活跃账户
	FindDefaultNamedAccount(ctx context.Context, userID uint64, exchange string) (*entity.ExchangeAccount, error)

	// FindOldestAccount 用户在该交易所最早创建的活跃账户
	FindOldestAccount(ctx context.Context, userID uint64, exchange string) (*entity.ExchangeAccount, error)

	// FindNewestActiveAccount 全系统该交易所最近创建的活跃账户，公共webhook兜底用
	FindNewestActiveAccount(ctx context.Context, exchange string) (*entity.ExchangeAccount, error)

	// ListActiveAccounts 全部活跃账户，周期对账的遍历入口。按id升序
	ListActiveAccounts(ctx context.Context, limit int) ([]*entity.ExchangeAccount, error)
}
