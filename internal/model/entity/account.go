package entity

import (
	"time"

	"gorm.io/plugin/soft_delete"
)

// ExchangeAccount 用户绑定的券商/交易所账户
// 核心链路只读，增删改由管理后台维护
type ExchangeAccount struct {
	ID       uint64 `gorm:"primaryKey"`
	UserID   uint64 `gorm:"column:user_id;not null;index:idx_user_exchange"`
	Exchange string `gorm:"type:varchar(30);not null;index:idx_user_exchange;index:idx_exchange_active"`
	Name     string `gorm:"type:varchar(100);not null"` // 展示名，策略名匹配会用到
	Active   bool   `gorm:"column:is_active;not null;default:true;index:idx_exchange_active"`
	Testnet  bool   `gorm:"column:is_testnet;not null;default:false"`

	CreatedAt time.Time             `gorm:"column:created_at"`
	UpdatedAt time.Time             `gorm:"column:updated_at"`
	DeletedAt soft_delete.DeletedAt `gorm:"column:deleted_at"`
}

func (ExchangeAccount) TableName() string {
	return "exchange_accounts"
}

// StrategyMapping 策略名到账户的映射，同一策略可配置多条，按priority决定优先级
type StrategyMapping struct {
	ID           uint64  `gorm:"primaryKey"`
	StrategyName string  `gorm:"column:strategy_name;type:varchar(100);not null;index:idx_strategy_active"`
	UserID       *uint64 `gorm:"column:user_id;index"` // 为空表示全局映射
	AccountID    uint64  `gorm:"column:account_id;not null"`
	Priority     int     `gorm:"not null;default:0"`
	Active       bool    `gorm:"column:is_active;not null;default:true;index:idx_strategy_active"`

	CreatedAt time.Time `gorm:"column:created_at"`

	// 关联账户，解析时需要校验账户本身是否可用
	Account ExchangeAccount `gorm:"foreignKey:AccountID;references:ID"`
}

func (StrategyMapping) TableName() string {
	return "strategy_mappings"
}
