package query

import (
	"context"
	"errors"
	"fmt"

	"signalflow/internal/dao"
	"signalflow/internal/model/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accountDao struct {
	db *gorm.DB
}

func NewAccountDao(db *gorm.DB) dao.AccountDao {
	return &accountDao{db: db}
}

// first 统一处理gorm的未命中语义：记录不存在返回(nil, nil)
func first(tx *gorm.DB, dest *entity.ExchangeAccount) (*entity.ExchangeAccount, error) {
	result := tx.First(dest)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return dest, nil
}

func (r *accountDao) FindAccount(ctx context.Context, filter dao.AccountFilter) (*entity.ExchangeAccount, error) {
	tx := r.db.WithContext(ctx).Model(&entity.ExchangeAccount{}).
		Where("exchange = ?", filter.Exchange)

	if filter.ID != 0 {
		tx = tx.Where("id = ?", filter.ID)
	}
	if filter.UserID != nil {
		tx = tx.Where("user_id = ?", *filter.UserID)
	}
	if filter.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}

	var account entity.ExchangeAccount
	acc, err := first(tx, &account)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return acc, nil
}

func (r *accountDao) FindStrategyMapping(ctx context.Context, strategyName, exchange string, userID *uint64) (*entity.StrategyMapping, error) {
	tx := r.db.WithContext(ctx).Model(&entity.StrategyMapping{}).
		Joins("JOIN exchange_accounts a ON a.id = strategy_mappings.account_id AND a.deleted_at = 0").
		Where("strategy_mappings.strategy_name = ? AND strategy_mappings.is_active = ?", strategyName, true).
		Where("a.exchange = ? AND a.is_active = ?", exchange, true)

	// 用户维度的映射优先于全局映射
	if userID != nil {
		tx = tx.Where("strategy_mappings.user_id = ? OR strategy_mappings.user_id IS NULL", *userID).
			Order("strategy_mappings.user_id IS NULL ASC")
	}

	var mapping entity.StrategyMapping
	result := tx.
		Order("strategy_mappings.priority DESC").
		Order("strategy_mappings.created_at DESC").
		Preload("Account").
		First(&mapping)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find strategy mapping: %w", result.Error)
	}
	return &mapping, nil
}

func (r *accountDao) FindAccountByNameMatch(ctx context.Context, exchange, name string) (*entity.ExchangeAccount, error) {
	var account entity.ExchangeAccount

	// 完全相等的排最前，其余按名称升序、创建时间倒序
	// Order不支持绑定参数，带参的排序表达式要走OrderBy子句
	tx := r.db.WithContext(ctx).Model(&entity.ExchangeAccount{}).
		Where("exchange = ? AND is_active = ?", exchange, true).
		Where("LOWER(name) LIKE LOWER(CONCAT('%', ?, '%'))", name).
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:                "LOWER(name) = LOWER(?) DESC, name ASC, created_at DESC",
			Vars:               []interface{}{name},
			WithoutParentheses: true,
		}})

	acc, err := first(tx, &account)
	if err != nil {
		return nil, fmt.Errorf("failed to match account by name: %w", err)
	}
	return acc, nil
}

func (r *accountDao) FindDefaultNamedAccount(ctx context.Context, userID uint64, exchange string) (*entity.ExchangeAccount, error) {
	var account entity.ExchangeAccount
	tx := r.db.WithContext(ctx).Model(&entity.ExchangeAccount{}).
		Where("user_id = ? AND exchange = ? AND is_active = ?", userID, exchange, true).
		Where("LOWER(name) LIKE '%default%'").
		Order("created_at DESC")

	acc, err := first(tx, &account)
	if err != nil {
		return nil, fmt.Errorf("failed to find default-named account: %w", err)
	}
	return acc, nil
}

func (r *accountDao) FindOldestAccount(ctx context.Context, userID uint64, exchange string) (*entity.ExchangeAccount, error) {
	var account entity.ExchangeAccount
	tx := r.db.WithContext(ctx).Model(&entity.ExchangeAccount{}).
		Where("user_id = ? AND exchange = ? AND is_active = ?", userID, exchange, true).
		Order("created_at ASC")

	acc, err := first(tx, &account)
	if err != nil {
		return nil, fmt.Errorf("failed to find oldest account: %w", err)
	}
	return acc, nil
}

func (r *accountDao) FindNewestActiveAccount(ctx context.Context, exchange string) (*entity.ExchangeAccount, error) {
	var account entity.ExchangeAccount
	tx := r.db.WithContext(ctx).Model(&entity.ExchangeAccount{}).
		Where("exchange = ? AND is_active = ?", exchange, true).
		Order("created_at DESC")

	acc, err := first(tx, &account)
	if err != nil {
		return nil, fmt.Errorf("failed to find newest active account: %w", err)
	}
	return acc, nil
}

func (r *accountDao) ListActiveAccounts(ctx context.Context, limit int) ([]*entity.ExchangeAccount, error) {
	var accounts []*entity.ExchangeAccount
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	return accounts, nil
}
