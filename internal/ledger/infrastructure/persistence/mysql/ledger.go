package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/optionsettlement/internal/ledger/domain"
	"github.com/wyfcoding/optionsettlement/pkg/db"
	"github.com/wyfcoding/optionsettlement/pkg/metrics"
)

// Ledger 托管账本的 MySQL 实现。
// 单笔转账的双边余额变更在一个数据库事务内完成。
type Ledger struct {
	db      *db.DB
	metrics *metrics.Metrics
}

// NewLedger 创建托管账本，metrics 允许为 nil
func NewLedger(database *db.DB, m *metrics.Metrics) *Ledger {
	return &Ledger{db: database, metrics: m}
}

// Transfer 在 asset 账本上从 from 向 to 转移 amount
func (l *Ledger) Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("transfer amount must be positive")
	}

	err := l.transfer(ctx, asset, from, to, amount)
	if l.metrics != nil {
		l.metrics.ObserveTransfer(asset, err)
	}
	return err
}

func (l *Ledger) transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error {
	return l.db.WithTx(ctx, func(tx *gorm.DB) error {
		var source domain.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("asset = ? AND owner = ?", asset, from).
			First(&source).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s/%s: %w", asset, from, domain.ErrAccountNotFound)
		}
		if err != nil {
			return err
		}

		var dest domain.Account
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("asset = ? AND owner = ?", asset, to).
			First(&dest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s/%s: %w", asset, to, domain.ErrAccountNotFound)
		}
		if err != nil {
			return err
		}

		if err := source.Debit(amount); err != nil {
			return fmt.Errorf("%s/%s: %w", asset, from, err)
		}
		dest.Credit(amount)

		if err := tx.Save(&source).Error; err != nil {
			return err
		}
		return tx.Save(&dest).Error
	})
}

// Deposit 向账户入金，账户不存在时创建
func (l *Ledger) Deposit(ctx context.Context, asset, owner string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("deposit amount must be positive")
	}

	return l.db.WithTx(ctx, func(tx *gorm.DB) error {
		var account domain.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("asset = ? AND owner = ?", asset, owner).
			First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			account = domain.Account{Asset: asset, Owner: owner, Balance: decimal.Zero}
		} else if err != nil {
			return err
		}

		account.Credit(amount)
		return tx.Save(&account).Error
	})
}

// Balance 查询余额，账户不存在时视为零
func (l *Ledger) Balance(ctx context.Context, asset, owner string) (decimal.Decimal, error) {
	var account domain.Account
	err := l.db.WithContext(ctx).
		Where("asset = ? AND owner = ?", asset, owner).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}
