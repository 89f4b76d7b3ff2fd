// 包 domain 托管账本的领域模型。
// 结算引擎把代币账本当作外部协作方，这里是本地部署用的托管实现的模型。
package domain

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 账本错误
var (
	// ErrAccountNotFound 账户不存在
	ErrAccountNotFound = errors.New("ledger account not found")
	// ErrInsufficientBalance 余额不足
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Account 托管账户：某一资产下某一持有方的余额
type Account struct {
	gorm.Model
	// 资产标识（与协议的 underlying_asset/strike_asset 对应）
	Asset string `gorm:"column:asset;type:varchar(64);uniqueIndex:idx_asset_owner;not null" json:"asset"`
	// 持有方身份
	Owner string `gorm:"column:owner;type:varchar(64);uniqueIndex:idx_asset_owner;not null" json:"owner"`
	// 余额，10^18 定点无符号数
	Balance decimal.Decimal `gorm:"column:balance;type:decimal(40,0);default:0;not null" json:"balance"`
}

// TableName 表名
func (Account) TableName() string { return "ledger_accounts" }

// Debit 扣减余额
func (a *Account) Debit(amount decimal.Decimal) error {
	if a.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Credit 增加余额
func (a *Account) Credit(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
}
