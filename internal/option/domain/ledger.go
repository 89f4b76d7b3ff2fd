package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ledger 外部代币账本的转账原语。
// 账本被视为不可信协作方：可能返回失败，也可能在转账回调中
// 重入本服务，重入由 EntryGuard 拦截。
type Ledger interface {
	// Transfer 在 asset 账本上从 from 向 to 转移 amount，失败返回非 nil 错误
	Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error
}
