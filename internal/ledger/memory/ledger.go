// 包 memory 提供内存托管账本，用于测试与本地运行。
// 支持注入转账失败与转账回调，以模拟不可信的外部账本。
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionsettlement/internal/ledger/domain"
)

// Ledger 内存托管账本
type Ledger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal

	// FailNext 为 true 时下一次 Transfer 返回失败后复位
	failNext bool
	// failMatcher 非 nil 时对匹配的转账返回失败
	failMatcher func(asset, from, to string) bool
	// onTransfer 非 nil 时在余额变更前调用，用于模拟账本回调重入
	onTransfer func(ctx context.Context, asset, from, to string, amount decimal.Decimal)
}

// New 创建内存账本
func New() *Ledger {
	return &Ledger{balances: make(map[string]decimal.Decimal)}
}

func key(asset, owner string) string {
	return asset + "/" + owner
}

// Deposit 向账户入金
func (l *Ledger) Deposit(asset, owner string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key(asset, owner)] = l.balances[key(asset, owner)].Add(amount)
}

// Balance 查询余额
func (l *Ledger) Balance(asset, owner string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key(asset, owner)]
}

// FailNextTransfer 使下一次转账失败
func (l *Ledger) FailNextTransfer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = true
}

// FailTransfersMatching 使匹配的转账全部失败
func (l *Ledger) FailTransfersMatching(matcher func(asset, from, to string) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failMatcher = matcher
}

// OnTransfer 注册转账回调，在余额变更前触发
func (l *Ledger) OnTransfer(fn func(ctx context.Context, asset, from, to string, amount decimal.Decimal)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTransfer = fn
}

// Transfer 在 asset 账本上从 from 向 to 转移 amount
func (l *Ledger) Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error {
	l.mu.Lock()
	if l.failNext {
		l.failNext = false
		l.mu.Unlock()
		return fmt.Errorf("transfer rejected by ledger")
	}
	if l.failMatcher != nil && l.failMatcher(asset, from, to) {
		l.mu.Unlock()
		return fmt.Errorf("transfer rejected by ledger")
	}
	callback := l.onTransfer
	l.mu.Unlock()

	// 回调在锁外执行：不可信账本可能借此重入结算服务
	if callback != nil {
		callback(ctx, asset, from, to, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[key(asset, from)]
	if balance.LessThan(amount) {
		return fmt.Errorf("%s/%s: %w", asset, from, domain.ErrInsufficientBalance)
	}
	l.balances[key(asset, from)] = balance.Sub(amount)
	l.balances[key(asset, to)] = l.balances[key(asset, to)].Add(amount)
	return nil
}
