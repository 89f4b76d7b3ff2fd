package domain

import (
	"fmt"
	"sync"
)

// EntryGuard 按协议粒度的重入保护。
// 每个状态变更操作开始时 Acquire，正常结束时 Release；
// 持有期间对同一协议的嵌套调用立即失败，绝不排队等待。
type EntryGuard struct {
	inFlight sync.Map
}

// NewEntryGuard 创建重入保护
func NewEntryGuard() *EntryGuard {
	return &EntryGuard{}
}

// Acquire 获取协议的操作权，已被持有时返回 ErrReentrantCall
func (g *EntryGuard) Acquire(agreementID string) error {
	if _, held := g.inFlight.LoadOrStore(agreementID, struct{}{}); held {
		return fmt.Errorf("agreement %s operation in flight: %w", agreementID, ErrReentrantCall)
	}
	return nil
}

// Release 释放操作权
func (g *EntryGuard) Release(agreementID string) {
	g.inFlight.Delete(agreementID)
}
