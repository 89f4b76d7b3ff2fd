package domain

import "context"

// AgreementRepository 协议仓储接口
type AgreementRepository interface {
	// Save 保存新协议
	Save(ctx context.Context, agreement *Agreement) error
	// Update 持久化状态迁移
	Update(ctx context.Context, agreement *Agreement) error
	// Get 根据协议 ID 获取协议，不存在时返回 ErrNotFound
	Get(ctx context.Context, agreementID string) (*Agreement, error)
}
