package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/optionsettlement/internal/option/domain"
)

// AgreementRepo 协议仓储的 MySQL 实现
type AgreementRepo struct {
	db *gorm.DB
}

// NewAgreementRepo 创建协议仓储
func NewAgreementRepo(db *gorm.DB) *AgreementRepo {
	return &AgreementRepo{db: db}
}

// Save 保存新协议
func (r *AgreementRepo) Save(ctx context.Context, agreement *domain.Agreement) error {
	return r.db.WithContext(ctx).Create(agreement).Error
}

// Update 持久化状态迁移
func (r *AgreementRepo) Update(ctx context.Context, agreement *domain.Agreement) error {
	return r.db.WithContext(ctx).Save(agreement).Error
}

// Get 根据协议 ID 获取协议
func (r *AgreementRepo) Get(ctx context.Context, agreementID string) (*domain.Agreement, error) {
	var agreement domain.Agreement
	err := r.db.WithContext(ctx).Where("agreement_id = ?", agreementID).First(&agreement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &agreement, nil
}
