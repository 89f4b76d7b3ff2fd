package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	optiondomain "github.com/wyfcoding/optionsettlement/internal/option/domain"
	"github.com/wyfcoding/optionsettlement/internal/registry/domain"
)

// RecordRepo 登记记录仓储的 MySQL 实现
type RecordRepo struct {
	db *gorm.DB
}

// NewRecordRepo 创建登记记录仓储
func NewRecordRepo(db *gorm.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// Append 追加登记记录，创建顺序由自增主键保证
func (r *RecordRepo) Append(ctx context.Context, record *domain.Record) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Get 按引用查找
func (r *RecordRepo) Get(ctx context.Context, reference string) (*domain.Record, error) {
	var record domain.Record
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("record %s: %w", reference, optiondomain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListAll 按创建顺序返回全部记录
func (r *RecordRepo) ListAll(ctx context.Context) ([]*domain.Record, error) {
	var records []*domain.Record
	err := r.db.WithContext(ctx).Order("id asc").Find(&records).Error
	return records, err
}

// ListByIssuer 按发行方返回记录
func (r *RecordRepo) ListByIssuer(ctx context.Context, issuer string) ([]*domain.Record, error) {
	var records []*domain.Record
	err := r.db.WithContext(ctx).Where("issuer = ?", issuer).Order("id asc").Find(&records).Error
	return records, err
}

// UpdateHolderCached 刷新缓存的持有人
func (r *RecordRepo) UpdateHolderCached(ctx context.Context, reference, holder string) error {
	res := r.db.WithContext(ctx).Model(&domain.Record{}).
		Where("reference = ?", reference).
		Update("holder_cached", holder)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("record %s: %w", reference, optiondomain.ErrNotFound)
	}
	return nil
}
