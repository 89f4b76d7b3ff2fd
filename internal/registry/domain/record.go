// 包 domain 期权登记处的领域模型
package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Record 登记记录。登记处独占记录集合及其二级索引；
// HolderCached 只是读取便利，权威的持有人状态在协议上。
type Record struct {
	gorm.Model
	// 协议引用（业务主键）
	Reference string `gorm:"column:reference;type:varchar(36);uniqueIndex;not null" json:"reference"`
	// 发行方
	Issuer string `gorm:"column:issuer;type:varchar(64);index;not null" json:"issuer"`
	// 缓存的持有人，可能滞后于协议本身
	HolderCached string `gorm:"column:holder_cached;type:varchar(64)" json:"holder_cached"`
	// 记录是否有效
	Present bool `gorm:"column:present;not null;default:true" json:"present"`
}

// TableName 表名
func (Record) TableName() string { return "registry_records" }

// RecordRepository 登记记录仓储接口。
// 创建顺序由自增主键保证；按引用查找不存在时返回 ErrNotFound，
// 绝不以零值位置充当"未找到"。
type RecordRepository interface {
	// Append 追加登记记录
	Append(ctx context.Context, record *Record) error
	// Get 按引用查找
	Get(ctx context.Context, reference string) (*Record, error)
	// ListAll 按创建顺序返回全部记录
	ListAll(ctx context.Context) ([]*Record, error)
	// ListByIssuer 按发行方返回记录
	ListByIssuer(ctx context.Context, issuer string) ([]*Record, error)
	// UpdateHolderCached 刷新缓存的持有人
	UpdateHolderCached(ctx context.Context, reference, holder string) error
}

// MatchedEvent 匹配事件
type MatchedEvent struct {
	Reference  string    `json:"reference"`
	Holder     string    `json:"holder"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventTypeMatched 匹配事件类型
const EventTypeMatched = "registry.option_matched"
