package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// 事件类型，外部索引方依赖事件流即可重建协议状态
const (
	EventTypeCreated        = "option.created"
	EventTypeHolderAssigned = "option.holder_assigned"
	EventTypePremiumPaid    = "option.premium_paid"
	EventTypeExercised      = "option.exercised"
	EventTypeExpired        = "option.expired"
)

// EventPublisher 领域事件发布接口
type EventPublisher interface {
	// Publish 发布事件，key 用于分区（按协议 ID）
	Publish(ctx context.Context, eventType, key string, event any) error
}

// CreatedEvent 协议创建事件
type CreatedEvent struct {
	AgreementID     string          `json:"agreement_id"`
	UnderlyingAsset string          `json:"underlying_asset"`
	StrikeAsset     string          `json:"strike_asset"`
	StrikePrice     decimal.Decimal `json:"strike_price"`
	ContractSize    decimal.Decimal `json:"contract_size"`
	ExpirationTime  time.Time       `json:"expiration_time"`
	Issuer          string          `json:"issuer"`
	Holder          string          `json:"holder,omitempty"`
	RegistryID      string          `json:"registry_id"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// HolderAssignedEvent 持有人指派事件
type HolderAssignedEvent struct {
	AgreementID string    `json:"agreement_id"`
	Holder      string    `json:"holder"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PremiumPaidEvent 权利金支付事件
type PremiumPaidEvent struct {
	AgreementID string          `json:"agreement_id"`
	Payer       string          `json:"payer"`
	Issuer      string          `json:"issuer"`
	StrikeAsset string          `json:"strike_asset"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// ExercisedEvent 行权事件
type ExercisedEvent struct {
	AgreementID     string          `json:"agreement_id"`
	Holder          string          `json:"holder"`
	Issuer          string          `json:"issuer"`
	StrikeAsset     string          `json:"strike_asset"`
	StrikeAmount    decimal.Decimal `json:"strike_amount"`
	UnderlyingAsset string          `json:"underlying_asset"`
	ContractSize    decimal.Decimal `json:"contract_size"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// ExpiredEvent 过期事件，记录触发过期的调用方
type ExpiredEvent struct {
	AgreementID string    `json:"agreement_id"`
	Caller      string    `json:"caller"`
	OccurredAt  time.Time `json:"occurred_at"`
}
