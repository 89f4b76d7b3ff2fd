package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionsettlement/internal/option/domain"
)

// OptionAppService 期权协议应用服务。
// 每个公开操作都是一个全有或全无的单元：要么完整提交，要么对外无任何可见效果。
type OptionAppService struct {
	repo   domain.AgreementRepository
	ledger domain.Ledger
	events domain.EventPublisher
	guard  *domain.EntryGuard
	logger *slog.Logger
	now    func() time.Time
}

// NewOptionAppService 创建期权应用服务
func NewOptionAppService(
	repo domain.AgreementRepository,
	ledger domain.Ledger,
	events domain.EventPublisher,
	logger *slog.Logger,
) *OptionAppService {
	return &OptionAppService{
		repo:   repo,
		ledger: ledger,
		events: events,
		guard:  domain.NewEntryGuard(),
		logger: logger,
		now:    time.Now,
	}
}

// CreateAgreementCommand 创建协议命令
type CreateAgreementCommand struct {
	UnderlyingAsset string
	StrikeAsset     string
	StrikePrice     decimal.Decimal
	ExpirationTime  time.Time
	ContractSize    decimal.Decimal
	Holder          string
	Issuer          string
	RegistryID      string
}

// CreateAgreement 创建期权协议，holder 允许为空
func (s *OptionAppService) CreateAgreement(ctx context.Context, cmd CreateAgreementCommand) (*domain.Agreement, error) {
	now := s.now()
	agreement, err := domain.NewAgreement(
		uuid.New().String(),
		cmd.UnderlyingAsset,
		cmd.StrikeAsset,
		cmd.StrikePrice,
		cmd.ExpirationTime,
		cmd.ContractSize,
		cmd.Holder,
		cmd.Issuer,
		cmd.RegistryID,
		now,
	)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, agreement); err != nil {
		return nil, fmt.Errorf("failed to save agreement: %w", err)
	}

	s.publish(ctx, domain.EventTypeCreated, agreement.AgreementID, domain.CreatedEvent{
		AgreementID:     agreement.AgreementID,
		UnderlyingAsset: agreement.UnderlyingAsset,
		StrikeAsset:     agreement.StrikeAsset,
		StrikePrice:     agreement.StrikePrice,
		ContractSize:    agreement.ContractSize,
		ExpirationTime:  agreement.ExpirationTime,
		Issuer:          agreement.Issuer,
		Holder:          agreement.Holder,
		RegistryID:      agreement.RegistryID,
		OccurredAt:      now,
	})

	s.logger.InfoContext(ctx, "agreement created",
		"agreement_id", agreement.AgreementID, "issuer", agreement.Issuer)
	return agreement, nil
}

// AssignHolder 指派持有人，仅登记处身份可调用
func (s *OptionAppService) AssignHolder(ctx context.Context, agreementID, candidate, caller string) error {
	if err := s.guard.Acquire(agreementID); err != nil {
		return err
	}
	defer s.guard.Release(agreementID)

	agreement, err := s.repo.Get(ctx, agreementID)
	if err != nil {
		return err
	}

	if err := agreement.AssignHolder(candidate, caller); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, agreement); err != nil {
		return fmt.Errorf("failed to persist holder assignment: %w", err)
	}

	s.publish(ctx, domain.EventTypeHolderAssigned, agreementID, domain.HolderAssignedEvent{
		AgreementID: agreementID,
		Holder:      candidate,
		OccurredAt:  s.now(),
	})

	s.logger.InfoContext(ctx, "holder assigned", "agreement_id", agreementID, "holder", candidate)
	return nil
}

// PayPremium 支付权利金并激活协议。
// 单腿转账：持有人向发行方支付 amount 的履约资产；转账失败时无任何状态变化。
func (s *OptionAppService) PayPremium(ctx context.Context, agreementID string, amount decimal.Decimal, caller string) error {
	if err := s.guard.Acquire(agreementID); err != nil {
		return err
	}
	defer s.guard.Release(agreementID)

	agreement, err := s.repo.Get(ctx, agreementID)
	if err != nil {
		return err
	}

	if err := agreement.ValidatePremiumPayment(caller, amount); err != nil {
		return err
	}

	if err := s.ledger.Transfer(ctx, agreement.StrikeAsset, agreement.Holder, agreement.Issuer, amount); err != nil {
		return fmt.Errorf("premium transfer failed: %s: %w", err, domain.ErrTransferFailed)
	}

	if err := agreement.Activate(); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, agreement); err != nil {
		return fmt.Errorf("failed to persist activation: %w", err)
	}

	s.publish(ctx, domain.EventTypePremiumPaid, agreementID, domain.PremiumPaidEvent{
		AgreementID: agreementID,
		Payer:       caller,
		Issuer:      agreement.Issuer,
		StrikeAsset: agreement.StrikeAsset,
		Amount:      amount,
		OccurredAt:  s.now(),
	})

	s.logger.InfoContext(ctx, "premium paid",
		"agreement_id", agreementID, "payer", caller, "amount", amount)
	return nil
}

// Exercise 行权。两腿转账作为一个原子单元：
// (a) strikeAmount 的履约资产 持有人 → 发行方
// (b) 合约规模的标的资产 发行方 → 持有人
// 第二腿失败时冲正第一腿，任何一腿的效果都不会单独存续。
func (s *OptionAppService) Exercise(ctx context.Context, agreementID, caller string) error {
	if err := s.guard.Acquire(agreementID); err != nil {
		return err
	}
	defer s.guard.Release(agreementID)

	agreement, err := s.repo.Get(ctx, agreementID)
	if err != nil {
		return err
	}

	if err := agreement.ValidateExercise(caller, s.now()); err != nil {
		return err
	}

	strikeAmount := agreement.StrikeAmount()

	if err := s.ledger.Transfer(ctx, agreement.StrikeAsset, agreement.Holder, agreement.Issuer, strikeAmount); err != nil {
		return fmt.Errorf("strike leg failed: %s: %w", err, domain.ErrTransferFailed)
	}

	if err := s.ledger.Transfer(ctx, agreement.UnderlyingAsset, agreement.Issuer, agreement.Holder, agreement.ContractSize); err != nil {
		// 冲正第一腿，保证没有部分交割
		if rbErr := s.ledger.Transfer(ctx, agreement.StrikeAsset, agreement.Issuer, agreement.Holder, strikeAmount); rbErr != nil {
			s.logger.ErrorContext(ctx, "strike leg reversal failed, manual reconciliation required",
				"agreement_id", agreementID, "amount", strikeAmount, "error", rbErr)
		}
		return fmt.Errorf("underlying leg failed: %s: %w", err, domain.ErrTransferFailed)
	}

	if err := agreement.Exercise(); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, agreement); err != nil {
		return fmt.Errorf("failed to persist exercise: %w", err)
	}

	s.publish(ctx, domain.EventTypeExercised, agreementID, domain.ExercisedEvent{
		AgreementID:     agreementID,
		Holder:          agreement.Holder,
		Issuer:          agreement.Issuer,
		StrikeAsset:     agreement.StrikeAsset,
		StrikeAmount:    strikeAmount,
		UnderlyingAsset: agreement.UnderlyingAsset,
		ContractSize:    agreement.ContractSize,
		OccurredAt:      s.now(),
	})

	s.logger.InfoContext(ctx, "agreement exercised",
		"agreement_id", agreementID, "holder", agreement.Holder, "strike_amount", strikeAmount)
	return nil
}

// MarkExpired 标记过期。对任何调用方开放，只受状态不变式约束；
// 不校验行权窗口是否已过，时间约定由外围应用执行。
func (s *OptionAppService) MarkExpired(ctx context.Context, agreementID, caller string) error {
	if err := s.guard.Acquire(agreementID); err != nil {
		return err
	}
	defer s.guard.Release(agreementID)

	agreement, err := s.repo.Get(ctx, agreementID)
	if err != nil {
		return err
	}

	if err := agreement.MarkExpired(); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, agreement); err != nil {
		return fmt.Errorf("failed to persist expiration: %w", err)
	}

	s.publish(ctx, domain.EventTypeExpired, agreementID, domain.ExpiredEvent{
		AgreementID: agreementID,
		Caller:      caller,
		OccurredAt:  s.now(),
	})

	s.logger.InfoContext(ctx, "agreement expired", "agreement_id", agreementID, "caller", caller)
	return nil
}

// GetAgreement 查询协议
func (s *OptionAppService) GetAgreement(ctx context.Context, agreementID string) (*domain.Agreement, error) {
	return s.repo.Get(ctx, agreementID)
}

// IsExercisable 当前时刻是否可行权
func (s *OptionAppService) IsExercisable(ctx context.Context, agreementID string) (bool, error) {
	agreement, err := s.repo.Get(ctx, agreementID)
	if err != nil {
		return false, err
	}
	return agreement.IsExercisable(s.now()), nil
}

// publish 事件发布失败不回滚已提交的操作，只记录日志
func (s *OptionAppService) publish(ctx context.Context, eventType, key string, event any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, key, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", eventType, "agreement_id", key, "error", err)
	}
}
