package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	optionapp "github.com/wyfcoding/optionsettlement/internal/option/application"
	optiondomain "github.com/wyfcoding/optionsettlement/internal/option/domain"
	"github.com/wyfcoding/optionsettlement/internal/registry/domain"
	"github.com/wyfcoding/optionsettlement/pkg/cache"
)

// OptionService 登记处对期权协议模块的依赖，由期权应用服务实现
type OptionService interface {
	CreateAgreement(ctx context.Context, cmd optionapp.CreateAgreementCommand) (*optiondomain.Agreement, error)
	AssignHolder(ctx context.Context, agreementID, candidate, caller string) error
	GetAgreement(ctx context.Context, agreementID string) (*optiondomain.Agreement, error)
}

// InfoCache 记录信息读缓存，nil 实现降级为直读
type InfoCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RegistryAppService 登记处应用服务。
// 登记处从不持有资金；所有价值转移都发生在协议内部。
type RegistryAppService struct {
	records    domain.RecordRepository
	options    OptionService
	events     optiondomain.EventPublisher
	infoCache  InfoCache
	logger     *slog.Logger
	registryID string
}

// NewRegistryAppService 创建登记处应用服务
func NewRegistryAppService(
	records domain.RecordRepository,
	options OptionService,
	events optiondomain.EventPublisher,
	infoCache InfoCache,
	logger *slog.Logger,
	registryID string,
) *RegistryAppService {
	return &RegistryAppService{
		records:    records,
		options:    options,
		events:     events,
		infoCache:  infoCache,
		logger:     logger,
		registryID: registryID,
	}
}

// CreateOptionCommand 挂牌命令
type CreateOptionCommand struct {
	UnderlyingAsset string
	StrikeAsset     string
	StrikePrice     decimal.Decimal
	ExpirationTime  time.Time
	ContractSize    decimal.Decimal
}

// CreateOption 挂牌新期权，issuer 为调用方，持有人留空待匹配
func (s *RegistryAppService) CreateOption(ctx context.Context, cmd CreateOptionCommand, caller string) (*domain.Record, error) {
	if caller == "" {
		return nil, fmt.Errorf("issuer identity is required: %w", optiondomain.ErrInvalidParameter)
	}
	// 在实例化协议之前做 fail-fast 参数校验
	if err := optiondomain.ValidateParams(
		cmd.UnderlyingAsset, cmd.StrikeAsset, cmd.StrikePrice,
		cmd.ExpirationTime, cmd.ContractSize, time.Now(),
	); err != nil {
		return nil, err
	}

	agreement, err := s.options.CreateAgreement(ctx, optionapp.CreateAgreementCommand{
		UnderlyingAsset: cmd.UnderlyingAsset,
		StrikeAsset:     cmd.StrikeAsset,
		StrikePrice:     cmd.StrikePrice,
		ExpirationTime:  cmd.ExpirationTime,
		ContractSize:    cmd.ContractSize,
		Issuer:          caller,
		RegistryID:      s.registryID,
	})
	if err != nil {
		return nil, err
	}

	record := &domain.Record{
		Reference: agreement.AgreementID,
		Issuer:    caller,
		Present:   true,
	}
	if err := s.records.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append registry record: %w", err)
	}

	s.logger.InfoContext(ctx, "option listed",
		"reference", record.Reference, "issuer", caller)
	return record, nil
}

// MatchOption 将调用方匹配为未匹配协议的持有人。
// 持有人状态总是从协议现读，不信任缓存，避免部分失败后的漂移。
func (s *RegistryAppService) MatchOption(ctx context.Context, reference, caller string) error {
	if caller == "" {
		return fmt.Errorf("holder identity is required: %w", optiondomain.ErrInvalidParameter)
	}

	record, err := s.records.Get(ctx, reference)
	if err != nil {
		return err
	}
	if !record.Present {
		return fmt.Errorf("record %s: %w", reference, optiondomain.ErrNotFound)
	}

	live, err := s.options.GetAgreement(ctx, reference)
	if err != nil {
		return err
	}
	if live.Holder != "" {
		return fmt.Errorf("agreement %s: %w", reference, optiondomain.ErrAlreadyAssigned)
	}
	if live.State != optiondomain.StateCreated {
		return fmt.Errorf("agreement %s is %s, want CREATED: %w", reference, live.State, optiondomain.ErrInvalidState)
	}

	if err := s.options.AssignHolder(ctx, reference, caller, s.registryID); err != nil {
		return err
	}

	// 缓存的持有人只从协议的权威状态刷新
	live, err = s.options.GetAgreement(ctx, reference)
	if err != nil {
		return err
	}
	if err := s.records.UpdateHolderCached(ctx, reference, live.Holder); err != nil {
		s.logger.ErrorContext(ctx, "failed to refresh cached holder",
			"reference", reference, "error", err)
	}
	s.invalidateInfo(ctx, reference)

	if s.events != nil {
		if err := s.events.Publish(ctx, domain.EventTypeMatched, reference, domain.MatchedEvent{
			Reference:  reference,
			Holder:     live.Holder,
			OccurredAt: time.Now(),
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish match event",
				"reference", reference, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "option matched", "reference", reference, "holder", caller)
	return nil
}

// ListAll 按创建顺序返回全部协议引用
func (s *RegistryAppService) ListAll(ctx context.Context) ([]string, error) {
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(records))
	for _, r := range records {
		if r.Present {
			refs = append(refs, r.Reference)
		}
	}
	return refs, nil
}

// ListMatchable 返回仍可匹配的协议引用（无持有人且状态为 CREATED）。
// 每条记录的协议读取独立进行，单条失败跳过，批量查询绝不向调用方传播局部失败。
func (s *RegistryAppService) ListMatchable(ctx context.Context) ([]string, error) {
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(records))
	for _, r := range records {
		if !r.Present {
			continue
		}
		live, err := s.options.GetAgreement(ctx, r.Reference)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable agreement during scan",
				"reference", r.Reference, "error", err)
			continue
		}
		if live.Holder == "" && live.State == optiondomain.StateCreated {
			refs = append(refs, r.Reference)
		}
	}
	return refs, nil
}

// RecordInfo 登记信息视图
type RecordInfo struct {
	Reference    string    `json:"reference"`
	Issuer       string    `json:"issuer"`
	HolderCached string    `json:"holder_cached,omitempty"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
}

// GetInfo 返回单条登记信息，经 Redis 读缓存
func (s *RegistryAppService) GetInfo(ctx context.Context, reference string) (*RecordInfo, error) {
	if s.infoCache != nil {
		var cached RecordInfo
		if err := s.infoCache.Get(ctx, infoCacheKey(reference), &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "record info cache read failed",
				"reference", reference, "error", err)
		}
	}

	record, err := s.records.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !record.Present {
		return nil, fmt.Errorf("record %s: %w", reference, optiondomain.ErrNotFound)
	}

	info := &RecordInfo{
		Reference:    record.Reference,
		Issuer:       record.Issuer,
		HolderCached: record.HolderCached,
		CreatedAt:    record.CreatedAt,
	}
	if live, err := s.options.GetAgreement(ctx, reference); err == nil {
		info.State = live.State.String()
		info.HolderCached = live.Holder
	}

	if s.infoCache != nil {
		if err := s.infoCache.Set(ctx, infoCacheKey(reference), info, 30*time.Second); err != nil {
			s.logger.WarnContext(ctx, "record info cache write failed",
				"reference", reference, "error", err)
		}
	}
	return info, nil
}

// GetByIssuer 返回某发行方的全部协议引用
func (s *RegistryAppService) GetByIssuer(ctx context.Context, issuer string) ([]string, error) {
	records, err := s.records.ListByIssuer(ctx, issuer)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(records))
	for _, r := range records {
		if r.Present {
			refs = append(refs, r.Reference)
		}
	}
	return refs, nil
}

// RefreshHolder 从协议权威状态刷新缓存的持有人（投影消费者使用）
func (s *RegistryAppService) RefreshHolder(ctx context.Context, reference string) error {
	live, err := s.options.GetAgreement(ctx, reference)
	if err != nil {
		return err
	}
	if err := s.records.UpdateHolderCached(ctx, reference, live.Holder); err != nil {
		return err
	}
	s.invalidateInfo(ctx, reference)
	return nil
}

func (s *RegistryAppService) invalidateInfo(ctx context.Context, reference string) {
	if s.infoCache == nil {
		return
	}
	if err := s.infoCache.Delete(ctx, infoCacheKey(reference)); err != nil {
		s.logger.WarnContext(ctx, "record info cache invalidation failed",
			"reference", reference, "error", err)
	}
}

func infoCacheKey(reference string) string {
	return "registry:info:" + reference
}
