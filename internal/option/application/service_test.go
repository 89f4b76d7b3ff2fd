package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgermemory "github.com/wyfcoding/optionsettlement/internal/ledger/memory"
	"github.com/wyfcoding/optionsettlement/internal/option/domain"
)

// memoryRepo 内存协议仓储，读写都走副本以模拟数据库语义
type memoryRepo struct {
	mu         sync.Mutex
	agreements map[string]*domain.Agreement
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{agreements: make(map[string]*domain.Agreement)}
}

func (r *memoryRepo) Save(ctx context.Context, a *domain.Agreement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.agreements[a.AgreementID] = &cp
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, a *domain.Agreement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agreements[a.AgreementID]; !ok {
		return fmt.Errorf("agreement %s: %w", a.AgreementID, domain.ErrNotFound)
	}
	cp := *a
	r.agreements[a.AgreementID] = &cp
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, agreementID string) (*domain.Agreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agreements[agreementID]
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// capturePublisher 记录发布的事件
type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturePublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fixture struct {
	svc    *OptionAppService
	repo   *memoryRepo
	ledger *ledgermemory.Ledger
	events *capturePublisher
	nowVal time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   newMemoryRepo(),
		ledger: ledgermemory.New(),
		events: &capturePublisher{},
		nowVal: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewOptionAppService(f.repo, f.ledger, f.events, slog.Default())
	f.svc.now = func() time.Time { return f.nowVal }
	return f
}

const (
	undAsset = "TOKEN-UND"
	strAsset = "TOKEN-STR"
	issuer   = "issuer-1"
	holder   = "holder-1"
	registry = "registry-1"
)

// createMatched 创建协议并指派持有人，到期时间为当前注入时刻 +24h
func (f *fixture) createMatched(t *testing.T) *domain.Agreement {
	t.Helper()
	a, err := f.svc.CreateAgreement(context.Background(), CreateAgreementCommand{
		UnderlyingAsset: undAsset,
		StrikeAsset:     strAsset,
		StrikePrice:     decimal.New(100, 18),
		ExpirationTime:  f.nowVal.Add(24 * time.Hour),
		ContractSize:    decimal.New(1, 18),
		Issuer:          issuer,
		RegistryID:      registry,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.AssignHolder(context.Background(), a.AgreementID, holder, registry))
	return a
}

// createActive 创建、匹配并支付权利金
func (f *fixture) createActive(t *testing.T, premium decimal.Decimal) *domain.Agreement {
	t.Helper()
	a := f.createMatched(t)
	require.NoError(t, f.svc.PayPremium(context.Background(), a.AgreementID, premium, holder))
	return a
}

func TestCreateAgreement_Defaults(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.CreateAgreement(context.Background(), CreateAgreementCommand{
		UnderlyingAsset: undAsset,
		StrikeAsset:     strAsset,
		StrikePrice:     decimal.New(100, 18),
		ExpirationTime:  f.nowVal.Add(time.Hour),
		ContractSize:    decimal.New(1, 18),
		Issuer:          issuer,
		RegistryID:      registry,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.AgreementID)
	assert.Equal(t, domain.StateCreated, a.State)
	assert.Empty(t, a.Holder)
	assert.Equal(t, []string{domain.EventTypeCreated}, f.events.types())

	stored, err := f.repo.Get(context.Background(), a.AgreementID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCreated, stored.State)
}

func TestCreateAgreement_InvalidParameter(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAgreement(context.Background(), CreateAgreementCommand{
		UnderlyingAsset: undAsset,
		StrikeAsset:     strAsset,
		StrikePrice:     decimal.Zero,
		ExpirationTime:  f.nowVal.Add(time.Hour),
		ContractSize:    decimal.New(1, 18),
		Issuer:          issuer,
		RegistryID:      registry,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestAssignHolder_Unauthorized(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.CreateAgreement(context.Background(), CreateAgreementCommand{
		UnderlyingAsset: undAsset,
		StrikeAsset:     strAsset,
		StrikePrice:     decimal.New(100, 18),
		ExpirationTime:  f.nowVal.Add(time.Hour),
		ContractSize:    decimal.New(1, 18),
		Issuer:          issuer,
		RegistryID:      registry,
	})
	require.NoError(t, err)

	err = f.svc.AssignHolder(context.Background(), a.AgreementID, holder, "impostor")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	stored, _ := f.repo.Get(context.Background(), a.AgreementID)
	assert.Empty(t, stored.Holder)
}

func TestAssignHolder_WriteOnce(t *testing.T) {
	f := newFixture(t)
	a := f.createMatched(t)

	err := f.svc.AssignHolder(context.Background(), a.AgreementID, holder, registry)
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)

	err = f.svc.AssignHolder(context.Background(), a.AgreementID, "holder-2", registry)
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)

	stored, _ := f.repo.Get(context.Background(), a.AgreementID)
	assert.Equal(t, holder, stored.Holder)
}

func TestPayPremium_MovesBalancesAndActivates(t *testing.T) {
	f := newFixture(t)
	a := f.createMatched(t)

	premium := decimal.New(5, 18)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))

	require.NoError(t, f.svc.PayPremium(context.Background(), a.AgreementID, premium, holder))

	assert.True(t, decimal.New(995, 18).Equal(f.ledger.Balance(strAsset, holder)))
	assert.True(t, premium.Equal(f.ledger.Balance(strAsset, issuer)))

	stored, _ := f.repo.Get(context.Background(), a.AgreementID)
	assert.Equal(t, domain.StateActive, stored.State)
	assert.Contains(t, f.events.types(), domain.EventTypePremiumPaid)
}

func TestPayPremium_SecondCallNoEffect(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))
	a := f.createActive(t, decimal.New(5, 18))

	holderBefore := f.ledger.Balance(strAsset, holder)
	issuerBefore := f.ledger.Balance(strAsset, issuer)

	err := f.svc.PayPremium(context.Background(), a.AgreementID, decimal.New(5, 18), holder)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	assert.True(t, holderBefore.Equal(f.ledger.Balance(strAsset, holder)))
	assert.True(t, issuerBefore.Equal(f.ledger.Balance(strAsset, issuer)))
}

func TestPayPremium_WrongCaller(t *testing.T) {
	f := newFixture(t)
	a := f.createMatched(t)

	err := f.svc.PayPremium(context.Background(), a.AgreementID, decimal.New(5, 18), issuer)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPayPremium_TransferFailure_NoStateChange(t *testing.T) {
	f := newFixture(t)
	a := f.createMatched(t)

	// 持有人没有入金，转账会因余额不足失败
	err := f.svc.PayPremium(context.Background(), a.AgreementID, decimal.New(5, 18), holder)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	stored, _ := f.repo.Get(context.Background(), a.AgreementID)
	assert.Equal(t, domain.StateCreated, stored.State)
	assert.NotContains(t, f.events.types(), domain.EventTypePremiumPaid)
}

func TestExercise_WindowBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		offset  time.Duration
		wantErr error
	}{
		{"one second before expiration", -time.Second, domain.ErrNotYetExercisable},
		{"at expiration", 0, nil},
		{"at window end", domain.ExerciseWindow, nil},
		{"one second past window", domain.ExerciseWindow + time.Second, domain.ErrExerciseWindowExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))
			f.ledger.Deposit(undAsset, issuer, decimal.New(10, 18))
			a := f.createActive(t, decimal.New(5, 18))

			f.nowVal = a.ExpirationTime.Add(tt.offset)
			err := f.svc.Exercise(context.Background(), a.AgreementID, holder)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
				stored, _ := f.repo.Get(context.Background(), a.AgreementID)
				assert.Equal(t, domain.StateActive, stored.State)
			}
		})
	}
}

func TestExercise_SettlesBothLegs(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))
	f.ledger.Deposit(undAsset, issuer, decimal.New(10, 18))

	// 行权价 100·10^18，规模 1·10^18 ⇒ 履约腿恰好 100·10^18，标的腿恰好 1·10^18
	a := f.createActive(t, decimal.New(5, 18))
	f.nowVal = a.ExpirationTime

	holderStrikeBefore := f.ledger.Balance(strAsset, holder)
	issuerStrikeBefore := f.ledger.Balance(strAsset, issuer)

	require.NoError(t, f.svc.Exercise(context.Background(), a.AgreementID, holder))

	assert.True(t, holderStrikeBefore.Sub(decimal.New(100, 18)).Equal(f.ledger.Balance(strAsset, holder)))
	assert.True(t, issuerStrikeBefore.Add(decimal.New(100, 18)).Equal(f.ledger.Balance(strAsset, issuer)))
	assert.True(t, decimal.New(1, 18).Equal(f.ledger.Balance(undAsset, holder)))
	assert.True(t, decimal.New(9, 18).Equal(f.ledger.Balance(undAsset, issuer)))

	stored, _ := f.repo.Get(context.Background(), a.AgreementID)
	assert.Equal(t, domain.StateExercised, stored.State)
	assert.Contains(t, f.events.types(), domain.EventTypeExercised)

	// 一次性操作
	err := f.svc.Exercise(context.Background(), a.AgreementID, holder)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestExercise_SecondLegFails_FirstLegReversed(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))
	// 发行方没有标的资产，第二腿必败
	a := f.createActive(t, decimal.New(5, 18))
	f.nowVal = a.ExpirationTime

	holderBefore := f.ledger.Balance(strAsset, holder)
	issuerBefore := f.ledger.Balance(strAsset, issuer)

	err := f.svc.Exercise(context.Background(), a.AgreementID, holder)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	// 第一腿已冲正，余额与行权前一致
	assert.True(t, holderBefore.Equal(f.ledger.Balance(strAsset, holder)))
	assert.True(t, issuerBefore.Equal(f.ledger.Balance(strAsset, issuer)))
	assert.True(t, f.ledger.Balance(undAsset, holder).IsZero())

	stored, _ := f.repo.Get(context.Background(), a.AgreementID)
	assert.Equal(t, domain.StateActive, stored.State)
	assert.NotContains(t, f.events.types(), domain.EventTypeExercised)
}

func TestExercise_FirstLegFails_NoEffect(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(undAsset, issuer, decimal.New(10, 18))
	// 持有人没有履约资产，第一腿必败
	f.ledger.Deposit(strAsset, holder, decimal.New(5, 18))
	a := f.createActive(t, decimal.New(5, 18))
	f.nowVal = a.ExpirationTime

	err := f.svc.Exercise(context.Background(), a.AgreementID, holder)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	assert.True(t, f.ledger.Balance(undAsset, holder).IsZero())
	stored, _ := f.repo.Get(context.Background(), a.AgreementID)
	assert.Equal(t, domain.StateActive, stored.State)
}

func TestExercise_ReentrantCallbackRejected(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))
	f.ledger.Deposit(undAsset, issuer, decimal.New(10, 18))
	a := f.createActive(t, decimal.New(5, 18))
	f.nowVal = a.ExpirationTime

	var nestedErrs []error
	f.ledger.OnTransfer(func(ctx context.Context, asset, from, to string, amount decimal.Decimal) {
		// 不可信账本在转账回调里重入同一协议
		nestedErrs = append(nestedErrs, f.svc.Exercise(ctx, a.AgreementID, holder))
	})

	require.NoError(t, f.svc.Exercise(context.Background(), a.AgreementID, holder))

	require.NotEmpty(t, nestedErrs)
	for _, err := range nestedErrs {
		assert.ErrorIs(t, err, domain.ErrReentrantCall)
	}

	// 外层操作正常完成，余额只变动一次
	assert.True(t, decimal.New(1, 18).Equal(f.ledger.Balance(undAsset, holder)))
	stored, _ := f.repo.Get(context.Background(), a.AgreementID)
	assert.Equal(t, domain.StateExercised, stored.State)
}

func TestPayPremium_ReentrantCallbackRejected(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))
	a := f.createMatched(t)

	var nestedErr error
	f.ledger.OnTransfer(func(ctx context.Context, asset, from, to string, amount decimal.Decimal) {
		nestedErr = f.svc.PayPremium(ctx, a.AgreementID, decimal.New(5, 18), holder)
	})

	require.NoError(t, f.svc.PayPremium(context.Background(), a.AgreementID, decimal.New(5, 18), holder))

	assert.ErrorIs(t, nestedErr, domain.ErrReentrantCall)
	// 嵌套调用没有留下任何痕迹：只扣了一次权利金
	assert.True(t, decimal.New(995, 18).Equal(f.ledger.Balance(strAsset, holder)))
}

func TestMarkExpired_AnyCallerAnyTime(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))

	t.Run("from created", func(t *testing.T) {
		a := f.createMatched(t)
		require.NoError(t, f.svc.MarkExpired(context.Background(), a.AgreementID, "random-stranger"))
		stored, _ := f.repo.Get(context.Background(), a.AgreementID)
		assert.Equal(t, domain.StateExpired, stored.State)
	})

	t.Run("from active before expiration", func(t *testing.T) {
		// 状态门允许在行权窗口开启前就标记过期，时间约定由外围应用执行
		a := f.createActive(t, decimal.New(5, 18))
		require.NoError(t, f.svc.MarkExpired(context.Background(), a.AgreementID, "random-stranger"))
		stored, _ := f.repo.Get(context.Background(), a.AgreementID)
		assert.Equal(t, domain.StateExpired, stored.State)
	})

	t.Run("terminal rejected", func(t *testing.T) {
		a := f.createMatched(t)
		require.NoError(t, f.svc.MarkExpired(context.Background(), a.AgreementID, "anyone"))
		err := f.svc.MarkExpired(context.Background(), a.AgreementID, "anyone")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestExercise_LoserOfExpiryRaceSeesInvalidState(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))
	f.ledger.Deposit(undAsset, issuer, decimal.New(10, 18))
	a := f.createActive(t, decimal.New(5, 18))
	f.nowVal = a.ExpirationTime

	// 竞争方先提交了过期标记，行权方观察到 InvalidState，属正常结果
	require.NoError(t, f.svc.MarkExpired(context.Background(), a.AgreementID, "competitor"))
	err := f.svc.Exercise(context.Background(), a.AgreementID, holder)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestIsExercisable(t *testing.T) {
	f := newFixture(t)
	f.ledger.Deposit(strAsset, holder, decimal.New(1000, 18))
	a := f.createActive(t, decimal.New(5, 18))

	ok, err := f.svc.IsExercisable(context.Background(), a.AgreementID)
	require.NoError(t, err)
	assert.False(t, ok)

	f.nowVal = a.ExpirationTime.Add(time.Hour)
	ok, err = f.svc.IsExercisable(context.Background(), a.AgreementID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetAgreement_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetAgreement(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
