// 包 domain 期权协议的领域模型
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OptionState 协议状态
type OptionState int8

const (
	// StateCreated 已创建，等待匹配与权利金支付
	StateCreated OptionState = 1
	// StateActive 权利金已付，可在行权窗口内行权
	StateActive OptionState = 2
	// StateExercised 已行权（终态）
	StateExercised OptionState = 3
	// StateExpired 已过期（终态）
	StateExpired OptionState = 4
)

func (s OptionState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateActive:
		return "ACTIVE"
	case StateExercised:
		return "EXERCISED"
	case StateExpired:
		return "EXPIRED"
	}
	return "UNKNOWN"
}

// IsTerminal 是否为终态，终态不再发生任何状态迁移
func (s OptionState) IsTerminal() bool {
	return s == StateExercised || s == StateExpired
}

// ExerciseWindow 行权窗口：到期后固定 10 天内可行权，协议常量而非构造参数
const ExerciseWindow = 10 * 24 * time.Hour

// AmountScale 定点金额比例因子 10^18，行权价单位为每单位标的的履约资产数
var AmountScale = decimal.New(1, 18)

// Agreement 期权协议聚合根
// 每份期权一个实例；状态只能沿 Created → Active → {Exercised|Expired}
// 或 Created → Expired 前进，终态行作为历史永久保留。
type Agreement struct {
	gorm.Model
	// 协议 ID (业务主键)，全局唯一
	AgreementID string `gorm:"column:agreement_id;type:varchar(36);uniqueIndex;not null" json:"agreement_id"`
	// 标的资产在外部账本上的账户标识
	UnderlyingAsset string `gorm:"column:underlying_asset;type:varchar(64);not null" json:"underlying_asset"`
	// 履约资产在外部账本上的账户标识
	StrikeAsset string `gorm:"column:strike_asset;type:varchar(64);not null" json:"strike_asset"`
	// 行权价，10^18 定点无符号数
	StrikePrice decimal.Decimal `gorm:"column:strike_price;type:decimal(40,0);not null" json:"strike_price"`
	// 合约规模，覆盖的标的资产数量，10^18 定点无符号数
	ContractSize decimal.Decimal `gorm:"column:contract_size;type:decimal(40,0);not null" json:"contract_size"`
	// 到期时间
	ExpirationTime time.Time `gorm:"column:expiration_time;index;not null" json:"expiration_time"`
	// 发行方，创建时设定且不可变
	Issuer string `gorm:"column:issuer;type:varchar(64);index;not null" json:"issuer"`
	// 持有人，未匹配时为空，至多写入一次
	Holder string `gorm:"column:holder;type:varchar(64);index" json:"holder"`
	// 所属登记处身份，仅用于授权 AssignHolder 的弱引用
	RegistryID string `gorm:"column:registry_id;type:varchar(64);not null" json:"registry_id"`
	// 状态
	State OptionState `gorm:"column:state;type:tinyint;not null;default:1" json:"state"`
}

// TableName 表名
func (Agreement) TableName() string { return "option_agreements" }

// ValidateParams 校验协议构造参数。登记处在实例化前用它做 fail-fast 校验。
func ValidateParams(
	underlyingAsset, strikeAsset string,
	strikePrice decimal.Decimal,
	expirationTime time.Time,
	contractSize decimal.Decimal,
	now time.Time,
) error {
	if underlyingAsset == "" || strikeAsset == "" {
		return fmt.Errorf("asset identities must be non-empty: %w", ErrInvalidParameter)
	}
	if strikePrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("strike price must be positive: %w", ErrInvalidParameter)
	}
	if contractSize.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("contract size must be positive: %w", ErrInvalidParameter)
	}
	if !expirationTime.After(now) {
		return fmt.Errorf("expiration time must be in the future: %w", ErrInvalidParameter)
	}
	return nil
}

// NewAgreement 创建期权协议，holder 允许为空（未匹配）
func NewAgreement(
	agreementID, underlyingAsset, strikeAsset string,
	strikePrice decimal.Decimal,
	expirationTime time.Time,
	contractSize decimal.Decimal,
	holder, issuer, registryID string,
	now time.Time,
) (*Agreement, error) {
	if agreementID == "" || issuer == "" || registryID == "" {
		return nil, fmt.Errorf("identity parameters must be non-empty: %w", ErrInvalidParameter)
	}
	if err := ValidateParams(underlyingAsset, strikeAsset, strikePrice, expirationTime, contractSize, now); err != nil {
		return nil, err
	}

	return &Agreement{
		AgreementID:     agreementID,
		UnderlyingAsset: underlyingAsset,
		StrikeAsset:     strikeAsset,
		StrikePrice:     strikePrice,
		ContractSize:    contractSize,
		ExpirationTime:  expirationTime,
		Issuer:          issuer,
		Holder:          holder,
		RegistryID:      registryID,
		State:           StateCreated,
	}, nil
}

// AssignHolder 指派持有人，仅登记处可调用，至多成功一次
func (a *Agreement) AssignHolder(candidate, caller string) error {
	if caller != a.RegistryID {
		return fmt.Errorf("only registry %s may assign a holder: %w", a.RegistryID, ErrUnauthorized)
	}
	if candidate == "" {
		return fmt.Errorf("holder candidate must be non-empty: %w", ErrInvalidParameter)
	}
	if a.Holder != "" {
		// 写一次语义：重复指派一律失败，与候选人是否相同无关
		return fmt.Errorf("agreement %s: %w", a.AgreementID, ErrAlreadyAssigned)
	}
	if a.State != StateCreated {
		return fmt.Errorf("agreement %s is %s, want CREATED: %w", a.AgreementID, a.State, ErrInvalidState)
	}
	a.Holder = candidate
	return nil
}

// ValidatePremiumPayment 校验权利金支付的全部前置条件，不产生状态变化
func (a *Agreement) ValidatePremiumPayment(caller string, amount decimal.Decimal) error {
	if caller != a.Holder || a.Holder == "" {
		return fmt.Errorf("only the holder may pay the premium: %w", ErrUnauthorized)
	}
	if a.State != StateCreated {
		return fmt.Errorf("agreement %s is %s, want CREATED: %w", a.AgreementID, a.State, ErrInvalidState)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("premium amount must be positive: %w", ErrInvalidParameter)
	}
	return nil
}

// Activate 权利金到账后激活，一次性操作
func (a *Agreement) Activate() error {
	if a.State != StateCreated {
		return fmt.Errorf("agreement %s is %s, want CREATED: %w", a.AgreementID, a.State, ErrInvalidState)
	}
	a.State = StateActive
	return nil
}

// ValidateExercise 校验行权的调用方、状态与时间窗口，不产生状态变化
func (a *Agreement) ValidateExercise(caller string, at time.Time) error {
	if caller != a.Holder || a.Holder == "" {
		return fmt.Errorf("only the holder may exercise: %w", ErrUnauthorized)
	}
	if a.State != StateActive {
		return fmt.Errorf("agreement %s is %s, want ACTIVE: %w", a.AgreementID, a.State, ErrInvalidState)
	}
	if at.Before(a.ExpirationTime) {
		return fmt.Errorf("exercisable from %s: %w", a.ExpirationTime.Format(time.RFC3339), ErrNotYetExercisable)
	}
	if at.After(a.ExpirationTime.Add(ExerciseWindow)) {
		return fmt.Errorf("exercise window closed at %s: %w",
			a.ExpirationTime.Add(ExerciseWindow).Format(time.RFC3339), ErrExerciseWindowExpired)
	}
	return nil
}

// Exercise 两腿交割完成后置为已行权，一次性操作
func (a *Agreement) Exercise() error {
	if a.State != StateActive {
		return fmt.Errorf("agreement %s is %s, want ACTIVE: %w", a.AgreementID, a.State, ErrInvalidState)
	}
	a.State = StateExercised
	return nil
}

// MarkExpired 标记过期。任何调用方可用，仅受状态不变式约束，
// 不检查行权窗口是否已过——时间约定由外围应用执行。
func (a *Agreement) MarkExpired() error {
	if a.State != StateCreated && a.State != StateActive {
		return fmt.Errorf("agreement %s is %s, want CREATED or ACTIVE: %w", a.AgreementID, a.State, ErrInvalidState)
	}
	a.State = StateExpired
	return nil
}

// IsExercisable 当前时刻是否可行权（纯查询）
func (a *Agreement) IsExercisable(at time.Time) bool {
	return a.State == StateActive &&
		!at.Before(a.ExpirationTime) &&
		!at.After(a.ExpirationTime.Add(ExerciseWindow))
}

// StrikeAmount 行权应付的履约资产数量 = 行权价 * 合约规模 / 10^18。
// 先乘后除保住小于 1 的行权价精度；decimal 的任意精度中间积避免乘法溢出，
// 最后向零截断到整数最小单位。
func (a *Agreement) StrikeAmount() decimal.Decimal {
	return a.StrikePrice.Mul(a.ContractSize).Shift(-18).Floor()
}
