package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAgreement(t *testing.T) *Agreement {
	t.Helper()
	now := time.Now()
	a, err := NewAgreement(
		"agr-1", "TOKEN-UND", "TOKEN-STR",
		decimal.New(100, 18), now.Add(24*time.Hour), decimal.New(1, 18),
		"", "issuer-1", "registry-1", now,
	)
	require.NoError(t, err)
	return a
}

func TestNewAgreement_Defaults(t *testing.T) {
	a := validAgreement(t)

	assert.Equal(t, StateCreated, a.State)
	assert.Empty(t, a.Holder)
	assert.Equal(t, "issuer-1", a.Issuer)
	assert.Equal(t, "registry-1", a.RegistryID)
}

func TestNewAgreement_WithHolder(t *testing.T) {
	now := time.Now()
	a, err := NewAgreement(
		"agr-2", "TOKEN-UND", "TOKEN-STR",
		decimal.New(100, 18), now.Add(time.Hour), decimal.New(1, 18),
		"holder-1", "issuer-1", "registry-1", now,
	)
	require.NoError(t, err)
	assert.Equal(t, "holder-1", a.Holder)
	assert.Equal(t, StateCreated, a.State)
}

func TestNewAgreement_InvalidParameters(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		fn   func() (*Agreement, error)
	}{
		{"zero strike price", func() (*Agreement, error) {
			return NewAgreement("a", "u", "s", decimal.Zero, future, decimal.New(1, 18), "", "i", "r", now)
		}},
		{"negative strike price", func() (*Agreement, error) {
			return NewAgreement("a", "u", "s", decimal.New(-1, 18), future, decimal.New(1, 18), "", "i", "r", now)
		}},
		{"zero contract size", func() (*Agreement, error) {
			return NewAgreement("a", "u", "s", decimal.New(1, 18), future, decimal.Zero, "", "i", "r", now)
		}},
		{"expiration in the past", func() (*Agreement, error) {
			return NewAgreement("a", "u", "s", decimal.New(1, 18), now.Add(-time.Second), decimal.New(1, 18), "", "i", "r", now)
		}},
		{"expiration equals now", func() (*Agreement, error) {
			return NewAgreement("a", "u", "s", decimal.New(1, 18), now, decimal.New(1, 18), "", "i", "r", now)
		}},
		{"empty underlying asset", func() (*Agreement, error) {
			return NewAgreement("a", "", "s", decimal.New(1, 18), future, decimal.New(1, 18), "", "i", "r", now)
		}},
		{"empty strike asset", func() (*Agreement, error) {
			return NewAgreement("a", "u", "", decimal.New(1, 18), future, decimal.New(1, 18), "", "i", "r", now)
		}},
		{"empty issuer", func() (*Agreement, error) {
			return NewAgreement("a", "u", "s", decimal.New(1, 18), future, decimal.New(1, 18), "", "", "r", now)
		}},
		{"empty registry", func() (*Agreement, error) {
			return NewAgreement("a", "u", "s", decimal.New(1, 18), future, decimal.New(1, 18), "", "i", "", now)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestAssignHolder(t *testing.T) {
	a := validAgreement(t)

	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))
	assert.Equal(t, "holder-1", a.Holder)
	assert.Equal(t, StateCreated, a.State)
}

func TestAssignHolder_WrongCaller(t *testing.T) {
	a := validAgreement(t)

	err := a.AssignHolder("holder-1", "not-the-registry")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, a.Holder)
}

func TestAssignHolder_EmptyCandidate(t *testing.T) {
	a := validAgreement(t)

	err := a.AssignHolder("", "registry-1")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestAssignHolder_WriteOnce(t *testing.T) {
	a := validAgreement(t)
	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))

	// 重复指派一律失败，候选人相同也不例外
	err := a.AssignHolder("holder-1", "registry-1")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)

	err = a.AssignHolder("holder-2", "registry-1")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)

	assert.Equal(t, "holder-1", a.Holder)
}

func TestAssignHolder_AfterActivation(t *testing.T) {
	a := validAgreement(t)
	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))
	require.NoError(t, a.Activate())

	err := a.AssignHolder("holder-2", "registry-1")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
}

func TestValidatePremiumPayment(t *testing.T) {
	a := validAgreement(t)
	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))

	assert.NoError(t, a.ValidatePremiumPayment("holder-1", decimal.New(5, 18)))
	assert.ErrorIs(t, a.ValidatePremiumPayment("issuer-1", decimal.New(5, 18)), ErrUnauthorized)
	assert.ErrorIs(t, a.ValidatePremiumPayment("holder-1", decimal.Zero), ErrInvalidParameter)
	assert.ErrorIs(t, a.ValidatePremiumPayment("holder-1", decimal.New(-5, 18)), ErrInvalidParameter)
}

func TestValidatePremiumPayment_NoHolder(t *testing.T) {
	a := validAgreement(t)

	// 未匹配的协议没有任何合法的付款人，空调用方也不行
	assert.ErrorIs(t, a.ValidatePremiumPayment("", decimal.New(5, 18)), ErrUnauthorized)
	assert.ErrorIs(t, a.ValidatePremiumPayment("someone", decimal.New(5, 18)), ErrUnauthorized)
}

func TestActivate_OneShot(t *testing.T) {
	a := validAgreement(t)
	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))

	require.NoError(t, a.Activate())
	assert.Equal(t, StateActive, a.State)

	assert.ErrorIs(t, a.Activate(), ErrInvalidState)
	assert.ErrorIs(t, a.ValidatePremiumPayment("holder-1", decimal.New(5, 18)), ErrInvalidState)
}

func TestValidateExercise_WindowBoundaries(t *testing.T) {
	a := validAgreement(t)
	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))
	require.NoError(t, a.Activate())

	exp := a.ExpirationTime

	assert.ErrorIs(t, a.ValidateExercise("holder-1", exp.Add(-time.Second)), ErrNotYetExercisable)
	assert.NoError(t, a.ValidateExercise("holder-1", exp))
	assert.NoError(t, a.ValidateExercise("holder-1", exp.Add(ExerciseWindow)))
	assert.ErrorIs(t, a.ValidateExercise("holder-1", exp.Add(ExerciseWindow+time.Second)), ErrExerciseWindowExpired)
}

func TestValidateExercise_Preconditions(t *testing.T) {
	a := validAgreement(t)
	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))

	// 尚未激活
	assert.ErrorIs(t, a.ValidateExercise("holder-1", a.ExpirationTime), ErrInvalidState)

	require.NoError(t, a.Activate())
	assert.ErrorIs(t, a.ValidateExercise("issuer-1", a.ExpirationTime), ErrUnauthorized)
}

func TestExercise_OneShot(t *testing.T) {
	a := validAgreement(t)
	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))
	require.NoError(t, a.Activate())

	require.NoError(t, a.Exercise())
	assert.Equal(t, StateExercised, a.State)
	assert.ErrorIs(t, a.Exercise(), ErrInvalidState)
}

func TestMarkExpired(t *testing.T) {
	t.Run("from created", func(t *testing.T) {
		a := validAgreement(t)
		require.NoError(t, a.MarkExpired())
		assert.Equal(t, StateExpired, a.State)
	})

	t.Run("from active", func(t *testing.T) {
		a := validAgreement(t)
		require.NoError(t, a.AssignHolder("holder-1", "registry-1"))
		require.NoError(t, a.Activate())
		require.NoError(t, a.MarkExpired())
		assert.Equal(t, StateExpired, a.State)
	})

	t.Run("terminal states rejected", func(t *testing.T) {
		a := validAgreement(t)
		require.NoError(t, a.MarkExpired())
		assert.ErrorIs(t, a.MarkExpired(), ErrInvalidState)

		b := validAgreement(t)
		require.NoError(t, b.AssignHolder("holder-1", "registry-1"))
		require.NoError(t, b.Activate())
		require.NoError(t, b.Exercise())
		assert.ErrorIs(t, b.MarkExpired(), ErrInvalidState)
	})
}

func TestIsExercisable(t *testing.T) {
	a := validAgreement(t)
	exp := a.ExpirationTime

	assert.False(t, a.IsExercisable(exp), "created agreement is not exercisable")

	require.NoError(t, a.AssignHolder("holder-1", "registry-1"))
	require.NoError(t, a.Activate())

	assert.False(t, a.IsExercisable(exp.Add(-time.Second)))
	assert.True(t, a.IsExercisable(exp))
	assert.True(t, a.IsExercisable(exp.Add(ExerciseWindow)))
	assert.False(t, a.IsExercisable(exp.Add(ExerciseWindow+time.Second)))
}

func TestStrikeAmount(t *testing.T) {
	now := time.Now()

	// 100·10^18 行权价 × 1·10^18 规模 ⇒ 100·10^18 履约资产
	a, err := NewAgreement("a", "u", "s",
		decimal.New(100, 18), now.Add(time.Hour), decimal.New(1, 18),
		"", "i", "r", now)
	require.NoError(t, err)
	assert.True(t, decimal.New(100, 18).Equal(a.StrikeAmount()),
		"got %s", a.StrikeAmount())
}

func TestStrikeAmount_SubUnitStrike(t *testing.T) {
	now := time.Now()

	// 行权价 0.5（5·10^17）：先乘后除保留小数行权价的精度
	a, err := NewAgreement("a", "u", "s",
		decimal.New(5, 17), now.Add(time.Hour), decimal.New(3, 18),
		"", "i", "r", now)
	require.NoError(t, err)
	assert.True(t, decimal.New(15, 17).Equal(a.StrikeAmount()),
		"got %s", a.StrikeAmount())
}

func TestStrikeAmount_TruncatesTowardZero(t *testing.T) {
	now := time.Now()

	// 1 × 1（最小单位）⇒ 10^-18 不足一个最小单位，截断为 0
	a, err := NewAgreement("a", "u", "s",
		decimal.NewFromInt(1), now.Add(time.Hour), decimal.NewFromInt(1),
		"", "i", "r", now)
	require.NoError(t, err)
	assert.True(t, a.StrikeAmount().IsZero(), "got %s", a.StrikeAmount())
}

func TestStrikeAmount_LargeOperands(t *testing.T) {
	now := time.Now()

	// 远超 64 位的乘积不得回绕
	huge := decimal.New(1, 30) // 10^30
	a, err := NewAgreement("a", "u", "s",
		huge, now.Add(time.Hour), huge,
		"", "i", "r", now)
	require.NoError(t, err)
	assert.True(t, decimal.New(1, 42).Equal(a.StrikeAmount()),
		"got %s", a.StrikeAmount())
}

func TestOptionState_String(t *testing.T) {
	assert.Equal(t, "CREATED", StateCreated.String())
	assert.Equal(t, "ACTIVE", StateActive.String())
	assert.Equal(t, "EXERCISED", StateExercised.String())
	assert.Equal(t, "EXPIRED", StateExpired.String())
	assert.Equal(t, "UNKNOWN", OptionState(0).String())
}

func TestOptionState_IsTerminal(t *testing.T) {
	assert.False(t, StateCreated.IsTerminal())
	assert.False(t, StateActive.IsTerminal())
	assert.True(t, StateExercised.IsTerminal())
	assert.True(t, StateExpired.IsTerminal())
}
