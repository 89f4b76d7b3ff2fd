package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryGuard_NestedAcquireFails(t *testing.T) {
	g := NewEntryGuard()

	require.NoError(t, g.Acquire("agr-1"))
	assert.ErrorIs(t, g.Acquire("agr-1"), ErrReentrantCall)

	// 其他协议不受影响
	assert.NoError(t, g.Acquire("agr-2"))
}

func TestEntryGuard_ReleaseAllowsReacquire(t *testing.T) {
	g := NewEntryGuard()

	require.NoError(t, g.Acquire("agr-1"))
	g.Release("agr-1")
	assert.NoError(t, g.Acquire("agr-1"))
}
