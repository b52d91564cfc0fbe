package placeholder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMapAmountCountsDefaults(t *testing.T) {
	m := NewMap()
	m.SetAmount("A100_CY", decimal.NewFromInt(1500))
	m.Set("{{MONTH}}", "June")

	require.True(t, m.Amount("{{A100_CY}}").Equal(decimal.NewFromInt(1500)))
	require.EqualValues(t, 0, m.Defaulted())

	require.True(t, m.Amount("A999_CY").IsZero())
	require.True(t, m.Amount("MONTH").IsZero())
	require.EqualValues(t, 2, m.Defaulted())

	_, ok := m.Lookup("A999_CY")
	require.False(t, ok)
	require.EqualValues(t, 2, m.Defaulted())
}

func TestMapSetIfAbsentAndSnapshot(t *testing.T) {
	m := NewMap()
	require.True(t, m.SetIfAbsent("X_CY", "1"))
	require.False(t, m.SetIfAbsent("{{X_CY}}", "2"))
	snap := m.Snapshot()
	require.Equal(t, map[string]string{"{{X_CY}}": "1"}, snap)
	snap["{{Y}}"] = "y"
	require.Equal(t, 1, m.Len())
}
