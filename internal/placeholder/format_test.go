package placeholder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct{ in, want string }{
		{"0", "0"},
		{"350", "350"},
		{"1234567.49", "1,234,567"},
		{"1234567.5", "1,234,568"},
		{"-2500.5", "-2,501"},
		{"-0.4", "0"},
		{"999.999", "1,000"},
		{"12345678901234567890.4", "12,345,678,901,234,567,890"},
		{"-123456789012345678901.5", "-123,456,789,012,345,678,902"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatAmount(decimal.RequireFromString(tc.in)), tc.in)
	}
}

func TestParseAmount(t *testing.T) {
	v, ok := ParseAmount("1,234,567")
	require.True(t, ok)
	require.True(t, v.Equal(decimal.NewFromInt(1234567)))

	v, ok = ParseAmount("(2,500)")
	require.True(t, ok)
	require.True(t, v.Equal(decimal.NewFromInt(-2500)))

	for _, bad := range []string{"", "June", "n/a"} {
		_, ok := ParseAmount(bad)
		require.False(t, ok, bad)
	}
}
