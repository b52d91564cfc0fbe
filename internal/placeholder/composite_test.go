package placeholder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finreport/internal/ledger"
)

func TestParseCompositeKeyAnchorsSegments(t *testing.T) {
	key, ok := ParseCompositeKey("A11101-M-H-100-0-HQ-HQ-062024", CompositeLayout{})
	require.True(t, ok)
	require.Equal(t, "A11101", key.Account)
	require.Equal(t, "M-H-100-0", key.SubAccount)
	require.Equal(t, "HQ", key.Branch)
	require.Equal(t, "HQ", key.Organization)
	require.Equal(t, "062024", key.Period)

	key, ok = ParseCompositeKey("A1-S-BR-ORG-L1-062024", CompositeLayout{WithLedger: true})
	require.True(t, ok)
	require.Equal(t, "S", key.SubAccount)
	require.Equal(t, "BR", key.Branch)
	require.Equal(t, "L1", key.Ledger)

	_, ok = ParseCompositeKey("A1-S-BR-062024", CompositeLayout{})
	require.False(t, ok)
	_, ok = ParseCompositeKey("A1-S-BR-ORG-062024", CompositeLayout{WithLedger: true})
	require.False(t, ok)
}

func TestCompositeIndexLookupAndScan(t *testing.T) {
	idx := NewCompositeIndex(map[string]ledger.PeriodData{
		"A11101-M-H-100-0-HQ-HQ-052024": {EndingBalance: decimal.NewFromInt(10)},
		"a11102-S1-hq-HQ-062024":        {EndingBalance: decimal.NewFromInt(5)},
		"A11103-S1-BR-HQ-062024":        {EndingBalance: decimal.NewFromInt(7)},
		"B20000-S1-HQ-HQ-062024":        {EndingBalance: decimal.NewFromInt(100)},
		"BROKEN-062024":                 {EndingBalance: decimal.NewFromInt(1000)},
	}, CompositeLayout{})

	require.Equal(t, 1, idx.Skipped())
	require.Equal(t, 5, idx.Len())

	// absent key contributes zero
	_, ok := idx.Lookup("A11101-M-H-100-0-HQ-HQ-062024")
	require.False(t, ok)
	require.True(t, idx.Ending("A11101-M-H-100-0-HQ-HQ-062024").IsZero())
	require.True(t, idx.Ending("a11101-m-h-100-0-hq-hq-052024").Equal(decimal.NewFromInt(10)))

	sum := idx.SumEnding(All(AccountPrefix("a111"), Branch("HQ"), Period("062024")))
	require.True(t, sum.Equal(decimal.NewFromInt(5)))
	sum = idx.SumEnding(All(AccountPrefix("A111"), SubAccount("s1")))
	require.True(t, sum.Equal(decimal.NewFromInt(12)))
	require.True(t, idx.SumEnding(nil).Equal(decimal.NewFromInt(122)))
}

func TestNilCompositeIndexIsEmpty(t *testing.T) {
	var idx *CompositeIndex
	require.True(t, idx.Ending("X").IsZero())
	require.True(t, idx.SumEnding(Organization("HQ")).IsZero())
	require.Zero(t, idx.Len())
}
