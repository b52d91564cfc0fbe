package formula

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finreport/internal/ledger"
	"github.com/odyssey-erp/finreport/internal/placeholder"
)

func seededMap(t *testing.T) *placeholder.Map {
	t.Helper()
	m := placeholder.NewMap()
	require.NoError(t, placeholder.SeedMetadata(m, placeholder.Metadata{Year: 2024, Month: "06", Ledger: "L1"}))
	return m
}

func amount(v int64) ledger.PeriodData {
	return ledger.PeriodData{EndingBalance: decimal.NewFromInt(v)}
}

func TestHeadOfficeCompositeLines(t *testing.T) {
	cy := placeholder.NewCompositeIndex(map[string]ledger.PeriodData{
		"A11101-M-H-100-0-HQ-HQ-062024": amount(75),
		"A11102-BANK-HQ-HQ-062024":      amount(1000),
		"A11102-BANK-BR1-HQ-062024":     amount(300),
		"A11102-BANK-HQ-HQ-052024":      amount(999),
		"B5100-S-HQ-HQ-062024":          amount(-400),
		"A1300-IC-BR1-HQ-062024":        amount(60),
	}, placeholder.CompositeLayout{})

	m := seededMap(t)
	calc := NewHeadOffice()
	require.NoError(t, calc.CalculateCompositePlaceholders(m, Composite{CY: cy}))

	for token, want := range map[string]string{
		"{{20_CY}}": "75",
		"{{21_CY}}": "1,075",
		"{{22_CY}}": "300",
		"{{23_CY}}": "400",
		"{{24_CY}}": "60",
		"{{20_PY}}": "0",
		"{{21_PY}}": "0",
	} {
		got, _ := m.Get(token)
		require.Equal(t, want, got, token)
	}
}

func TestHeadOfficeNegatesStandardAggregates(t *testing.T) {
	m := seededMap(t)
	m.Set("{{Sum2_B5_CY}}", "-2,500")
	require.NoError(t, NewHeadOffice().CalculatePlaceholders(m))
	v, _ := m.Get("{{REVENUE_CY}}")
	require.Equal(t, "2,500", v)
	_, ok := m.Get("{{REVENUE_PY}}")
	require.False(t, ok)
}

func TestCompositeRequiresMonthAndYear(t *testing.T) {
	m := placeholder.NewMap()
	err := NewHeadOffice().CalculateCompositePlaceholders(m, Composite{})
	require.ErrorIs(t, err, ErrMissingDimension)
	err = NewGroup().CalculateCompositePlaceholders(m, Composite{})
	require.ErrorIs(t, err, ErrMissingDimension)
}

func TestGroupFiltersByLedger(t *testing.T) {
	data := map[string]ledger.PeriodData{
		"A100-S-BR-ORG-L1-062024": amount(10),
		"A100-S-BR-ORG-L2-062024": amount(20),
		"B510-S-BR-ORG-L1-062024": amount(-50),
		"B610-S-BR-ORG-L1-062024": amount(15),
		"A100-S-BR-ORG-062024":    amount(1000),
	}
	cy := placeholder.NewCompositeIndex(data, placeholder.CompositeLayout{WithLedger: true})
	require.Equal(t, 1, cy.Skipped())

	m := seededMap(t)
	require.NoError(t, NewGroup().CalculateCompositePlaceholders(m, Composite{CY: cy}))
	for token, want := range map[string]string{
		"{{30_CY}}":             "10",
		"{{31_CY}}":             "-50",
		"{{32_CY}}":             "15",
		"{{33_CY}}":             "35",
		"{{LEDGER_REVENUE_CY}}": "50",
		"{{LEDGER_REVENUE_PY}}": "0",
	} {
		got, _ := m.Get(token)
		require.Equal(t, want, got, token)
	}

	m = placeholder.NewMap()
	require.NoError(t, placeholder.SeedMetadata(m, placeholder.Metadata{Year: 2024, Month: "06"}))
	require.NoError(t, NewGroup().CalculateCompositePlaceholders(m, Composite{CY: cy}))
	v, _ := m.Get("{{30_CY}}")
	require.Equal(t, "30", v)
}
