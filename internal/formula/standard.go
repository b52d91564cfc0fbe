package formula

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finreport/internal/placeholder"
)

// Standard is the default chart-of-accounts layout: B5x revenue, B6x operating
// expenses, B7x other items, B8x tax and A/L/E balance sheet classes. It has no
// composite lines.
type Standard struct{}

// CalculatePlaceholders writes profit and loss lines 1..9 and balance sheet lines
// 10..13 for both years.
func (Standard) CalculatePlaceholders(m *placeholder.Map) error {
	for _, yt := range years {
		r := reader{m: m, yt: yt}
		standardLines(m, r)
	}
	return nil
}

// CalculateCompositePlaceholders is a no-op.
func (Standard) CalculateCompositePlaceholders(*placeholder.Map, Composite) error {
	return nil
}

// InputKeys lists the summary and account tokens the lines read.
func (Standard) InputKeys() []string {
	var keys []string
	for _, yt := range years {
		keys = append(keys,
			placeholder.SummaryKey(placeholder.MetricDebit, 3, "B53", yt),
			placeholder.SummaryKey(placeholder.MetricCredit, 3, "B53", yt),
			placeholder.DebitKey("B539", yt),
			placeholder.CreditKey("B539", yt),
			placeholder.SummaryKey(placeholder.MetricEnding, 3, "B54", yt),
			placeholder.SummaryKey(placeholder.MetricEnding, 2, "B6", yt),
			placeholder.SummaryKey(placeholder.MetricEnding, 2, "B7", yt),
			placeholder.SummaryKey(placeholder.MetricEnding, 3, "B81", yt),
			placeholder.SummaryKey(placeholder.MetricEnding, 1, "A", yt),
			placeholder.SummaryKey(placeholder.MetricEnding, 1, "L", yt),
			placeholder.SummaryKey(placeholder.MetricEnding, 1, "E", yt),
		)
	}
	return keys
}

func standardLines(m *placeholder.Map, r reader) {
	// Revenue is net of the B539 discounts account.
	revenue := r.sum(placeholder.MetricDebit, "B53").Sub(r.sum(placeholder.MetricCredit, "B53")).
		Sub(r.debit("B539").Sub(r.credit("B539")))
	costOfSales := r.sum(placeholder.MetricEnding, "B54")
	gross := revenue.Sub(costOfSales)
	opex := r.sum(placeholder.MetricEnding, "B6")
	operating := gross.Sub(opex)
	other := r.sum(placeholder.MetricEnding, "B7")
	beforeTax := operating.Add(other)
	tax := r.sum(placeholder.MetricEnding, "B81")
	net := beforeTax.Sub(tax)

	assets := r.sum(placeholder.MetricEnding, "A")
	liabilities := r.sum(placeholder.MetricEnding, "L").Neg()
	equity := r.sum(placeholder.MetricEnding, "E").Neg()

	for _, l := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"1", revenue},
		{"2", costOfSales},
		{"3", gross},
		{"4", opex},
		{"5", operating},
		{"6", other},
		{"7", beforeTax},
		{"8", tax},
		{"9", net},
		{"10", assets},
		{"11", liabilities},
		{"12", equity},
		{"13", liabilities.Add(equity)},
	} {
		setLine(m, l.name, r.yt, l.v)
	}
}
