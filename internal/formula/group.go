package formula

import (
	"strings"

	"github.com/odyssey-erp/finreport/internal/placeholder"
)

// Group consolidates several ledgers. Composite keys carry a ledger segment
// (account-sub-branch-org-ledger-period); the {{LEDGER}} placeholder narrows the
// drill-down lines to one ledger, an empty value spans all of them.
type Group struct {
	negations map[string]string
}

// NewGroup loads the embedded negation map.
func NewGroup() *Group {
	return &Group{negations: mustLoadNegations(TenantGroup)}
}

// CompositeLayout reports the six-segment layout.
func (*Group) CompositeLayout() placeholder.CompositeLayout {
	return placeholder.CompositeLayout{WithLedger: true}
}

// InputKeys adds the negation sources to the standard inputs.
func (g *Group) InputKeys() []string {
	return append(Standard{}.InputKeys(), sortedSources(g.negations)...)
}

// CalculatePlaceholders writes the standard lines.
func (g *Group) CalculatePlaceholders(m *placeholder.Map) error {
	return (Standard{}).CalculatePlaceholders(m)
}

// CalculateCompositePlaceholders writes lines 30..33 for the selected ledger and
// applies the negation map, which also covers those lines.
func (g *Group) CalculateCompositePlaceholders(m *placeholder.Map, c Composite) error {
	ledgerCode, _ := m.Get(placeholder.TokenLedger)
	ledgerCode = strings.TrimSpace(ledgerCode)
	for _, yt := range years {
		p, err := period(m, yt)
		if err != nil {
			return err
		}
		idx := c.Index(yt)
		scope := func(prefix string) placeholder.Predicate {
			preds := []placeholder.Predicate{placeholder.AccountPrefix(prefix), placeholder.Period(p)}
			if ledgerCode != "" {
				preds = append(preds, placeholder.Ledger(ledgerCode))
			}
			return placeholder.All(preds...)
		}
		assets := idx.SumEnding(scope("A"))
		revenue := idx.SumEnding(scope("B5"))
		expenses := idx.SumEnding(scope("B6"))

		setLine(m, "30", yt, assets)
		setLine(m, "31", yt, revenue)
		setLine(m, "32", yt, expenses)
		// revenue is credit-normal
		setLine(m, "33", yt, revenue.Neg().Sub(expenses))
	}
	NegateInto(m, g.negations)
	return nil
}
