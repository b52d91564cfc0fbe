package formula

import (
	"fmt"

	"github.com/odyssey-erp/finreport/internal/placeholder"
)

const headOfficeCode = "HQ"

// HeadOffice extends the standard lines with head office drill-downs over
// five-segment composite keys (account-sub-branch-org-period).
type HeadOffice struct {
	negations map[string]string
}

// NewHeadOffice loads the embedded negation map.
func NewHeadOffice() *HeadOffice {
	return &HeadOffice{negations: mustLoadNegations(TenantHeadOffice)}
}

// CompositeLayout reports the five-segment layout.
func (*HeadOffice) CompositeLayout() placeholder.CompositeLayout {
	return placeholder.CompositeLayout{}
}

// InputKeys adds the negation sources to the standard inputs.
func (h *HeadOffice) InputKeys() []string {
	return append(Standard{}.InputKeys(), sortedSources(h.negations)...)
}

// CalculatePlaceholders writes the standard lines and then the negated copies.
func (h *HeadOffice) CalculatePlaceholders(m *placeholder.Map) error {
	if err := (Standard{}).CalculatePlaceholders(m); err != nil {
		return err
	}
	NegateInto(m, h.negations)
	return nil
}

// CalculateCompositePlaceholders writes lines 20..24:
//
//	20 petty cash held at head office (exact key)
//	21 cash and bank at head office
//	22 cash and bank at every other branch
//	23 head office revenue, sign flipped
//	24 intercompany receivable sub-account IC
func (h *HeadOffice) CalculateCompositePlaceholders(m *placeholder.Map, c Composite) error {
	for _, yt := range years {
		p, err := period(m, yt)
		if err != nil {
			return err
		}
		idx := c.Index(yt)

		petty := idx.Ending(fmt.Sprintf("A11101-M-H-100-0-%s-%s-%s", headOfficeCode, headOfficeCode, p))
		cashHQ := idx.SumEnding(placeholder.All(
			placeholder.AccountPrefix("A111"),
			placeholder.Branch(headOfficeCode),
			placeholder.Organization(headOfficeCode),
			placeholder.Period(p),
		))
		cashAll := idx.SumEnding(placeholder.All(placeholder.AccountPrefix("A111"), placeholder.Period(p)))
		revenueHQ := idx.SumEnding(placeholder.All(
			placeholder.AccountPrefix("B5"),
			placeholder.Organization(headOfficeCode),
			placeholder.Period(p),
		))
		intercompany := idx.SumEnding(placeholder.All(
			placeholder.AccountPrefix("A13"),
			placeholder.SubAccount("IC"),
			placeholder.Period(p),
		))

		setLine(m, "20", yt, petty)
		setLine(m, "21", yt, cashHQ)
		setLine(m, "22", yt, cashAll.Sub(cashHQ))
		setLine(m, "23", yt, revenueHQ.Neg())
		setLine(m, "24", yt, intercompany)
	}
	return nil
}
