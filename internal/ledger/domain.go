// Package ledger models the account figures pulled from an accounting source and
// the sources able to produce them.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// PeriodData holds one account's figures for one period.
type PeriodData struct {
	EndingBalance    decimal.Decimal `json:"ending_balance"`
	Debit            decimal.Decimal `json:"debit"`
	Credit           decimal.Decimal `json:"credit"`
	BeginningBalance decimal.Decimal `json:"beginning_balance"`
	Description      string          `json:"description"`
}

// Plus folds another row for the same key into p. The first non-empty description wins.
func (p PeriodData) Plus(other PeriodData) PeriodData {
	out := PeriodData{
		EndingBalance:    p.EndingBalance.Add(other.EndingBalance),
		Debit:            p.Debit.Add(other.Debit),
		Credit:           p.Credit.Add(other.Credit),
		BeginningBalance: p.BeginningBalance.Add(other.BeginningBalance),
		Description:      p.Description,
	}
	if out.Description == "" {
		out.Description = other.Description
	}
	return out
}

// Dataset is the result of one fetch: per-account figures plus optional
// composite-key drill-down rows. Keys are stored upper-cased.
type Dataset struct {
	Accounts  map[string]PeriodData `json:"accounts"`
	Composite map[string]PeriodData `json:"composite,omitempty"`
}

// NewDataset returns an empty, writable dataset.
func NewDataset() Dataset {
	return Dataset{Accounts: make(map[string]PeriodData), Composite: make(map[string]PeriodData)}
}

// AddAccount records figures for an account, summing with rows already stored under
// the same (case-insensitive) id.
func (d *Dataset) AddAccount(id string, data PeriodData) {
	key := NormaliseKey(id)
	if key == "" {
		return
	}
	if d.Accounts == nil {
		d.Accounts = make(map[string]PeriodData)
	}
	if existing, ok := d.Accounts[key]; ok {
		data = existing.Plus(data)
	}
	d.Accounts[key] = data
}

// AddComposite records figures under a composite key.
func (d *Dataset) AddComposite(key string, data PeriodData) {
	key = NormaliseKey(key)
	if key == "" {
		return
	}
	if d.Composite == nil {
		d.Composite = make(map[string]PeriodData)
	}
	if existing, ok := d.Composite[key]; ok {
		data = existing.Plus(data)
	}
	d.Composite[key] = data
}

// Account returns the figures for an account id.
func (d Dataset) Account(id string) (PeriodData, bool) {
	data, ok := d.Accounts[NormaliseKey(id)]
	return data, ok
}

// IsEmpty reports whether the dataset carries no rows at all.
func (d Dataset) IsEmpty() bool {
	return len(d.Accounts) == 0 && len(d.Composite) == 0
}

// NormaliseKey trims and upper-cases an account or composite identifier.
func NormaliseKey(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// CompositeKey joins the drill-down dimensions. The ledger segment is only emitted
// when withLedger is set.
func CompositeKey(account, subAccount, branch, organization, ledgerCode, period string, withLedger bool) string {
	parts := []string{account, subAccount, branch, organization}
	if withLedger {
		parts = append(parts, ledgerCode)
	}
	parts = append(parts, period)
	return NormaliseKey(strings.Join(parts, "-"))
}

// Kind selects which figures a query returns.
type Kind string

const (
	// KindPeriod returns balances for a single period.
	KindPeriod Kind = "PERIOD"
	// KindBeginning returns January 1 beginning balances of the period's year.
	KindBeginning Kind = "BEGINNING"
	// KindCumulative returns debit/credit movements over a period range.
	KindCumulative Kind = "CUMULATIVE"
	// KindComposite returns composite-key drill-down rows for a single period.
	KindComposite Kind = "COMPOSITE"
)

// Query identifies one fetch against a source.
type Query struct {
	Kind         Kind   `json:"kind"`
	Branch       string `json:"branch"`
	Organization string `json:"organization"`
	Ledger       string `json:"ledger"`
	// Period is MMYYYY.
	Period string `json:"period"`
	// PeriodTo closes a cumulative range (MMYYYY).
	PeriodTo string `json:"period_to,omitempty"`
	// LedgerSegment emits the ledger dimension in composite keys.
	LedgerSegment bool `json:"ledger_segment,omitempty"`
}

// Validate ensures a query can be sent to a source.
func (q Query) Validate() error {
	switch q.Kind {
	case KindPeriod, KindBeginning, KindComposite:
	case KindCumulative:
		if _, _, err := ParsePeriod(q.PeriodTo); err != nil {
			return fmt.Errorf("%w: period_to: %v", ErrInvalidQuery, err)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, q.Kind)
	}
	if _, _, err := ParsePeriod(q.Period); err != nil {
		return fmt.Errorf("%w: period: %v", ErrInvalidQuery, err)
	}
	if strings.TrimSpace(q.Ledger) == "" {
		return fmt.Errorf("%w: ledger required", ErrInvalidQuery)
	}
	return nil
}

// Key renders a stable identifier for caching.
func (q Query) Key() string {
	ledgerSeg := "5"
	if q.LedgerSegment {
		ledgerSeg = "6"
	}
	return strings.Join([]string{
		string(q.Kind),
		NormaliseKey(q.Branch),
		NormaliseKey(q.Organization),
		NormaliseKey(q.Ledger),
		q.Period,
		q.PeriodTo,
		ledgerSeg,
	}, ":")
}

// PeriodCode formats month and year as MMYYYY.
func PeriodCode(month, year int) string {
	return fmt.Sprintf("%02d%04d", month, year)
}

// ParsePeriod splits an MMYYYY code.
func ParsePeriod(code string) (month, year int, err error) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return 0, 0, fmt.Errorf("period %q must be MMYYYY", code)
	}
	if month, err = strconv.Atoi(code[:2]); err != nil {
		return 0, 0, fmt.Errorf("period %q: %w", code, err)
	}
	if year, err = strconv.Atoi(code[2:]); err != nil {
		return 0, 0, fmt.Errorf("period %q: %w", code, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("period %q: month out of range", code)
	}
	return month, year, nil
}

var (
	// ErrInvalidQuery marks a query that cannot be sent upstream.
	ErrInvalidQuery = errors.New("ledger: invalid query")
	// ErrUnauthorized is returned when the source rejects credentials after a refresh.
	ErrUnauthorized = errors.New("ledger: unauthorized")
	// ErrUpstream wraps non-success responses from the source.
	ErrUpstream = errors.New("ledger: upstream failure")
)
