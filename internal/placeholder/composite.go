package placeholder

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finreport/internal/ledger"
)

// CompositeLayout describes how many dimensions a tenant's composite keys carry.
type CompositeLayout struct {
	WithLedger bool
}

// MinSegments is the fewest dash-separated segments a well-formed key has.
func (l CompositeLayout) MinSegments() int {
	if l.WithLedger {
		return 6
	}
	return 5
}

// CompositeKey is a parsed drill-down key. Segments are anchored at both ends so
// that a sub-account may itself contain dashes.
type CompositeKey struct {
	Raw          string
	Account      string
	SubAccount   string
	Branch       string
	Organization string
	Ledger       string
	Period       string
}

// ParseCompositeKey splits raw according to layout.
func ParseCompositeKey(raw string, layout CompositeLayout) (CompositeKey, bool) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	n := len(parts)
	if n < layout.MinSegments() {
		return CompositeKey{}, false
	}
	key := CompositeKey{
		Raw:          raw,
		Account:      parts[0],
		Period:       parts[n-1],
		Organization: parts[n-2],
	}
	if layout.WithLedger {
		key.Ledger = parts[n-3]
		key.Branch = parts[n-4]
		key.SubAccount = strings.Join(parts[1:n-4], "-")
	} else {
		key.Branch = parts[n-3]
		key.SubAccount = strings.Join(parts[1:n-3], "-")
	}
	return key, true
}

type compositeEntry struct {
	key  CompositeKey
	data ledger.PeriodData
}

// CompositeIndex answers exact and predicate queries over composite-key data. A nil
// index behaves as empty.
type CompositeIndex struct {
	layout  CompositeLayout
	byKey   map[string]ledger.PeriodData
	entries []compositeEntry
	skipped int
}

// NewCompositeIndex indexes data; malformed keys are skipped and counted.
func NewCompositeIndex(data map[string]ledger.PeriodData, layout CompositeLayout) *CompositeIndex {
	idx := &CompositeIndex{layout: layout, byKey: make(map[string]ledger.PeriodData, len(data))}
	for raw, d := range data {
		norm := ledger.NormaliseKey(raw)
		idx.byKey[norm] = d
		key, ok := ParseCompositeKey(norm, layout)
		if !ok {
			idx.skipped++
			continue
		}
		idx.entries = append(idx.entries, compositeEntry{key: key, data: d})
	}
	sort.Slice(idx.entries, func(i, j int) bool { return idx.entries[i].key.Raw < idx.entries[j].key.Raw })
	return idx
}

// Layout returns the layout the index was built with.
func (c *CompositeIndex) Layout() CompositeLayout {
	if c == nil {
		return CompositeLayout{}
	}
	return c.layout
}

// Lookup returns the row stored under key (case-insensitive).
func (c *CompositeIndex) Lookup(key string) (ledger.PeriodData, bool) {
	if c == nil {
		return ledger.PeriodData{}, false
	}
	d, ok := c.byKey[ledger.NormaliseKey(key)]
	return d, ok
}

// Ending returns the ending balance under key, zero when not found.
func (c *CompositeIndex) Ending(key string) decimal.Decimal {
	d, ok := c.Lookup(key)
	if !ok {
		return decimal.Zero
	}
	return d.EndingBalance
}

// SumEnding adds the ending balance of every well-formed key matching pred.
func (c *CompositeIndex) SumEnding(pred Predicate) decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, e := range c.entries {
		if pred == nil || pred(e.key) {
			total = total.Add(e.data.EndingBalance)
		}
	}
	return total
}

// Skipped returns how many keys were too short for the layout.
func (c *CompositeIndex) Skipped() int {
	if c == nil {
		return 0
	}
	return c.skipped
}

// Len returns the number of indexed rows.
func (c *CompositeIndex) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byKey)
}

// Predicate selects composite keys in a scan.
type Predicate func(CompositeKey) bool

// All combines predicates with logical and.
func All(preds ...Predicate) Predicate {
	return func(k CompositeKey) bool {
		for _, p := range preds {
			if p != nil && !p(k) {
				return false
			}
		}
		return true
	}
}

// AccountPrefix matches accounts starting with prefix.
func AccountPrefix(prefix string) Predicate {
	prefix = strings.ToUpper(prefix)
	return func(k CompositeKey) bool {
		return strings.HasPrefix(strings.ToUpper(k.Account), prefix)
	}
}

// SubAccount matches the sub-account exactly.
func SubAccount(v string) Predicate {
	return func(k CompositeKey) bool { return strings.EqualFold(k.SubAccount, v) }
}

// Branch matches the branch exactly.
func Branch(v string) Predicate {
	return func(k CompositeKey) bool { return strings.EqualFold(k.Branch, v) }
}

// Organization matches the organization exactly.
func Organization(v string) Predicate {
	return func(k CompositeKey) bool { return strings.EqualFold(k.Organization, v) }
}

// Ledger matches the ledger segment exactly.
func Ledger(v string) Predicate {
	return func(k CompositeKey) bool { return strings.EqualFold(k.Ledger, v) }
}

// Period matches the MMYYYY period exactly.
func Period(v string) Predicate {
	return func(k CompositeKey) bool { return strings.EqualFold(k.Period, v) }
}
