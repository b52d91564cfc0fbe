package placeholder

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finreport/internal/ledger"
)

type sumKey struct {
	year   YearType
	level  int
	prefix string
}

// sumTable accumulates one metric per (year type, level, prefix).
type sumTable struct {
	mu   sync.Mutex
	sums map[sumKey]decimal.Decimal
}

func newSumTable() *sumTable {
	return &sumTable{sums: make(map[sumKey]decimal.Decimal)}
}

// fold adds v to every prefix of id up to MaxPrefixLevel.
func (t *sumTable) fold(yt YearType, id string, v decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for level := 1; level <= MaxPrefixLevel; level++ {
		p, ok := prefixOf(id, level)
		if !ok {
			return
		}
		k := sumKey{year: yt, level: level, prefix: p}
		t.sums[k] = t.sums[k].Add(v)
	}
}

func (t *sumTable) get(k sumKey) (decimal.Decimal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.sums[k]
	return v, ok
}

func (t *sumTable) sortedKeys() []sumKey {
	t.mu.Lock()
	keys := make([]sumKey, 0, len(t.sums))
	for k := range t.sums {
		keys = append(keys, k)
	}
	t.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.year != b.year {
			return a.year < b.year
		}
		if a.level != b.level {
			return a.level < b.level
		}
		return a.prefix < b.prefix
	})
	return keys
}

// Aggregator folds account figures into prefix sums and records direct account
// tokens into a Map. One instance serves one report run; all methods are safe for
// concurrent use.
type Aggregator struct {
	out    *Map
	tables [4]*sumTable
}

// NewAggregator writes direct and summary tokens into out.
func NewAggregator(out *Map) *Aggregator {
	a := &Aggregator{out: out}
	for i := range a.tables {
		a.tables[i] = newSumTable()
	}
	return a
}

// AddEnding records {{ACC_YT}} (and the CY description) and folds the ending balance.
func (a *Aggregator) AddEnding(yt YearType, accountID string, data ledger.PeriodData) {
	id := strings.ToUpper(accountID)
	a.out.SetAmount(EndingKey(id, yt), data.EndingBalance)
	if yt == CY {
		a.out.Set(DescriptionKey(id), data.Description)
	}
	a.tables[MetricEnding].fold(yt, id, data.EndingBalance)
}

// AddDebitCredit records the debit/credit tokens and folds both movements.
func (a *Aggregator) AddDebitCredit(yt YearType, accountID string, data ledger.PeriodData) {
	id := strings.ToUpper(accountID)
	a.out.SetAmount(DebitKey(id, yt), data.Debit)
	a.out.SetAmount(CreditKey(id, yt), data.Credit)
	a.tables[MetricDebit].fold(yt, id, data.Debit)
	a.tables[MetricCredit].fold(yt, id, data.Credit)
}

// AddBeginning records {{ACC_Jan1_YT}} and folds the beginning balance.
func (a *Aggregator) AddBeginning(yt YearType, accountID string, value decimal.Decimal) {
	id := strings.ToUpper(accountID)
	a.out.SetAmount(BeginningKey(id, yt), value)
	a.tables[MetricBeginning].fold(yt, id, value)
}

// total returns the accumulated value of a prefix aggregate.
func (a *Aggregator) total(m Metric, yt YearType, level int, prefix string) (decimal.Decimal, bool) {
	if m < MetricEnding || m > MetricBeginning {
		return decimal.Zero, false
	}
	return a.tables[m].get(sumKey{year: yt, level: level, prefix: strings.ToUpper(prefix)})
}

// EmitSummaries writes every accumulated aggregate as a formatted token. It must run
// after all Add calls have returned.
func (a *Aggregator) EmitSummaries() int {
	emitted := 0
	for m, table := range a.tables {
		metric := Metric(m)
		for _, k := range table.sortedKeys() {
			v, _ := table.get(k)
			a.out.SetAmount(SummaryKey(metric, k.level, k.prefix, k.year), v)
			emitted++
		}
	}
	return emitted
}
