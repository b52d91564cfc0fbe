package formula

import (
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/finreport/internal/placeholder"
)

var years = []placeholder.YearType{placeholder.CY, placeholder.PY}

// reader reads one year's figures from the map, defaulting to zero.
type reader struct {
	m  *placeholder.Map
	yt placeholder.YearType
}

func (r reader) value(key string) decimal.Decimal { return r.m.Amount(key) }

func (r reader) ending(account string) decimal.Decimal {
	return r.value(placeholder.EndingKey(account, r.yt))
}

func (r reader) debit(account string) decimal.Decimal {
	return r.value(placeholder.DebitKey(account, r.yt))
}

func (r reader) credit(account string) decimal.Decimal {
	return r.value(placeholder.CreditKey(account, r.yt))
}

func (r reader) beginning(account string) decimal.Decimal {
	return r.value(placeholder.BeginningKey(account, r.yt))
}

func (r reader) sum(metric placeholder.Metric, prefix string) decimal.Decimal {
	return r.value(placeholder.SummaryKey(metric, len([]rune(prefix)), prefix, r.yt))
}

func (r reader) line(name string) decimal.Decimal {
	return r.value(placeholder.LineKey(name, r.yt))
}

func setLine(m *placeholder.Map, line string, yt placeholder.YearType, v decimal.Decimal) {
	m.SetAmount(placeholder.LineKey(line, yt), v)
}

// NegateInto copies the negated numeric value of every source token into its
// target. Absent or non-numeric sources are skipped. It returns the number of
// targets written.
func NegateInto(m *placeholder.Map, mapping map[string]string) int {
	written := 0
	for _, src := range sortedSources(mapping) {
		v, ok := m.Lookup(src)
		if !ok {
			continue
		}
		m.SetAmount(mapping[src], v.Neg())
		written++
	}
	return written
}

func sortedSources(mapping map[string]string) []string {
	sources := make([]string, 0, len(mapping))
	for src := range mapping {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources
}

// period builds the MMYYYY composite period for yt from the {{MONTH_NO}} and {{CY}}
// placeholders.
func period(m *placeholder.Map, yt placeholder.YearType) (string, error) {
	month, ok := m.Get(placeholder.TokenMonthNo)
	if !ok || strings.TrimSpace(month) == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingDimension, placeholder.TokenMonthNo)
	}
	raw, ok := m.Get(placeholder.TokenCurrentYear)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingDimension, placeholder.TokenCurrentYear)
	}
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %s=%q", ErrMissingDimension, placeholder.TokenCurrentYear, raw)
	}
	if yt == placeholder.PY {
		year--
	}
	return ledgerPeriod(strings.TrimSpace(month), year), nil
}

func ledgerPeriod(month string, year int) string {
	if len(month) == 1 {
		month = "0" + month
	}
	return fmt.Sprintf("%s%04d", month, year)
}

//go:embed negations/*.yaml
var negationFiles embed.FS

type negationFile struct {
	Negate map[string]string `yaml:"negate"`
}

// loadNegations reads an embedded source → target map. Keys are written bare;
// a {YT} marker expands to one entry per year type.
func loadNegations(name string) (map[string]string, error) {
	raw, err := negationFiles.ReadFile("negations/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("formula: read negations %s: %w", name, err)
	}
	var f negationFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("formula: decode negations %s: %w", name, err)
	}
	out := make(map[string]string, len(f.Negate)*2)
	for src, dst := range expandYears(f.Negate) {
		out[placeholder.Wrap(placeholder.Unwrap(src))] = placeholder.Wrap(placeholder.Unwrap(dst))
	}
	return out, nil
}

func mustLoadNegations(name string) map[string]string {
	m, err := loadNegations(name)
	if err != nil {
		panic(err)
	}
	return m
}

// expandYears turns X_{YT} patterns into one entry per year type.
func expandYears(mapping map[string]string) map[string]string {
	out := make(map[string]string, len(mapping)*2)
	for src, dst := range mapping {
		if !strings.Contains(src, "{YT}") {
			out[src] = dst
			continue
		}
		for _, yt := range years {
			out[strings.ReplaceAll(src, "{YT}", string(yt))] = strings.ReplaceAll(dst, "{YT}", string(yt))
		}
	}
	return out
}
