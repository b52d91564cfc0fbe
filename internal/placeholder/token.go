// Package placeholder turns ledger datasets into the token → value map consumed by
// the document merge: key parsing, dataset filtering, prefix and composite
// aggregation and the map itself.
package placeholder

import (
	"fmt"
	"strings"
)

// YearType selects the current-year or prior-year slice.
type YearType string

const (
	CY YearType = "CY"
	PY YearType = "PY"
)

// ParseYearType accepts CY/PY in any case.
func ParseYearType(v string) (YearType, bool) {
	switch YearType(strings.ToUpper(strings.TrimSpace(v))) {
	case CY:
		return CY, true
	case PY:
		return PY, true
	}
	return "", false
}

// Metric is one of the four aggregated figures.
type Metric int

const (
	MetricEnding Metric = iota
	MetricDebit
	MetricCredit
	MetricBeginning
)

var metricLabels = [...]string{"Sum", "DebitSum", "CreditSum", "BegSum"}

// Label returns the token label of the metric.
func (m Metric) Label() string {
	if m < 0 || int(m) >= len(metricLabels) {
		return ""
	}
	return metricLabels[m]
}

// MetricFromLabel resolves a token label case-insensitively.
func MetricFromLabel(label string) (Metric, bool) {
	for i, l := range metricLabels {
		if strings.EqualFold(l, label) {
			return Metric(i), true
		}
	}
	return 0, false
}

// MaxPrefixLevel is the deepest supported prefix aggregation.
const MaxPrefixLevel = 5

// Wrap surrounds a key with the token delimiters.
func Wrap(key string) string {
	return "{{" + key + "}}"
}

// Unwrap strips the token delimiters and surrounding whitespace.
func Unwrap(token string) string {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "{{")
	token = strings.TrimSuffix(token, "}}")
	return strings.TrimSpace(token)
}

func tokenOf(keyOrToken string) string {
	if strings.HasPrefix(keyOrToken, "{{") && strings.HasSuffix(keyOrToken, "}}") {
		return keyOrToken
	}
	return Wrap(keyOrToken)
}

// EndingKey is the direct ending-balance token of an account.
func EndingKey(account string, yt YearType) string {
	return Wrap(account + "_" + string(yt))
}

// DescriptionKey is the current-year description token of an account.
func DescriptionKey(account string) string {
	return Wrap("description_" + account + "_" + string(CY))
}

// DebitKey is the direct debit token of an account.
func DebitKey(account string, yt YearType) string {
	return Wrap(account + "_debit_" + string(yt))
}

// CreditKey is the direct credit token of an account.
func CreditKey(account string, yt YearType) string {
	return Wrap(account + "_credit_" + string(yt))
}

// BeginningKey is the January 1 balance token of an account.
func BeginningKey(account string, yt YearType) string {
	return Wrap(account + "_Jan1_" + string(yt))
}

// SummaryKey is the prefix-aggregate token for a metric.
func SummaryKey(m Metric, level int, prefix string, yt YearType) string {
	return Wrap(fmt.Sprintf("%s%d_%s_%s", m.Label(), level, prefix, yt))
}

// LineKey is a derived report-line token such as {{6_PY}}.
func LineKey(line string, yt YearType) string {
	return Wrap(line + "_" + string(yt))
}

// Metadata tokens seeded for every run.
const (
	TokenCurrentYear  = "{{CY}}"
	TokenPriorYear    = "{{PY}}"
	TokenMonth        = "{{MONTH}}"
	TokenMonthNo      = "{{MONTH_NO}}"
	TokenPeriod       = "{{PERIOD}}"
	TokenBranch       = "{{BRANCH}}"
	TokenOrganization = "{{ORGANIZATION}}"
	TokenLedger       = "{{LEDGER}}"
	TokenReportDate   = "{{REPORT_DATE}}"
)
