package placeholder

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary value rounded half away from zero to whole units
// with comma thousands separators ("#,##0").
func FormatAmount(v decimal.Decimal) string {
	rounded := v.Round(0)
	if rounded.IsZero() {
		return "0"
	}
	if n := rounded.BigInt(); n.IsInt64() {
		return amountPrinter.Sprintf("%d", n.Int64())
	}
	return groupDigits(rounded.String())
}

// groupDigits inserts thousands separators into a plain integer string.
func groupDigits(s string) string {
	var b strings.Builder
	if strings.HasPrefix(s, "-") {
		b.WriteByte('-')
		s = s[1:]
	}
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// ParseAmount reads a value previously produced by FormatAmount or any plain
// decimal. Accounting negatives "(1,234)" are accepted.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(s)
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		v = v.Neg()
	}
	return v, true
}
