package placeholder

import (
	"strings"

	"github.com/odyssey-erp/finreport/internal/ledger"
)

// Matches reports whether an account is consumed by the template, either directly
// or through a registered prefix.
func (r Requirements) Matches(accountID string) bool {
	return r.matches(strings.ToUpper(accountID), r.Levels())
}

// matches expects an upper-cased id and levels in ascending order.
func (r Requirements) matches(id string, levels []int) bool {
	if r.HasAccount(id) {
		return true
	}
	for _, level := range levels {
		p, ok := prefixOf(id, level)
		if !ok {
			break
		}
		if _, hit := r.Prefixes[level][p]; hit {
			return true
		}
	}
	return false
}

// Filter keeps only the accounts the template consumes. The input is not modified.
func Filter(accounts map[string]ledger.PeriodData, req Requirements) map[string]ledger.PeriodData {
	levels := req.Levels()
	out := make(map[string]ledger.PeriodData)
	for id, data := range accounts {
		id = strings.ToUpper(id)
		if req.matches(id, levels) {
			out[id] = data
		}
	}
	return out
}

// prefixOf returns the first n characters of id, or false when id is shorter.
func prefixOf(id string, n int) (string, bool) {
	if n <= 0 {
		return "", false
	}
	count := 0
	for i := range id {
		if count == n {
			return id[:i], true
		}
		count++
	}
	if count == n {
		return id, true
	}
	return "", false
}
