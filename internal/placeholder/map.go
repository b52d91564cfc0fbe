package placeholder

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Map is the token → formatted value mapping built for one report run. It is safe
// for concurrent use. Keys passed without {{ }} are wrapped.
type Map struct {
	mu        sync.RWMutex
	values    map[string]string
	defaulted atomic.Int64
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{values: make(map[string]string)}
}

// Set stores a raw string value.
func (m *Map) Set(key, value string) {
	m.mu.Lock()
	m.values[tokenOf(key)] = value
	m.mu.Unlock()
}

// SetAmount stores a formatted monetary value.
func (m *Map) SetAmount(key string, v decimal.Decimal) {
	m.Set(key, FormatAmount(v))
}

// SetIfAbsent stores value only when key is missing and reports whether it did.
func (m *Map) SetIfAbsent(key, value string) bool {
	token := tokenOf(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[token]; ok {
		return false
	}
	m.values[token] = value
	return true
}

// Get returns the stored string.
func (m *Map) Get(key string) (string, bool) {
	m.mu.RLock()
	v, ok := m.values[tokenOf(key)]
	m.mu.RUnlock()
	return v, ok
}

// Lookup parses the stored value as an amount without counting misses.
func (m *Map) Lookup(key string) (decimal.Decimal, bool) {
	raw, ok := m.Get(key)
	if !ok {
		return decimal.Zero, false
	}
	return ParseAmount(raw)
}

// Amount returns the numeric value of key, or zero when the key is absent or not
// numeric. Every such default is counted, see Defaulted.
func (m *Map) Amount(key string) decimal.Decimal {
	v, ok := m.Lookup(key)
	if !ok {
		m.defaulted.Add(1)
		return decimal.Zero
	}
	return v
}

// Defaulted returns how many Amount reads fell back to zero.
func (m *Map) Defaulted() int64 {
	return m.defaulted.Load()
}

// Len returns the number of tokens.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Snapshot copies the map for read-only use by the merge engine.
func (m *Map) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
