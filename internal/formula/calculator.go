// Package formula derives tenant-specific report lines from an aggregated
// placeholder map.
package formula

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/odyssey-erp/finreport/internal/placeholder"
)

var (
	// ErrUnknownTenant is returned when no calculator is registered for a tenant.
	ErrUnknownTenant = errors.New("formula: unknown tenant")
	// ErrMissingDimension signals that a month or year placeholder needed to build a
	// composite key is absent. It is a template or configuration defect.
	ErrMissingDimension = errors.New("formula: missing dimension placeholder")
)

// Composite carries the per-year composite-key indexes of a run.
type Composite struct {
	CY *placeholder.CompositeIndex
	PY *placeholder.CompositeIndex
}

// Index returns the index for yt.
func (c Composite) Index(yt placeholder.YearType) *placeholder.CompositeIndex {
	if yt == placeholder.PY {
		return c.PY
	}
	return c.CY
}

// Calculator computes derived lines in place. Missing inputs read as zero; only a
// missing dimension placeholder is an error.
type Calculator interface {
	CalculatePlaceholders(m *placeholder.Map) error
	CalculateCompositePlaceholders(m *placeholder.Map, c Composite) error
}

// LayoutProvider is implemented by calculators whose composite keys differ from
// the default five-segment layout.
type LayoutProvider interface {
	CompositeLayout() placeholder.CompositeLayout
}

// LayoutOf returns the composite layout calc expects.
func LayoutOf(calc Calculator) placeholder.CompositeLayout {
	if lp, ok := calc.(LayoutProvider); ok {
		return lp.CompositeLayout()
	}
	return placeholder.CompositeLayout{}
}

// InputProvider is implemented by calculators that read data tokens a template
// may not reference itself. Those tokens are added to the fetch requirements.
type InputProvider interface {
	InputKeys() []string
}

// InputsOf returns the data tokens calc reads, or nil.
func InputsOf(calc Calculator) []string {
	if ip, ok := calc.(InputProvider); ok {
		return ip.InputKeys()
	}
	return nil
}

// Registry maps tenant identifiers to calculators.
type Registry struct {
	mu    sync.RWMutex
	calcs map[string]Calculator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{calcs: make(map[string]Calculator)}
}

// Register adds a calculator. Registering the same tenant twice panics.
func (r *Registry) Register(tenant string, calc Calculator) {
	key := normaliseTenant(tenant)
	if key == "" || calc == nil {
		panic("formula: register requires a tenant and a calculator")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.calcs[key]; dup {
		panic(fmt.Sprintf("formula: tenant %q registered twice", key))
	}
	r.calcs[key] = calc
}

// Resolve returns the calculator of tenant.
func (r *Registry) Resolve(tenant string) (Calculator, error) {
	r.mu.RLock()
	calc, ok := r.calcs[normaliseTenant(tenant)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTenant, tenant)
	}
	return calc, nil
}

// Tenants lists registered tenants in order.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.calcs))
	for k := range r.calcs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normaliseTenant(tenant string) string {
	return strings.ToLower(strings.TrimSpace(tenant))
}

// Tenant identifiers shipped with the engine.
const (
	TenantStandard   = "standard"
	TenantHeadOffice = "headoffice"
	TenantGroup      = "group"
)

// DefaultRegistry returns a registry with every built-in tenant.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TenantStandard, Standard{})
	r.Register(TenantHeadOffice, NewHeadOffice())
	r.Register(TenantGroup, NewGroup())
	return r
}
