package placeholder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/finreport/internal/ledger"
)

// ErrInvalidMetadata is returned when the run selection cannot seed metadata.
var ErrInvalidMetadata = errors.New("placeholder: invalid run metadata")

// Metadata describes the run selection.
type Metadata struct {
	Year         int
	Month        string // two digits, 01..12
	Branch       string
	Organization string
	Ledger       string
	ReportDate   time.Time
}

// MonthNumber parses Month.
func (md Metadata) MonthNumber() (int, error) {
	n, err := strconv.Atoi(md.Month)
	if err != nil || len(md.Month) != 2 || n < 1 || n > 12 {
		return 0, fmt.Errorf("%w: month %q", ErrInvalidMetadata, md.Month)
	}
	return n, nil
}

// Validate checks month and year.
func (md Metadata) Validate() error {
	if _, err := md.MonthNumber(); err != nil {
		return err
	}
	if md.Year < 1900 || md.Year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidMetadata, md.Year)
	}
	return nil
}

// Period returns MMYYYY for the current year.
func (md Metadata) Period() string {
	return md.Month + fmt.Sprintf("%04d", md.Year)
}

// SeedMetadata writes the informational tokens. It is applied before aggregation and
// again after formulas so metadata always wins.
func SeedMetadata(m *Map, md Metadata) error {
	month, err := md.MonthNumber()
	if err != nil {
		return err
	}
	m.Set(TokenCurrentYear, strconv.Itoa(md.Year))
	m.Set(TokenPriorYear, strconv.Itoa(md.Year-1))
	m.Set(TokenMonth, time.Month(month).String())
	m.Set(TokenMonthNo, md.Month)
	m.Set(TokenPeriod, md.Period())
	m.Set(TokenBranch, md.Branch)
	m.Set(TokenOrganization, md.Organization)
	m.Set(TokenLedger, md.Ledger)
	if !md.ReportDate.IsZero() {
		m.Set(TokenReportDate, md.ReportDate.Format("02 January 2006"))
	}
	return nil
}

// Inputs are the six per-run account datasets.
type Inputs struct {
	CY           ledger.Dataset
	PY           ledger.Dataset
	BeginningCY  ledger.Dataset
	BeginningPY  ledger.Dataset
	CumulativeCY ledger.Dataset
	CumulativePY ledger.Dataset
}

// Builder populates a Map from datasets.
type Builder struct {
	workers int
	logger  *slog.Logger
}

// NewBuilder constructs a Builder folding each dataset with up to workers goroutines.
func NewBuilder(workers int, logger *slog.Logger) *Builder {
	if workers <= 0 {
		workers = 4
	}
	return &Builder{workers: workers, logger: logger}
}

// Build filters every dataset by req (nil keeps everything), aggregates the six
// branches in parallel and emits summaries after a single join.
func (b *Builder) Build(ctx context.Context, md Metadata, in Inputs, req *Requirements) (*Map, error) {
	m := NewMap()
	if err := SeedMetadata(m, md); err != nil {
		return nil, err
	}
	agg := NewAggregator(m)

	branches := []struct {
		name string
		data map[string]ledger.PeriodData
		add  func(id string, d ledger.PeriodData)
	}{
		{"cy", in.CY.Accounts, func(id string, d ledger.PeriodData) { agg.AddEnding(CY, id, d) }},
		{"py", in.PY.Accounts, func(id string, d ledger.PeriodData) { agg.AddEnding(PY, id, d) }},
		{"beginning_cy", in.BeginningCY.Accounts, func(id string, d ledger.PeriodData) { agg.AddBeginning(CY, id, d.BeginningBalance) }},
		{"beginning_py", in.BeginningPY.Accounts, func(id string, d ledger.PeriodData) { agg.AddBeginning(PY, id, d.BeginningBalance) }},
		{"cumulative_cy", in.CumulativeCY.Accounts, func(id string, d ledger.PeriodData) { agg.AddDebitCredit(CY, id, d) }},
		{"cumulative_py", in.CumulativePY.Accounts, func(id string, d ledger.PeriodData) { agg.AddDebitCredit(PY, id, d) }},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, br := range branches {
		g.Go(func() error {
			data := br.data
			if req != nil {
				data = Filter(data, *req)
			}
			if len(data) == 0 {
				return nil
			}
			b.log().Debug("aggregate dataset", slog.String("dataset", br.name), slog.Int("accounts", len(data)))
			return b.fold(gctx, data, br.add)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	agg.EmitSummaries()
	return m, nil
}

func (b *Builder) fold(ctx context.Context, data map[string]ledger.PeriodData, add func(string, ledger.PeriodData)) error {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	chunk := (len(ids) + b.workers - 1) / b.workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		part := ids[start:end]
		g.Go(func() error {
			for _, id := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				add(id, data[id])
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) log() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}

// Finalize re-applies metadata, copies canonical values onto tokens written in a
// different case in the template, and resolves every data token the template
// references but no dataset produced: amounts to "0", descriptions to "".
// It returns the number of zero-filled tokens.
func Finalize(m *Map, md Metadata, req Requirements) (int, error) {
	if err := SeedMetadata(m, md); err != nil {
		return 0, err
	}
	filled := 0
	for _, ref := range req.References {
		if !ref.IsData() {
			continue
		}
		if _, ok := m.Get(ref.Token); ok {
			continue
		}
		if canonical := ref.Canonical(); canonical != ref.Token {
			if v, ok := m.Get(canonical); ok {
				m.SetIfAbsent(ref.Token, v)
				continue
			}
		}
		value := "0"
		if ref.Form == FormDescription {
			value = ""
		}
		if m.SetIfAbsent(ref.Token, value) {
			filled++
		}
	}
	return filled, nil
}
