package finreport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/finreport/internal/docx"
	"github.com/odyssey-erp/finreport/internal/formula"
	"github.com/odyssey-erp/finreport/internal/ledger"
	"github.com/odyssey-erp/finreport/internal/placeholder"
)

// TemplateStore loads templates and persists generated files.
type TemplateStore interface {
	OpenTemplate(ctx context.Context, ref string) ([]byte, error)
	SaveOutput(ctx context.Context, reportID int64, ext string, data []byte) (string, error)
}

// Converter renders a DOCX as PDF.
type Converter interface {
	ConvertOffice(ctx context.Context, filename string, data []byte) ([]byte, error)
}

// GeneratorConfig wires the generation pipeline.
type GeneratorConfig struct {
	Source   ledger.Source
	Formulas *formula.Registry
	Store    TemplateStore
	// Converter is optional; without it only the DOCX is produced.
	Converter Converter
	Workers   int
	Logger    *slog.Logger
}

// Generator runs the pipeline for one report: token discovery, ledger fetch,
// aggregation, tenant formulas, merge and optional PDF conversion.
type Generator struct {
	source    ledger.Source
	formulas  *formula.Registry
	store     TemplateStore
	converter Converter
	builder   *placeholder.Builder
	logger    *slog.Logger
	now       func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	formulas := cfg.Formulas
	if formulas == nil {
		formulas = formula.DefaultRegistry()
	}
	return &Generator{
		source:    cfg.Source,
		formulas:  formulas,
		store:     cfg.Store,
		converter: cfg.Converter,
		builder:   placeholder.NewBuilder(cfg.Workers, cfg.Logger),
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (g *Generator) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// Result summarises one generation.
type Result struct {
	Output           Output
	Tokens           int
	Placeholders     int
	Defaulted        int64
	ZeroFilled       int
	Rejected         []string
	SkippedComposite int
	Merge            docx.MergeStats
	GeneratedAt      time.Time
}

// Metadata renders the result for the report record.
func (r Result) Metadata() map[string]any {
	meta := map[string]any{
		"tokens":            r.Tokens,
		"placeholders":      r.Placeholders,
		"defaulted":         r.Defaulted,
		"zero_filled":       r.ZeroFilled,
		"replacements":      r.Merge.Replacements,
		"unused_tokens":     len(r.Merge.Unused),
		"skipped_composite": r.SkippedComposite,
	}
	if len(r.Merge.Unresolved) > 0 {
		meta["unresolved"] = r.Merge.Unresolved
	}
	if len(r.Rejected) > 0 {
		meta["rejected"] = r.Rejected
	}
	return meta
}

// Generate produces the filled document for rep using tpl.
func (g *Generator) Generate(ctx context.Context, rep Report, tpl Template) (Result, error) {
	if g == nil || g.source == nil || g.store == nil {
		return Result{}, errors.New("finreport: generator not configured")
	}
	raw, err := g.store.OpenTemplate(ctx, tpl.FileRef)
	if err != nil {
		return Result{}, err
	}
	tenant := rep.Tenant
	if strings.TrimSpace(tenant) == "" {
		tenant = tpl.Tenant
	}
	run, err := g.run(ctx, rep, tenant, tpl.FileRef, raw)
	if err != nil {
		return Result{}, err
	}

	stats, err := run.doc.Merge(run.values.Snapshot())
	if err != nil {
		return Result{}, fmt.Errorf("finreport: merge: %w", err)
	}
	if len(stats.Unresolved) > 0 {
		g.log().Warn("unresolved template tokens", slog.Int64("report_id", rep.ID), slog.Any("tokens", stats.Unresolved))
	}
	if len(stats.Unused) > 0 {
		g.log().Debug("computed tokens absent from template", slog.Int64("report_id", rep.ID), slog.Int("count", len(stats.Unused)))
	}
	out, err := g.persist(ctx, rep, tpl, run.doc)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Output:           out,
		Tokens:           len(run.tokens),
		Placeholders:     run.values.Len(),
		Defaulted:        run.values.Defaulted(),
		ZeroFilled:       run.filled,
		Rejected:         run.req.Rejected,
		SkippedComposite: run.skipped,
		Merge:            stats,
		GeneratedAt:      g.now(),
	}
	g.log().Info("report generated",
		slog.Int64("report_id", rep.ID),
		slog.String("tenant", tenant),
		slog.Int("tokens", res.Tokens),
		slog.Int("replacements", stats.Replacements),
		slog.Int64("defaulted", res.Defaulted),
	)
	return res, nil
}

// Preview is the outcome of a dry run: the template's tokens and the value each
// one would receive. Tokens without a value stay literal in a generated document.
type Preview struct {
	Tokens    []string          `json:"tokens"`
	Values    map[string]string `json:"values"`
	Missing   []string          `json:"missing,omitempty"`
	Rejected  []string          `json:"rejected,omitempty"`
	Defaulted int64             `json:"defaulted"`
}

// Preview runs the pipeline on template bytes without merging or persisting.
func (g *Generator) Preview(ctx context.Context, rep Report, template []byte) (Preview, error) {
	if g == nil || g.source == nil {
		return Preview{}, errors.New("finreport: generator not configured")
	}
	run, err := g.run(ctx, rep, rep.Tenant, "preview", template)
	if err != nil {
		return Preview{}, err
	}
	p := Preview{
		Tokens:    run.tokens,
		Values:    make(map[string]string, len(run.tokens)),
		Rejected:  run.req.Rejected,
		Defaulted: run.values.Defaulted(),
	}
	for _, token := range run.tokens {
		if v, ok := run.values.Get(token); ok {
			p.Values[token] = v
			continue
		}
		p.Missing = append(p.Missing, token)
	}
	return p, nil
}

// pipelineRun carries the state shared by Generate and Preview.
type pipelineRun struct {
	doc     *docx.Document
	tokens  []string
	req     placeholder.Requirements
	values  *placeholder.Map
	filled  int
	skipped int
}

func (g *Generator) run(ctx context.Context, rep Report, tenant, ref string, raw []byte) (pipelineRun, error) {
	calc, err := g.formulas.Resolve(tenant)
	if err != nil {
		return pipelineRun{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	md, err := g.metadata(rep)
	if err != nil {
		return pipelineRun{}, err
	}
	doc, err := docx.Parse(raw)
	if err != nil {
		return pipelineRun{}, fmt.Errorf("%w: template %q: %w", ErrConfiguration, ref, err)
	}
	tokens, err := doc.Tokens()
	if err != nil {
		return pipelineRun{}, fmt.Errorf("finreport: scan template: %w", err)
	}
	// formula inputs are fetched even when the template only shows the lines
	req := placeholder.ParseKeys(append(append([]string(nil), tokens...), formula.InputsOf(calc)...))
	if len(req.Rejected) > 0 {
		g.log().Warn("unsupported prefix tokens", slog.Int64("report_id", rep.ID), slog.Any("tokens", req.Rejected))
	}

	layout := formula.LayoutOf(calc)
	inputs, composite, err := g.fetch(ctx, md, layout)
	if err != nil {
		return pipelineRun{}, err
	}

	values, err := g.builder.Build(ctx, md, inputs, &req)
	if err != nil {
		return pipelineRun{}, fmt.Errorf("finreport: build placeholders: %w", err)
	}
	if err := calc.CalculatePlaceholders(values); err != nil {
		return pipelineRun{}, g.formulaError(err)
	}
	indexes := formula.Composite{
		CY: placeholder.NewCompositeIndex(composite[0].Composite, layout),
		PY: placeholder.NewCompositeIndex(composite[1].Composite, layout),
	}
	if err := calc.CalculateCompositePlaceholders(values, indexes); err != nil {
		return pipelineRun{}, g.formulaError(err)
	}
	filled, err := placeholder.Finalize(values, md, req)
	if err != nil {
		return pipelineRun{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return pipelineRun{
		doc:     doc,
		tokens:  tokens,
		req:     req,
		values:  values,
		filled:  filled,
		skipped: indexes.CY.Skipped() + indexes.PY.Skipped(),
	}, nil
}

func (g *Generator) metadata(rep Report) (placeholder.Metadata, error) {
	md := placeholder.Metadata{
		Year:         rep.Year,
		Month:        rep.Month,
		Branch:       rep.Branch,
		Organization: rep.Organization,
		Ledger:       rep.Ledger,
		ReportDate:   g.now(),
	}
	if err := md.Validate(); err != nil {
		return md, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if strings.TrimSpace(md.Ledger) == "" {
		return md, fmt.Errorf("%w: report has no ledger", ErrConfiguration)
	}
	return md, nil
}

func (g *Generator) formulaError(err error) error {
	if errors.Is(err, formula.ErrMissingDimension) {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return fmt.Errorf("finreport: formulas: %w", err)
}

// queries lists the eight fetches of a run: CY and PY balances, January 1
// balances, year-to-date movements, then CY and PY composite rows.
func queries(md placeholder.Metadata, layout placeholder.CompositeLayout) []ledger.Query {
	month, _ := md.MonthNumber()
	base := ledger.Query{Branch: md.Branch, Organization: md.Organization, Ledger: md.Ledger}
	with := func(kind ledger.Kind, period, to string) ledger.Query {
		q := base
		q.Kind = kind
		q.Period = period
		q.PeriodTo = to
		if kind == ledger.KindComposite {
			q.LedgerSegment = layout.WithLedger
		}
		return q
	}
	cy, py := md.Year, md.Year-1
	return []ledger.Query{
		with(ledger.KindPeriod, ledger.PeriodCode(month, cy), ""),
		with(ledger.KindPeriod, ledger.PeriodCode(month, py), ""),
		with(ledger.KindBeginning, ledger.PeriodCode(1, cy), ""),
		with(ledger.KindBeginning, ledger.PeriodCode(1, py), ""),
		with(ledger.KindCumulative, ledger.PeriodCode(1, cy), ledger.PeriodCode(month, cy)),
		with(ledger.KindCumulative, ledger.PeriodCode(1, py), ledger.PeriodCode(month, py)),
		with(ledger.KindComposite, ledger.PeriodCode(month, cy), ""),
		with(ledger.KindComposite, ledger.PeriodCode(month, py), ""),
	}
}

// fetch runs every query concurrently. The first failure cancels the rest.
func (g *Generator) fetch(ctx context.Context, md placeholder.Metadata, layout placeholder.CompositeLayout) (placeholder.Inputs, [2]ledger.Dataset, error) {
	qs := queries(md, layout)
	results := make([]ledger.Dataset, len(qs))
	grp, gctx := errgroup.WithContext(ctx)
	for i, q := range qs {
		grp.Go(func() error {
			ds, err := g.source.Fetch(gctx, q)
			if err != nil {
				return fmt.Errorf("finreport: fetch %s %s: %w", strings.ToLower(string(q.Kind)), q.Period, err)
			}
			results[i] = ds
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		if errors.Is(err, ledger.ErrInvalidQuery) {
			return placeholder.Inputs{}, [2]ledger.Dataset{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return placeholder.Inputs{}, [2]ledger.Dataset{}, err
	}
	in := placeholder.Inputs{
		CY:           results[0],
		PY:           results[1],
		BeginningCY:  results[2],
		BeginningPY:  results[3],
		CumulativeCY: results[4],
		CumulativePY: results[5],
	}
	return in, [2]ledger.Dataset{results[6], results[7]}, nil
}

func (g *Generator) persist(ctx context.Context, rep Report, tpl Template, doc *docx.Document) (Output, error) {
	data, err := doc.Bytes()
	if err != nil {
		return Output{}, fmt.Errorf("finreport: encode document: %w", err)
	}
	path, err := g.store.SaveOutput(ctx, rep.ID, ".docx", data)
	if err != nil {
		return Output{}, err
	}
	out := Output{Path: path, Size: int64(len(data))}
	if g.converter == nil {
		return out, nil
	}
	name := strings.TrimSuffix(filepath.Base(tpl.FileRef), filepath.Ext(tpl.FileRef)) + "-" + strconv.FormatInt(rep.ID, 10) + ".docx"
	pdf, err := g.converter.ConvertOffice(ctx, name, data)
	if err != nil {
		// the DOCX is still usable
		g.log().Warn("pdf conversion failed", slog.Int64("report_id", rep.ID), slog.Any("error", err))
		return out, nil
	}
	pdfPath, err := g.store.SaveOutput(ctx, rep.ID, ".pdf", pdf)
	if err != nil {
		return Output{}, err
	}
	out.PDFPath = pdfPath
	return out, nil
}

func (g *Generator) log() *slog.Logger {
	if g.logger == nil {
		return slog.Default()
	}
	return g.logger
}
