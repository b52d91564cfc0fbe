package finreport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finreport/internal/docx"
	"github.com/odyssey-erp/finreport/internal/ledger"
	"github.com/odyssey-erp/finreport/internal/placeholder"
)

func newTestGenerator(t *testing.T, source ledger.Source, conv Converter) (*Generator, string) {
	t.Helper()
	dir := t.TempDir()
	writeTemplate(t, dir, "monthly.docx",
		"Report for {{MONTH}} {{CY}}",
		"Revenue {{1_CY}}",
		"Cash {{Sum3_A10_CY}} ({{description_A100_CY}}: {{A100_CY}})",
		"Dormant {{A999_CY}}",
		"Signed {{SIGNATURE}}",
	)
	gen := NewGenerator(GeneratorConfig{
		Source:    source,
		Store:     NewFileStore(dir, t.TempDir()),
		Converter: conv,
		Workers:   2,
	})
	gen.WithNow(func() time.Time { return time.Date(2024, time.July, 3, 9, 0, 0, 0, time.UTC) })
	return gen, dir
}

func outputText(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	doc, err := docx.Parse(raw)
	require.NoError(t, err)
	body, ok := doc.Part("word/document.xml")
	require.True(t, ok)
	return string(body)
}

func TestGenerateFillsTemplate(t *testing.T) {
	conv := &fakeConverter{}
	gen, _ := newTestGenerator(t, ledgerFixture(), conv)

	res, err := gen.Generate(context.Background(), testReport(), testTemplate())
	require.NoError(t, err)

	body := outputText(t, res.Output.Path)
	require.Contains(t, body, "Report for June 2024")
	// revenue is computed from movements the template never references
	require.Contains(t, body, "Revenue 300")
	require.Contains(t, body, "Cash 350 (Cash on hand: 100)")
	require.Contains(t, body, "Dormant 0")
	require.Contains(t, body, "Signed {{SIGNATURE}}")

	require.Equal(t, []string{"{{SIGNATURE}}"}, res.Merge.Unresolved)
	require.Equal(t, 1, conv.calls)
	require.NotEmpty(t, res.Output.PDFPath)
	pdf, err := os.ReadFile(res.Output.PDFPath)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7", string(pdf))

	info, err := os.Stat(res.Output.Path)
	require.NoError(t, err)
	require.Equal(t, info.Size(), res.Output.Size)
	require.Positive(t, res.ZeroFilled)
	require.Equal(t, time.Date(2024, time.July, 3, 9, 0, 0, 0, time.UTC), res.GeneratedAt)

	meta := res.Metadata()
	require.Equal(t, 8, meta["tokens"])
	require.Equal(t, []string{"{{SIGNATURE}}"}, meta["unresolved"])
	// aggregates and metadata tokens are computed whether or not the template uses them
	require.Contains(t, res.Merge.Unused, "{{BRANCH}}")
	require.Equal(t, len(res.Merge.Unused), meta["unused_tokens"])
}

func TestGenerateQueriesEightDatasets(t *testing.T) {
	source := ledger.SourceFunc(func(ctx context.Context, q ledger.Query) (ledger.Dataset, error) {
		if err := q.Validate(); err != nil {
			return ledger.Dataset{}, err
		}
		return ledger.NewDataset(), nil
	})
	md := placeholder.Metadata{Year: 2024, Month: "06", Branch: "HQ", Organization: "ACME", Ledger: "MAIN"}
	seen := queries(md, placeholder.CompositeLayout{WithLedger: true})
	require.Len(t, seen, 8)
	require.Equal(t, "062023", seen[1].Period)
	require.Equal(t, "012024", seen[2].Period)
	require.Equal(t, "012024", seen[4].Period)
	require.Equal(t, "062024", seen[4].PeriodTo)
	require.True(t, seen[6].LedgerSegment)
	require.False(t, seen[0].LedgerSegment)

	gen, _ := newTestGenerator(t, source, nil)
	res, err := gen.Generate(context.Background(), testReport(), testTemplate())
	require.NoError(t, err)
	require.Empty(t, res.Output.PDFPath)
	require.Contains(t, outputText(t, res.Output.Path), "Revenue 0")
}

func TestGenerateKeepsDocxWhenConversionFails(t *testing.T) {
	conv := &fakeConverter{err: errors.New("gotenberg down")}
	gen, _ := newTestGenerator(t, ledgerFixture(), conv)

	res, err := gen.Generate(context.Background(), testReport(), testTemplate())
	require.NoError(t, err)
	require.Equal(t, 1, conv.calls)
	require.Empty(t, res.Output.PDFPath)
	require.FileExists(t, res.Output.Path)
}

func TestGenerateConfigurationErrors(t *testing.T) {
	gen, _ := newTestGenerator(t, ledgerFixture(), nil)
	ctx := context.Background()

	rep := testReport()
	rep.Tenant = "unknown"
	_, err := gen.Generate(ctx, rep, testTemplate())
	require.ErrorIs(t, err, ErrConfiguration)

	rep = testReport()
	rep.Ledger = ""
	_, err = gen.Generate(ctx, rep, testTemplate())
	require.ErrorIs(t, err, ErrConfiguration)

	rep = testReport()
	rep.Month = "13"
	_, err = gen.Generate(ctx, rep, testTemplate())
	require.ErrorIs(t, err, ErrConfiguration)

	tpl := testTemplate()
	tpl.FileRef = "missing.docx"
	_, err = gen.Generate(ctx, testReport(), tpl)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestGeneratePropagatesUpstreamFailures(t *testing.T) {
	source := ledger.SourceFunc(func(ctx context.Context, q ledger.Query) (ledger.Dataset, error) {
		if q.Kind == ledger.KindComposite {
			return ledger.Dataset{}, ledger.ErrUpstream
		}
		return ledger.NewDataset(), nil
	})
	gen, _ := newTestGenerator(t, source, nil)
	_, err := gen.Generate(context.Background(), testReport(), testTemplate())
	require.ErrorIs(t, err, ledger.ErrUpstream)
	require.NotErrorIs(t, err, ErrConfiguration)
}

func TestPreviewReportsValuesWithoutWriting(t *testing.T) {
	gen, dir := newTestGenerator(t, ledgerFixture(), nil)
	raw, err := os.ReadFile(filepath.Join(dir, "monthly.docx"))
	require.NoError(t, err)

	p, err := gen.Preview(context.Background(), testReport(), raw)
	require.NoError(t, err)
	require.Len(t, p.Tokens, 8)
	require.Equal(t, "300", p.Values["{{1_CY}}"])
	require.Equal(t, "350", p.Values["{{Sum3_A10_CY}}"])
	require.Equal(t, "0", p.Values["{{A999_CY}}"])
	require.Equal(t, []string{"{{SIGNATURE}}"}, p.Missing)

	_, err = gen.Preview(context.Background(), testReport(), []byte("not a docx"))
	require.ErrorIs(t, err, ErrConfiguration)
}
