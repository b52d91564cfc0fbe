package finreport

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finreport/internal/ledger"
)

// memStore is an in-memory Store with the repository's transition rules.
type memStore struct {
	mu        sync.Mutex
	templates map[int64]Template
	reports   map[int64]Report
	nextID    int64
}

func newMemStore(templates ...Template) *memStore {
	s := &memStore{templates: make(map[int64]Template), reports: make(map[int64]Report)}
	for _, tpl := range templates {
		s.templates[tpl.ID] = tpl
	}
	return s
}

func (s *memStore) ListTemplates(_ context.Context, includeInactive bool) ([]Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Template
	for _, tpl := range s.templates {
		if tpl.IsActive || includeInactive {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (s *memStore) GetTemplate(_ context.Context, id int64) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates[id]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return tpl, nil
}

func (s *memStore) InsertReport(_ context.Context, req CreateRequest, tenant string) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates[req.TemplateID]
	if !ok {
		return Report{}, ErrTemplateNotFound
	}
	s.nextID++
	year := req.Year
	rep := Report{
		ID:           s.nextID,
		TemplateID:   tpl.ID,
		TemplateName: tpl.Name,
		Tenant:       tenant,
		Month:        req.Month,
		Year:         year,
		Branch:       req.Branch,
		Organization: req.Organization,
		Ledger:       req.Ledger,
		Status:       StatusPending,
		Metadata:     req.Metadata,
		RequestedBy:  req.RequestedBy,
	}
	s.reports[rep.ID] = rep
	return rep, nil
}

func (s *memStore) GetReport(_ context.Context, id int64) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reports[id]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	return rep, nil
}

func (s *memStore) ListReports(_ context.Context, filter ListFilter) ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Report
	for id := int64(1); id <= s.nextID; id++ {
		rep, ok := s.reports[id]
		if !ok {
			continue
		}
		if filter.Status != "" && rep.Status != filter.Status {
			continue
		}
		out = append(out, rep)
	}
	return out, nil
}

func (s *memStore) MarkInProgress(_ context.Context, id int64) error {
	return s.update(id, func(rep *Report) error {
		if rep.Status != StatusPending && rep.Status != StatusFailed {
			return ErrInvalidStatus
		}
		rep.Status = StatusInProgress
		rep.ErrorMessage = ""
		return nil
	})
}

func (s *memStore) MarkCompleted(_ context.Context, id int64, out Output, generatedAt time.Time, metadata map[string]any) error {
	return s.update(id, func(rep *Report) error {
		if rep.Status != StatusInProgress {
			return ErrInvalidStatus
		}
		size := out.Size
		rep.Status = StatusCompleted
		rep.OutputPath = out.Path
		rep.OutputSize = &size
		rep.PDFPath = out.PDFPath
		rep.GeneratedAt = &generatedAt
		rep.Metadata = metadata
		return nil
	})
}

func (s *memStore) MarkFailed(_ context.Context, id int64, msg string) error {
	return s.update(id, func(rep *Report) error {
		rep.Status = StatusFailed
		rep.ErrorMessage = msg
		return nil
	})
}

func (s *memStore) ReclaimStale(_ context.Context, before time.Time, msg string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id := int64(1); id <= s.nextID; id++ {
		rep, ok := s.reports[id]
		if !ok || rep.Status != StatusInProgress || !rep.UpdatedAt.Before(before) {
			continue
		}
		rep.Status = StatusPending
		rep.ErrorMessage = msg
		s.reports[id] = rep
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) update(id int64, fn func(*Report) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reports[id]
	if !ok {
		return ErrReportNotFound
	}
	if err := fn(&rep); err != nil {
		return err
	}
	s.reports[id] = rep
	return nil
}

const (
	docHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	docTail = `</w:body></w:document>`
)

// writeTemplate stores a DOCX with one paragraph per line under dir/name.
func writeTemplate(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	var body strings.Builder
	body.WriteString(docHead)
	for _, line := range lines {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + line + `</w:t></w:r></w:p>`)
	}
	body.WriteString(docTail)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range []struct{ name, body string }{
		{"[Content_Types].xml", `<?xml version="1.0"?><Types/>`},
		{"word/document.xml", body.String()},
	} {
		w, err := zw.Create(part.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(part.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

// ledgerFixture serves June 2024 balances and January to June movements.
func ledgerFixture() ledger.SourceFunc {
	return func(_ context.Context, q ledger.Query) (ledger.Dataset, error) {
		ds := ledger.NewDataset()
		switch {
		case q.Kind == ledger.KindPeriod && q.Period == "062024":
			ds.AddAccount("A100", ledger.PeriodData{EndingBalance: decimal.NewFromInt(100), Description: "Cash on hand"})
			ds.AddAccount("A101", ledger.PeriodData{EndingBalance: decimal.NewFromInt(250)})
			ds.AddAccount("Z900", ledger.PeriodData{EndingBalance: decimal.NewFromInt(9)})
		case q.Kind == ledger.KindCumulative && q.PeriodTo == "062024":
			ds.AddAccount("B530", ledger.PeriodData{Debit: decimal.NewFromInt(500), Credit: decimal.NewFromInt(200)})
		}
		return ds, nil
	}
}

type fakeConverter struct {
	calls int
	err   error
}

func (c *fakeConverter) ConvertOffice(_ context.Context, filename string, data []byte) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if !strings.HasSuffix(filename, ".docx") || len(data) == 0 {
		return nil, errors.New("unexpected conversion input")
	}
	return []byte("%PDF-1.7"), nil
}

func testReport() Report {
	return Report{
		ID:           7,
		TemplateID:   1,
		Tenant:       "standard",
		Month:        "06",
		Year:         2024,
		Branch:       "HQ",
		Organization: "ACME",
		Ledger:       "MAIN",
		Status:       StatusInProgress,
	}
}

func testTemplate() Template {
	return Template{ID: 1, Name: "Monthly P&L", FileRef: "monthly.docx", Tenant: "standard", IsActive: true}
}
