package finreport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/finreport/internal/formula"
)

// Store is the persistence contract of the service; Repository implements it.
type Store interface {
	ListTemplates(ctx context.Context, includeInactive bool) ([]Template, error)
	GetTemplate(ctx context.Context, id int64) (Template, error)
	InsertReport(ctx context.Context, req CreateRequest, tenant string) (Report, error)
	GetReport(ctx context.Context, id int64) (Report, error)
	ListReports(ctx context.Context, filter ListFilter) ([]Report, error)
	MarkInProgress(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, out Output, generatedAt time.Time, metadata map[string]any) error
	MarkFailed(ctx context.Context, id int64, msg string) error
	// ReclaimStale returns IN_PROGRESS reports untouched since before to PENDING.
	ReclaimStale(ctx context.Context, before time.Time, msg string) ([]int64, error)
}

// Service orchestrates report requests and status transitions.
type Service struct {
	repo     Store
	formulas *formula.Registry
}

// NewService constructs a Service. A nil registry uses the built-in tenants.
func NewService(repo Store, formulas *formula.Registry) *Service {
	if formulas == nil {
		formulas = formula.DefaultRegistry()
	}
	return &Service{repo: repo, formulas: formulas}
}

// Create validates the request against an active template with a known tenant
// and stores a pending report.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}
	tpl, err := s.repo.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return Report{}, err
	}
	if !tpl.IsActive {
		return Report{}, fmt.Errorf("%w: template %d is inactive", ErrValidation, tpl.ID)
	}
	if strings.TrimSpace(tpl.FileRef) == "" {
		return Report{}, fmt.Errorf("%w: template %d has no file", ErrConfiguration, tpl.ID)
	}
	if _, err := s.formulas.Resolve(tpl.Tenant); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	req.Metadata = mergeMetadata(map[string]any{"template": tpl.Name}, req.Metadata)
	return s.repo.InsertReport(ctx, req, strings.ToLower(strings.TrimSpace(tpl.Tenant)))
}

// List returns reports matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Report, error) {
	return s.repo.ListReports(ctx, filter)
}

// Get loads a single report.
func (s *Service) Get(ctx context.Context, id int64) (Report, error) {
	return s.repo.GetReport(ctx, id)
}

// GetTemplate loads a template.
func (s *Service) GetTemplate(ctx context.Context, id int64) (Template, error) {
	return s.repo.GetTemplate(ctx, id)
}

// ListTemplates enumerates active templates.
func (s *Service) ListTemplates(ctx context.Context) ([]Template, error) {
	return s.repo.ListTemplates(ctx, false)
}

// MarkInProgress transitions a report to in-progress.
func (s *Service) MarkInProgress(ctx context.Context, id int64) error {
	return s.repo.MarkInProgress(ctx, id)
}

// MarkCompleted persists the generated artefacts and run statistics.
func (s *Service) MarkCompleted(ctx context.Context, rep Report, res Result) (Report, error) {
	merged := mergeMetadata(rep.Metadata, res.Metadata())
	if err := s.repo.MarkCompleted(ctx, rep.ID, res.Output, res.GeneratedAt, merged); err != nil {
		return Report{}, err
	}
	return s.repo.GetReport(ctx, rep.ID)
}

// MarkFailed records a failure message.
func (s *Service) MarkFailed(ctx context.Context, id int64, errMessage string) error {
	errMessage = strings.TrimSpace(errMessage)
	if errMessage == "" {
		errMessage = "unknown error"
	}
	return s.repo.MarkFailed(ctx, id, errMessage)
}

// ReclaimStale requeues reports whose worker stopped without recording an outcome.
func (s *Service) ReclaimStale(ctx context.Context, before time.Time) ([]int64, error) {
	return s.repo.ReclaimStale(ctx, before, "report generation was interrupted, the report will be retried")
}
